package minipar

import (
	"fmt"
	"strconv"
	"strings"
)

type position struct {
	line int
}

func (p position) String() string {
	return fmt.Sprintf("line %d", p.line)
}

// Node represents an abstract syntax tree (AST) node in a MiniPar program.
// The set of node types is closed: Expr and Stmt are sealed by unexported
// marker methods and the executor switches over every variant.
type Node interface {
	String() string
	Line() int
}

// Expr is any node that produces a Value.
type Expr interface {
	Node
	exprNode()
}

// Stmt is any node executed for its effect.
type Stmt interface {
	Node
	stmtNode()
}

func (p position) Line() int {
	return p.line
}

// a string representation of the position of a given node,
// appropriate for an error message
func poss(n Node) string {
	return fmt.Sprintf("line %d", n.Line())
}

type ConstantNode struct {
	val Value
	position
}

func (n ConstantNode) String() string {
	if s, isString := n.val.(StringValue); isString {
		return fmt.Sprintf("Constant %s", strconv.Quote(string(s)))
	}
	return fmt.Sprintf("Constant %s", n.val)
}

func (n ConstantNode) Value() Value {
	return n.val
}

type IdentifierNode struct {
	name string
	position
}

func (n IdentifierNode) String() string {
	return fmt.Sprintf("Identifier '%s'", n.name)
}

func (n IdentifierNode) Name() string {
	return n.name
}

// LogicalNode is `&&` or `||`
type LogicalNode struct {
	operator Kind
	left     Expr
	right    Expr
	position
}

func (n LogicalNode) String() string {
	return fmt.Sprintf("Logical (%s) %s (%s)", n.left, n.operator, n.right)
}

// RelationalNode is a single, non-chaining comparison
type RelationalNode struct {
	operator Kind
	left     Expr
	right    Expr
	position
}

func (n RelationalNode) String() string {
	return fmt.Sprintf("Relational (%s) %s (%s)", n.left, n.operator, n.right)
}

type ArithmeticNode struct {
	operator Kind
	left     Expr
	right    Expr
	position
}

func (n ArithmeticNode) String() string {
	return fmt.Sprintf("Arithmetic (%s) %s (%s)", n.left, n.operator, n.right)
}

type UnaryNode struct {
	operator Kind
	operand  Expr
	position
}

func (n UnaryNode) String() string {
	return fmt.Sprintf("Unary %s (%s)", n.operator, n.operand)
}

// CallNode calls a builtin or declared function by name. Channel method
// sugar (`c.send(x)`) sets receiver to the channel name.
type CallNode struct {
	name      string
	receiver  string
	arguments []Expr
	position
}

func (n CallNode) String() string {
	args := make([]string, len(n.arguments))
	for i, a := range n.arguments {
		args[i] = a.String()
	}
	callee := n.name
	if n.receiver != "" {
		callee = n.receiver + "." + n.name
	}
	return fmt.Sprintf("Call %s (%s)", callee, strings.Join(args, ", "))
}

// AccessNode is `base[index]`
type AccessNode struct {
	base  Expr
	index Expr
	position
}

func (n AccessNode) String() string {
	return fmt.Sprintf("Access (%s)[%s]", n.base, n.index)
}

func (ConstantNode) exprNode()   {}
func (IdentifierNode) exprNode() {}
func (LogicalNode) exprNode()    {}
func (RelationalNode) exprNode() {}
func (ArithmeticNode) exprNode() {}
func (UnaryNode) exprNode()      {}
func (CallNode) exprNode()       {}
func (AccessNode) exprNode()     {}

func stmtsString(stmts []Stmt) string {
	parts := make([]string, len(stmts))
	for i, s := range stmts {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

// ModuleNode is the root of every parsed program.
type ModuleNode struct {
	stmts []Stmt
	position
}

func (n ModuleNode) String() string {
	return fmt.Sprintf("Module {%s}", stmtsString(n.stmts))
}

func (n ModuleNode) Statements() []Stmt {
	return n.stmts
}

// AssignNode is both a plain assignment and a declaration, which sets
// declType.
type AssignNode struct {
	name     string
	declType string
	value    Expr
	position
}

func (n AssignNode) String() string {
	if n.declType != "" {
		return fmt.Sprintf("Declare %s %s = (%s)", n.declType, n.name, n.value)
	}
	return fmt.Sprintf("Assign %s = (%s)", n.name, n.value)
}

type IfNode struct {
	condition Expr
	body      []Stmt
	elseBody  []Stmt
	position
}

func (n IfNode) String() string {
	if n.elseBody != nil {
		return fmt.Sprintf("If (%s) {%s} Else {%s}",
			n.condition, stmtsString(n.body), stmtsString(n.elseBody))
	}
	return fmt.Sprintf("If (%s) {%s}", n.condition, stmtsString(n.body))
}

type WhileNode struct {
	condition Expr
	body      []Stmt
	position
}

func (n WhileNode) String() string {
	return fmt.Sprintf("While (%s) {%s}", n.condition, stmtsString(n.body))
}

// Param is a single function parameter. def may be nil.
type Param struct {
	name     string
	typeName string
	def      Expr
}

func (p Param) String() string {
	s := p.name
	if p.typeName != "" {
		s = p.typeName + " " + s
	}
	if p.def != nil {
		s += " = " + p.def.String()
	}
	return s
}

type FuncDefNode struct {
	name       string
	params     []Param
	returnType string
	body       []Stmt
	position
}

func (n FuncDefNode) String() string {
	params := make([]string, len(n.params))
	for i, p := range n.params {
		params[i] = p.String()
	}
	return fmt.Sprintf("Function %s(%s) {%s}", n.name, strings.Join(params, ", "), stmtsString(n.body))
}

// SeqNode runs its body strictly in order.
type SeqNode struct {
	body []Stmt
	position
}

func (n SeqNode) String() string {
	return fmt.Sprintf("SEQ {%s}", stmtsString(n.body))
}

// ParNode runs each statement of its body as a concurrent branch.
type ParNode struct {
	body []Stmt
	position
}

func (n ParNode) String() string {
	return fmt.Sprintf("PAR {%s}", stmtsString(n.body))
}

type ClientChannelNode struct {
	name string
	host Expr
	port Expr
	position
}

func (n ClientChannelNode) String() string {
	return fmt.Sprintf("CChannel %s (%s):(%s)", n.name, n.host, n.port)
}

type ServerChannelNode struct {
	name        string
	handler     string
	description Expr
	host        Expr
	port        Expr
	position
}

func (n ServerChannelNode) String() string {
	return fmt.Sprintf("SChannel %s {%s, (%s), (%s):(%s)}",
		n.name, n.handler, n.description, n.host, n.port)
}

type BreakNode struct {
	position
}

func (n BreakNode) String() string {
	return "Break"
}

type ContinueNode struct {
	position
}

func (n ContinueNode) String() string {
	return "Continue"
}

// ReturnNode's value is nil for a bare `return;`
type ReturnNode struct {
	value Expr
	position
}

func (n ReturnNode) String() string {
	if n.value == nil {
		return "Return"
	}
	return fmt.Sprintf("Return (%s)", n.value)
}

// ExprStmtNode is an expression evaluated for its side effects,
// in practice always a call.
type ExprStmtNode struct {
	expr Expr
	position
}

func (n ExprStmtNode) String() string {
	return n.expr.String()
}

func (ModuleNode) stmtNode()        {}
func (AssignNode) stmtNode()        {}
func (IfNode) stmtNode()            {}
func (WhileNode) stmtNode()         {}
func (FuncDefNode) stmtNode()       {}
func (SeqNode) stmtNode()           {}
func (ParNode) stmtNode()           {}
func (ClientChannelNode) stmtNode() {}
func (ServerChannelNode) stmtNode() {}
func (BreakNode) stmtNode()         {}
func (ContinueNode) stmtNode()      {}
func (ReturnNode) stmtNode()        {}
func (ExprStmtNode) stmtNode()      {}
