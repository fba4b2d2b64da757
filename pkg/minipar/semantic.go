package minipar

import "fmt"

// checker is a single shallow walk over a Module. It tags expressions with
// a type name where the type is evident from the syntax alone, and leaves
// everything else ("") to be coerced at run time.
type checker struct {
	functions map[string]int
	builtins  map[string]bool
}

// Check validates a parsed module and returns the first semantic error.
// builtins lists the names callable without a declaration, which server
// channels may use as handlers.
func Check(module *ModuleNode, builtins ...string) error {
	c := &checker{
		functions: make(map[string]int),
		builtins:  make(map[string]bool, len(builtins)),
	}
	for _, name := range builtins {
		c.builtins[name] = true
	}

	// functions may be used as handlers before their declaration, so
	// collect them up front
	if err := c.collect(module.stmts); err != nil {
		return err
	}
	return c.stmts(module.stmts)
}

func semanticErr(line int, format string, args ...interface{}) error {
	return Err{
		reason:  ErrSemantic,
		message: fmt.Sprintf(format, args...),
		line:    line,
	}
}

func (c *checker) collect(stmts []Stmt) error {
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case FuncDefNode:
			if prev, declared := c.functions[n.name]; declared {
				return semanticErr(n.line, "function %s is already declared on line %d", n.name, prev)
			}
			c.functions[n.name] = n.line
			if err := c.collect(n.body); err != nil {
				return err
			}
		case IfNode:
			if err := c.collect(n.body); err != nil {
				return err
			}
			if err := c.collect(n.elseBody); err != nil {
				return err
			}
		case WhileNode:
			if err := c.collect(n.body); err != nil {
				return err
			}
		case SeqNode:
			if err := c.collect(n.body); err != nil {
				return err
			}
		case ParNode:
			if err := c.collect(n.body); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *checker) stmts(stmts []Stmt) error {
	for _, stmt := range stmts {
		if err := c.stmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) condition(cond Expr, construct string) error {
	if err := c.expr(cond); err != nil {
		return err
	}
	if t := typeOf(cond); t != "" && t != "bool" {
		return semanticErr(cond.Line(), "%s condition must be bool, got %s", construct, t)
	}
	return nil
}

func (c *checker) stmt(stmt Stmt) error {
	switch n := stmt.(type) {
	case ModuleNode:
		return c.stmts(n.stmts)
	case AssignNode:
		if err := c.expr(n.value); err != nil {
			return err
		}
		if n.declType == "" {
			return nil
		}
		if t := typeOf(n.value); t != "" && t != n.declType {
			return semanticErr(n.line, "cannot assign %s value to %s %s", t, n.declType, n.name)
		}
		return nil
	case IfNode:
		if err := c.condition(n.condition, "if"); err != nil {
			return err
		}
		if err := c.stmts(n.body); err != nil {
			return err
		}
		return c.stmts(n.elseBody)
	case WhileNode:
		if err := c.condition(n.condition, "while"); err != nil {
			return err
		}
		return c.stmts(n.body)
	case FuncDefNode:
		for _, param := range n.params {
			if param.def == nil {
				continue
			}
			if err := c.expr(param.def); err != nil {
				return err
			}
			if t := typeOf(param.def); param.typeName != "" && t != "" && t != param.typeName {
				return semanticErr(n.line, "default for %s %s of function %s is %s",
					param.typeName, param.name, n.name, t)
			}
		}
		return c.stmts(n.body)
	case SeqNode:
		return c.stmts(n.body)
	case ParNode:
		return c.stmts(n.body)
	case ClientChannelNode:
		if err := c.expr(n.host); err != nil {
			return err
		}
		return c.expr(n.port)
	case ServerChannelNode:
		if _, declared := c.functions[n.handler]; !declared && !c.builtins[n.handler] {
			return semanticErr(n.line, "handler %s of channel %s is not a function", n.handler, n.name)
		}
		for _, e := range []Expr{n.description, n.host, n.port} {
			if err := c.expr(e); err != nil {
				return err
			}
		}
		return nil
	case ReturnNode:
		if n.value == nil {
			return nil
		}
		return c.expr(n.value)
	case ExprStmtNode:
		return c.expr(n.expr)
	case BreakNode, ContinueNode:
		// placement is checked at run time
		return nil
	default:
		return Err{reason: ErrAssert, message: fmt.Sprintf("unknown statement %s", stmt)}
	}
}

// expr walks into nested expressions so that conditions deep in a call's
// arguments are reached.
func (c *checker) expr(expr Expr) error {
	switch n := expr.(type) {
	case LogicalNode:
		if err := c.expr(n.left); err != nil {
			return err
		}
		return c.expr(n.right)
	case RelationalNode:
		if err := c.expr(n.left); err != nil {
			return err
		}
		return c.expr(n.right)
	case ArithmeticNode:
		if err := c.expr(n.left); err != nil {
			return err
		}
		return c.expr(n.right)
	case UnaryNode:
		return c.expr(n.operand)
	case CallNode:
		for _, arg := range n.arguments {
			if err := c.expr(arg); err != nil {
				return err
			}
		}
		return nil
	case AccessNode:
		if err := c.expr(n.base); err != nil {
			return err
		}
		return c.expr(n.index)
	default:
		return nil
	}
}

// typeOf reports the type tag of an expression, or "" when it can only be
// known at run time.
func typeOf(expr Expr) string {
	switch n := expr.(type) {
	case ConstantNode:
		if _, isNull := n.val.(NullValue); isNull {
			return ""
		}
		return n.val.Type()
	case LogicalNode, RelationalNode:
		return "bool"
	case UnaryNode:
		if n.operator == NegationOp {
			return "bool"
		}
		switch t := typeOf(n.operand); t {
		case "int", "float":
			return t
		default:
			return ""
		}
	case ArithmeticNode:
		if n.operator == DivideOp {
			return ""
		}
		left, right := typeOf(n.left), typeOf(n.right)
		if left != right {
			return ""
		}
		// strings are left unknown since numeric strings add as numbers
		if left == "int" || left == "float" {
			return left
		}
		return ""
	default:
		return ""
	}
}
