package minipar

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type controlKind int

const (
	ctlNormal controlKind = iota
	ctlBreak
	ctlContinue
	ctlReturn
)

// control is the outcome of executing a statement. Anything but
// ctlNormal unwinds enclosing statements until a loop or call consumes it.
type control struct {
	kind  controlKind
	value Value
	line  int
}

var normal = control{kind: ctlNormal}

func misplaced(ctl control, where string) error {
	switch ctl.kind {
	case ctlBreak:
		return runtimeErr(ctl.line, ErrMisplacedControl, "break %s", where)
	case ctlContinue:
		return runtimeErr(ctl.line, ErrMisplacedControl, "continue %s", where)
	default:
		return runtimeErr(ctl.line, ErrMisplacedControl, "return %s", where)
	}
}

// NativeFunc is a builtin function implemented in Go.
type NativeFunc func(*Executor, []Value) (Value, error)

// syncWriter serializes writes from concurrent PAR branches.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}

// lineReader serializes console reads from concurrent PAR branches.
type lineReader struct {
	mu sync.Mutex
	r  *bufio.Reader
}

func (lr *lineReader) ReadLine() (string, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	line, err := lr.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return line, err
}

// Executor walks and runs a MiniPar syntax tree. An Executor is not safe
// for concurrent use; PAR blocks run each branch on a fork.
type Executor struct {
	engine    *Engine
	scope     *scope
	functions map[string]FuncDefNode
	conns     *connTable
	// builtins is read-only once the program starts running
	builtins map[string]NativeFunc

	out *syncWriter
	in  *lineReader

	depth int
	// branch identifies the PAR branch this executor runs, if any
	branch string
}

// LoadFunc registers a builtin function. User functions of the same name
// take precedence over it.
func (ex *Executor) LoadFunc(name string, fn NativeFunc) {
	ex.builtins[name] = fn
}

// Get reads a variable visible from the global frame.
func (ex *Executor) Get(name string) (Value, bool) {
	return ex.scope.Get(name)
}

// Callables lists the names of builtins and declared functions.
func (ex *Executor) Callables() []string {
	names := make([]string, 0, len(ex.builtins)+len(ex.functions))
	for name := range ex.builtins {
		names = append(names, name)
	}
	for name := range ex.functions {
		names = append(names, name)
	}
	return names
}

// Run executes a checked module to completion or to the first error.
func (ex *Executor) Run(module *ModuleNode) error {
	for _, stmt := range module.stmts {
		if ex.engine.Debug.Exec {
			LogDebug("exec ->", stmt.String())
		}
		ctl, err := ex.execStmt(stmt)
		if err != nil {
			return err
		}
		switch ctl.kind {
		case ctlBreak, ctlContinue:
			return misplaced(ctl, "outside of a loop")
		case ctlReturn:
			return misplaced(ctl, "outside of a function")
		}
	}
	return nil
}

func (ex *Executor) execStmts(stmts []Stmt) (control, error) {
	for _, stmt := range stmts {
		ctl, err := ex.execStmt(stmt)
		if err != nil || ctl.kind != ctlNormal {
			return ctl, err
		}
	}
	return normal, nil
}

// execBlock runs stmts in a new frame, popped on every way out.
func (ex *Executor) execBlock(stmts []Stmt) (control, error) {
	m := ex.scope.push()
	defer ex.scope.pop(m)

	return ex.execStmts(stmts)
}

func (ex *Executor) execStmt(stmt Stmt) (control, error) {
	switch n := stmt.(type) {
	case ModuleNode:
		return ex.execStmts(n.stmts)

	case AssignNode:
		val, err := ex.eval(n.value)
		if err != nil {
			return normal, err
		}
		if n.declType != "" {
			ex.scope.Declare(n.name, val)
		} else {
			ex.scope.Set(n.name, val)
		}
		return normal, nil

	case IfNode:
		cond, err := ex.eval(n.condition)
		if err != nil {
			return normal, err
		}
		if truthy(cond) {
			return ex.execBlock(n.body)
		}
		if n.elseBody != nil {
			return ex.execBlock(n.elseBody)
		}
		return normal, nil

	case WhileNode:
		for {
			cond, err := ex.eval(n.condition)
			if err != nil {
				return normal, err
			}
			if !truthy(cond) {
				return normal, nil
			}

			ctl, err := ex.execBlock(n.body)
			if err != nil {
				return normal, err
			}
			switch ctl.kind {
			case ctlBreak:
				return normal, nil
			case ctlReturn:
				return ctl, nil
			}
		}

	case FuncDefNode:
		ex.functions[n.name] = n
		return normal, nil

	case SeqNode:
		return ex.execStmts(n.body)

	case ParNode:
		return normal, ex.execPar(n)

	case ClientChannelNode:
		return normal, ex.declareClient(n)

	case ServerChannelNode:
		return normal, ex.serveChannel(n)

	case BreakNode:
		return control{kind: ctlBreak, line: n.line}, nil

	case ContinueNode:
		return control{kind: ctlContinue, line: n.line}, nil

	case ReturnNode:
		var val Value = Null
		if n.value != nil {
			var err error
			val, err = ex.eval(n.value)
			if err != nil {
				return normal, err
			}
		}
		return control{kind: ctlReturn, value: val, line: n.line}, nil

	case ExprStmtNode:
		_, err := ex.eval(n.expr)
		return normal, err

	default:
		return normal, Err{
			reason:  ErrAssert,
			message: fmt.Sprintf("cannot execute unknown statement %s", stmt),
		}
	}
}

// fork copies the executor for a PAR branch. The branch sees a snapshot
// of every binding and function, and opens its own channels.
func (ex *Executor) fork() *Executor {
	functions := make(map[string]FuncDefNode, len(ex.functions))
	for name, fn := range ex.functions {
		functions[name] = fn
	}
	return &Executor{
		engine:    ex.engine,
		scope:     ex.scope.clone(),
		functions: functions,
		conns:     newConnTable(),
		builtins:  ex.builtins,
		out:       ex.out,
		in:        ex.in,
		depth:     ex.depth,
		branch:    uuid.NewString(),
	}
}

// execPar runs every statement of the block on its own fork and waits for
// all of them. Branch failures do not stop sibling branches; they are
// reported together once every branch has finished.
func (ex *Executor) execPar(n ParNode) error {
	var g errgroup.Group
	if limit := ex.engine.Config.Runtime.MaxParallel; limit > 0 {
		g.SetLimit(limit)
	}

	var mu sync.Mutex
	failures := make([]BranchError, 0)

	for i, stmt := range n.body {
		i, stmt := i, stmt
		branch := ex.fork()
		g.Go(func() error {
			if err := branch.runBranch(stmt); err != nil {
				mu.Lock()
				failures = append(failures, BranchError{ID: branch.branch, Index: i, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if len(failures) == 0 {
		return nil
	}
	sort.Slice(failures, func(a, b int) bool {
		return failures[a].Index < failures[b].Index
	})
	return &ParError{Line: n.line, Branches: failures}
}

func (ex *Executor) runBranch(stmt Stmt) (err error) {
	defer ex.conns.closeAll()
	defer func() {
		if r := recover(); r != nil {
			err = Err{
				reason:  ErrSystem,
				message: fmt.Sprintf("PAR branch %s panicked: %v", ex.branch, r),
				line:    stmt.Line(),
			}
		}
	}()

	if ex.engine.Debug.Exec {
		LogDebugf("par branch %s -> %s", ex.branch, stmt)
	}

	ctl, err := ex.execStmt(stmt)
	if err != nil {
		return err
	}
	if ctl.kind != ctlNormal {
		return misplaced(ctl, "escapes a PAR branch")
	}
	return nil
}

func (ex *Executor) eval(expr Expr) (Value, error) {
	switch n := expr.(type) {
	case ConstantNode:
		return n.val, nil

	case IdentifierNode:
		val, ok := ex.scope.Get(n.name)
		if !ok {
			return nil, runtimeErr(n.line, ErrUndefined, "%s is not defined", n.name)
		}
		return val, nil

	case LogicalNode:
		left, err := ex.eval(n.left)
		if err != nil {
			return nil, err
		}
		if n.operator == LogicalAndOp && !truthy(left) {
			return BoolValue(false), nil
		}
		if n.operator == LogicalOrOp && truthy(left) {
			return BoolValue(true), nil
		}
		right, err := ex.eval(n.right)
		if err != nil {
			return nil, err
		}
		return BoolValue(truthy(right)), nil

	case RelationalNode:
		left, err := ex.eval(n.left)
		if err != nil {
			return nil, err
		}
		right, err := ex.eval(n.right)
		if err != nil {
			return nil, err
		}
		return compare(n.operator, left, right, n.line)

	case ArithmeticNode:
		left, err := ex.eval(n.left)
		if err != nil {
			return nil, err
		}
		right, err := ex.eval(n.right)
		if err != nil {
			return nil, err
		}
		return arithmetic(n.operator, left, right, n.line)

	case UnaryNode:
		operand, err := ex.eval(n.operand)
		if err != nil {
			return nil, err
		}
		if n.operator == NegationOp {
			return BoolValue(!truthy(operand)), nil
		}
		num, ok := toNumeric(operand)
		if !ok {
			return nil, runtimeErr(n.line, ErrOperand, "cannot negate %s %q", operand.Type(), operand)
		}
		if i, isInt := num.(IntValue); isInt {
			return -i, nil
		}
		return -num.(FloatValue), nil

	case CallNode:
		return ex.evalCall(n)

	case AccessNode:
		return ex.evalAccess(n)

	default:
		return nil, Err{
			reason:  ErrAssert,
			message: fmt.Sprintf("cannot evaluate unknown expression %s", expr),
		}
	}
}

func (ex *Executor) evalAccess(n AccessNode) (Value, error) {
	base, err := ex.eval(n.base)
	if err != nil {
		return nil, err
	}
	index, err := ex.eval(n.index)
	if err != nil {
		return nil, err
	}

	s, isString := base.(StringValue)
	if !isString {
		return nil, runtimeErr(n.line, ErrAccess, "cannot index into %s %s", base.Type(), base)
	}
	num, ok := toNumeric(index)
	i, isInt := num.(IntValue)
	if !ok || !isInt {
		return nil, runtimeErr(n.line, ErrAccess, "index %s is not an integer", index)
	}

	runes := []rune(string(s))
	if i < 0 {
		i += IntValue(len(runes))
	}
	if i < 0 || int(i) >= len(runes) {
		return nil, runtimeErr(n.line, ErrAccess, "index %s out of range for string of length %d", index, len(runes))
	}
	return StringValue(runes[i]), nil
}

func arithmetic(op Kind, left, right Value, line int) (Value, error) {
	ln, lok := toNumeric(left)
	rn, rok := toNumeric(right)

	if !lok || !rok {
		ls, leftIsString := left.(StringValue)
		rs, rightIsString := right.(StringValue)
		switch op {
		case AddOp:
			if leftIsString || rightIsString {
				return StringValue(left.String() + right.String()), nil
			}
		case MultiplyOp:
			if count, isInt := rn.(IntValue); leftIsString && rok && isInt {
				return repeat(ls, count), nil
			}
			if count, isInt := ln.(IntValue); rightIsString && lok && isInt {
				return repeat(rs, count), nil
			}
		}
		return nil, runtimeErr(line, ErrOperand, "cannot apply %s to %s %q and %s %q",
			op, left.Type(), left, right.Type(), right)
	}

	li, leftIsInt := ln.(IntValue)
	ri, rightIsInt := rn.(IntValue)
	bothInt := leftIsInt && rightIsInt
	lf, rf := asFloat(ln), asFloat(rn)

	switch op {
	case AddOp:
		if bothInt {
			return li + ri, nil
		}
		return FloatValue(lf + rf), nil
	case SubtractOp:
		if bothInt {
			return li - ri, nil
		}
		return FloatValue(lf - rf), nil
	case MultiplyOp:
		if bothInt {
			return li * ri, nil
		}
		return FloatValue(lf * rf), nil
	case DivideOp:
		if rf == 0 {
			return nil, runtimeErr(line, ErrDivisionByZero, "division by zero")
		}
		return demote(lf / rf), nil
	case ModulusOp:
		if rf == 0 {
			return nil, runtimeErr(line, ErrDivisionByZero, "modulo by zero")
		}
		// the result takes the sign of the divisor
		if bothInt {
			m := li % ri
			if m != 0 && (m < 0) != (ri < 0) {
				m += ri
			}
			return m, nil
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return FloatValue(m), nil
	default:
		return nil, Err{
			reason:  ErrAssert,
			message: fmt.Sprintf("unknown arithmetic operator %s", op),
			line:    line,
		}
	}
}

func repeat(s StringValue, count IntValue) Value {
	if count <= 0 {
		return StringValue("")
	}
	return StringValue(strings.Repeat(string(s), int(count)))
}

func compare(op Kind, left, right Value, line int) (Value, error) {
	var cmp int

	ln, lok := toNumeric(left)
	rn, rok := toNumeric(right)
	ls, leftIsString := left.(StringValue)
	rs, rightIsString := right.(StringValue)

	switch {
	case lok && rok:
		li, leftIsInt := ln.(IntValue)
		ri, rightIsInt := rn.(IntValue)
		if leftIsInt && rightIsInt {
			cmp = compareOrdered(li, ri)
		} else {
			cmp = compareOrdered(asFloat(ln), asFloat(rn))
		}
	case leftIsString && rightIsString:
		cmp = strings.Compare(string(ls), string(rs))
	default:
		switch op {
		case EqualOp:
			return BoolValue(left.Equals(right)), nil
		case NotEqualOp:
			return BoolValue(!left.Equals(right)), nil
		}
		return nil, runtimeErr(line, ErrOperand, "cannot compare %s %q with %s %q using %s",
			left.Type(), left, right.Type(), right, op)
	}

	switch op {
	case EqualOp:
		return BoolValue(cmp == 0), nil
	case NotEqualOp:
		return BoolValue(cmp != 0), nil
	case LessThanOp:
		return BoolValue(cmp < 0), nil
	case GreaterThanOp:
		return BoolValue(cmp > 0), nil
	case LessEqualOp:
		return BoolValue(cmp <= 0), nil
	case GreaterEqualOp:
		return BoolValue(cmp >= 0), nil
	default:
		return nil, Err{
			reason:  ErrAssert,
			message: fmt.Sprintf("unknown relational operator %s", op),
			line:    line,
		}
	}
}

func compareOrdered[T IntValue | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func isChannelBuiltin(name string) bool {
	return name == "send" || name == "close" || name == "receive"
}

func (ex *Executor) evalCall(n CallNode) (Value, error) {
	// NAME.send(x) is send(NAME, x)
	if n.receiver != "" {
		if !isChannelBuiltin(n.name) {
			return nil, runtimeErr(n.line, ErrChannel, "channel %s has no method %s", n.receiver, n.name)
		}
		args, err := ex.evalArgs(n.arguments)
		if err != nil {
			return nil, err
		}
		args = append([]Value{StringValue(n.receiver)}, args...)
		return ex.callBuiltin(n.name, ex.builtins[n.name], args, n.line)
	}

	if fn, ok := ex.functions[n.name]; ok {
		args, err := ex.evalArgs(n.arguments)
		if err != nil {
			return nil, err
		}
		return ex.callFunction(fn, args, n.line)
	}

	builtin, ok := ex.builtins[n.name]
	if !ok {
		return nil, runtimeErr(n.line, ErrUndefined, "function %s is not defined", n.name)
	}

	var args []Value
	var err error
	if isChannelBuiltin(n.name) && len(n.arguments) > 0 {
		// a bare channel name is passed by name, not evaluated
		first := n.arguments[0]
		if ident, isIdent := first.(IdentifierNode); isIdent {
			if _, open := ex.conns.get(ident.name); open {
				first = ConstantNode{val: StringValue(ident.name), position: ident.position}
			}
		}
		args, err = ex.evalArgs(append([]Expr{first}, n.arguments[1:]...))
	} else {
		args, err = ex.evalArgs(n.arguments)
	}
	if err != nil {
		return nil, err
	}
	return ex.callBuiltin(n.name, builtin, args, n.line)
}

func (ex *Executor) evalArgs(exprs []Expr) ([]Value, error) {
	args := make([]Value, len(exprs))
	for i, e := range exprs {
		val, err := ex.eval(e)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	return args, nil
}

// callByName calls a declared function, or failing that a builtin, with
// already evaluated arguments.
func (ex *Executor) callByName(name string, args []Value, line int) (Value, error) {
	if fn, ok := ex.functions[name]; ok {
		return ex.callFunction(fn, args, line)
	}
	if builtin, ok := ex.builtins[name]; ok {
		return ex.callBuiltin(name, builtin, args, line)
	}
	return nil, runtimeErr(line, ErrUndefined, "function %s is not defined", name)
}

func (ex *Executor) callBuiltin(name string, fn NativeFunc, args []Value, line int) (Value, error) {
	val, err := fn(ex, args)
	if err != nil {
		if e, isErr := err.(Err); isErr && e.line == 0 {
			e.line = line
			return nil, e
		}
		return nil, err
	}
	if val == nil {
		return Null, nil
	}
	return val, nil
}

func (ex *Executor) callFunction(fn FuncDefNode, args []Value, line int) (Value, error) {
	if len(args) > len(fn.params) {
		return nil, runtimeErr(line, nil, "function %s takes %d arguments, but got %d",
			fn.name, len(fn.params), len(args))
	}
	if limit := ex.engine.Config.Runtime.MaxCallDepth; ex.depth >= limit {
		return nil, runtimeErr(line, nil, "maximum call depth of %d exceeded in %s", limit, fn.name)
	}
	ex.depth++
	defer func() { ex.depth-- }()

	m := ex.scope.pushCall()
	defer ex.scope.pop(m)

	// defaults are bound first and overwritten by positional arguments
	for _, param := range fn.params {
		if param.def == nil {
			ex.scope.Declare(param.name, zeroValue(param.typeName))
			continue
		}
		val, err := ex.eval(param.def)
		if err != nil {
			return nil, err
		}
		ex.scope.Declare(param.name, val)
	}
	for i, arg := range args {
		ex.scope.Declare(fn.params[i].name, arg)
	}

	ctl, err := ex.execStmts(fn.body)
	if err != nil {
		return nil, err
	}
	switch ctl.kind {
	case ctlReturn:
		return ctl.value, nil
	case ctlBreak, ctlContinue:
		return nil, misplaced(ctl, "outside of a loop in function "+fn.name)
	default:
		return Null, nil
	}
}

// write prints s to the program's standard output.
func (ex *Executor) write(s string) error {
	_, err := io.WriteString(ex.out, s)
	return err
}

func runeCount(s StringValue) int {
	return utf8.RuneCountInString(string(s))
}
