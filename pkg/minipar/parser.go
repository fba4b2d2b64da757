package minipar

import (
	"fmt"
	"strconv"
	"strings"
)

// parser is a predictive recursive descent parser with one token of
// lookahead. In recovering mode, a syntax error inside a statement list
// is recorded and parsing resumes at the next synchronizing token.
type parser struct {
	tokens []Tok
	idx    int

	recovering bool
	errs       []error
}

// Parse transforms a token stream into a Module. It stops at the first
// syntax error, which is what execution wants.
func Parse(tokens []Tok) (*ModuleNode, error) {
	p := &parser{tokens: tokens}
	return p.module()
}

// ParseAll parses the whole token stream even in the presence of syntax
// errors, returning the statements it could parse and every error found.
func ParseAll(tokens []Tok) (*ModuleNode, []error) {
	p := &parser{tokens: tokens, recovering: true}
	module, err := p.module()
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return module, p.errs
}

func (p *parser) module() (*ModuleNode, error) {
	stmts, err := p.statements(func(k Kind) bool { return k == EOF })
	if err != nil {
		return nil, err
	}
	return &ModuleNode{stmts: stmts, position: position{line: 1}}, nil
}

func (p *parser) peek() Tok {
	return p.peekAt(0)
}

func (p *parser) peekAt(offset int) Tok {
	if p.idx+offset < len(p.tokens) {
		return p.tokens[p.idx+offset]
	}
	line := 1
	if len(p.tokens) > 0 {
		line = p.tokens[len(p.tokens)-1].line
	}
	return Tok{kind: EOF, line: line}
}

func (p *parser) advance() Tok {
	tok := p.peek()
	if tok.kind != EOF {
		p.idx++
	}
	return tok
}

// match consumes the current token if it has the given kind.
func (p *parser) match(kind Kind) bool {
	if p.peek().kind == kind {
		p.advance()
		return true
	}
	return false
}

func (p *parser) errorf(tok Tok, format string, args ...interface{}) error {
	if tok.kind == EOF {
		return Err{
			reason:  ErrSyntax,
			message: fmt.Sprintf("unexpected end of input, %s", fmt.Sprintf(format, args...)),
			line:    tok.line,
			eof:     true,
		}
	}
	return Err{
		reason:  ErrSyntax,
		message: fmt.Sprintf(format, args...),
		line:    tok.line,
	}
}

func (p *parser) expect(kind Kind) (Tok, error) {
	tok := p.peek()
	if tok.kind != kind {
		return tok, p.errorf(tok, "expected %s, but got %s", kind, describe(tok))
	}
	return p.advance(), nil
}

func describe(tok Tok) string {
	switch tok.kind {
	case Identifier, NumberLiteral, StringLiteral:
		return fmt.Sprintf("%s %s", tok.kind, tok.lexeme)
	default:
		return tok.kind.String()
	}
}

// synchronize discards tokens up to the next statement boundary. A
// semicolon is consumed; a closing brace, block keyword or end of input
// is left for the enclosing statement list.
func (p *parser) synchronize(start int) {
	for {
		switch p.peek().kind {
		case Semicolon:
			p.advance()
			return
		case RightBrace, SeqKeyword, ParKeyword, EOF:
			if p.idx == start {
				p.advance()
			}
			return
		}
		p.advance()
	}
}

// statements parses statements until stop reports true for the current
// token. Stray semicolons are skipped.
func (p *parser) statements(stop func(Kind) bool) ([]Stmt, error) {
	stmts := make([]Stmt, 0)
	for !stop(p.peek().kind) {
		if p.match(Semicolon) {
			continue
		}

		start := p.idx
		stmt, err := p.statement()
		if err != nil {
			if !p.recovering {
				return nil, err
			}
			p.errs = append(p.errs, err)
			p.synchronize(start)
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// terminate requires a semicolon after a simple statement, except right
// before a closing brace or the end of input.
func (p *parser) terminate() error {
	if p.match(Semicolon) {
		return nil
	}
	switch tok := p.peek(); tok.kind {
	case RightBrace, EOF:
		return nil
	default:
		return p.errorf(tok, "expected ';' after statement, but got %s", describe(tok))
	}
}

func (p *parser) statement() (Stmt, error) {
	tok := p.peek()

	switch tok.kind {
	case SeqKeyword, ParKeyword:
		return p.block()
	case LeftBrace:
		body, err := p.braced()
		if err != nil {
			return nil, err
		}
		return SeqNode{body: body, position: position{tok.line}}, nil
	case IfKeyword:
		return p.ifStatement()
	case WhileKeyword:
		return p.whileStatement()
	case FunctionKeyword:
		return p.functionDefinition()
	case SChannelKeyword:
		return p.serverChannel()
	}

	var stmt Stmt
	var err error
	switch tok.kind {
	case StringType, IntType, BoolType:
		stmt, err = p.declaration()
	case Identifier:
		switch p.peekAt(1).kind {
		case Identifier, Colon:
			stmt, err = p.declaration()
		case AssignOp:
			stmt, err = p.assignment()
		default:
			stmt, err = p.expressionStatement()
		}
	case OutputKeyword, InputKeyword, SendKeyword, ReceiveKeyword, LeftParen:
		stmt, err = p.expressionStatement()
	case BreakKeyword:
		p.advance()
		stmt = BreakNode{position{tok.line}}
	case ContinueKeyword:
		p.advance()
		stmt = ContinueNode{position{tok.line}}
	case ReturnKeyword:
		stmt, err = p.returnStatement()
	case CChannelKeyword:
		stmt, err = p.clientChannel()
	default:
		return nil, p.errorf(tok, "unexpected %s at the start of a statement", describe(tok))
	}
	if err != nil {
		return nil, err
	}

	if err := p.terminate(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// typeName parses a type: one of the type keywords, or any identifier
// such as float.
func (p *parser) typeName() (string, error) {
	tok := p.peek()
	if isTypeKind(tok.kind) || tok.kind == Identifier {
		p.advance()
		return tok.lexeme, nil
	}
	return "", p.errorf(tok, "expected a type name, but got %s", describe(tok))
}

// declaration parses `type ID [= expr]` and `ID: type [= expr]`.
func (p *parser) declaration() (Stmt, error) {
	start := p.peek()

	var name, declType string
	if p.peekAt(1).kind == Colon {
		nameTok, err := p.expect(Identifier)
		if err != nil {
			return nil, err
		}
		p.advance() // ':'
		declType, err = p.typeName()
		if err != nil {
			return nil, err
		}
		name = nameTok.lexeme
	} else {
		var err error
		declType, err = p.typeName()
		if err != nil {
			return nil, err
		}
		nameTok, err := p.expect(Identifier)
		if err != nil {
			return nil, err
		}
		name = nameTok.lexeme
	}

	var value Expr = ConstantNode{val: zeroValue(declType), position: position{start.line}}
	if p.match(AssignOp) {
		var err error
		value, err = p.expression()
		if err != nil {
			return nil, err
		}
	}

	return AssignNode{
		name:     name,
		declType: declType,
		value:    value,
		position: position{start.line},
	}, nil
}

func (p *parser) assignment() (Stmt, error) {
	nameTok := p.advance()
	p.advance() // '='

	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	return AssignNode{
		name:     nameTok.lexeme,
		value:    value,
		position: position{nameTok.line},
	}, nil
}

func (p *parser) expressionStatement() (Stmt, error) {
	tok := p.peek()
	expr, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, isCall := expr.(CallNode); !isCall {
		return nil, p.errorf(tok, "expression %s is not a statement", expr)
	}
	return ExprStmtNode{expr: expr, position: position{tok.line}}, nil
}

func (p *parser) returnStatement() (Stmt, error) {
	tok := p.advance()

	switch p.peek().kind {
	case Semicolon, RightBrace, EOF:
		return ReturnNode{position: position{tok.line}}, nil
	}

	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	return ReturnNode{value: value, position: position{tok.line}}, nil
}

// body parses the body of a compound statement: a braced statement list,
// a SEQ/PAR block, or a single statement.
func (p *parser) body() ([]Stmt, error) {
	switch p.peek().kind {
	case LeftBrace:
		return p.braced()
	default:
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		return []Stmt{stmt}, nil
	}
}

func (p *parser) braced() ([]Stmt, error) {
	if _, err := p.expect(LeftBrace); err != nil {
		return nil, err
	}
	stmts, err := p.statements(func(k Kind) bool {
		return k == RightBrace || k == EOF
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RightBrace); err != nil {
		return nil, err
	}
	return stmts, nil
}

// block parses SEQ and PAR. Without braces, the body extends to the next
// SEQ or PAR keyword, the end of the enclosing block, or the end of input.
func (p *parser) block() (Stmt, error) {
	tok := p.advance()

	var stmts []Stmt
	var err error
	if p.peek().kind == LeftBrace {
		stmts, err = p.braced()
	} else {
		stmts, err = p.statements(func(k Kind) bool {
			return k == SeqKeyword || k == ParKeyword || k == RightBrace || k == EOF
		})
	}
	if err != nil {
		return nil, err
	}

	if tok.kind == ParKeyword {
		return ParNode{body: stmts, position: position{tok.line}}, nil
	}
	return SeqNode{body: stmts, position: position{tok.line}}, nil
}

func (p *parser) condition() (Expr, error) {
	if _, err := p.expect(LeftParen); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RightParen); err != nil {
		return nil, err
	}
	return cond, nil
}

func (p *parser) ifStatement() (Stmt, error) {
	tok := p.advance()

	cond, err := p.condition()
	if err != nil {
		return nil, err
	}
	body, err := p.body()
	if err != nil {
		return nil, err
	}

	var elseBody []Stmt
	if p.match(ElseKeyword) {
		elseBody, err = p.body()
		if err != nil {
			return nil, err
		}
	}

	return IfNode{
		condition: cond,
		body:      body,
		elseBody:  elseBody,
		position:  position{tok.line},
	}, nil
}

func (p *parser) whileStatement() (Stmt, error) {
	tok := p.advance()

	cond, err := p.condition()
	if err != nil {
		return nil, err
	}
	body, err := p.body()
	if err != nil {
		return nil, err
	}
	return WhileNode{
		condition: cond,
		body:      body,
		position:  position{tok.line},
	}, nil
}

// functionDefinition parses `function NAME(params) [: type] body`.
func (p *parser) functionDefinition() (Stmt, error) {
	tok := p.advance()

	nameTok, err := p.expect(Identifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LeftParen); err != nil {
		return nil, err
	}

	params := make([]Param, 0)
	for p.peek().kind != RightParen {
		param, err := p.parameter()
		if err != nil {
			return nil, err
		}
		for _, prev := range params {
			if prev.name == param.name {
				return nil, p.errorf(nameTok, "duplicate parameter %s in function %s", param.name, nameTok.lexeme)
			}
		}
		params = append(params, param)

		if !p.match(Comma) {
			break
		}
	}
	if _, err := p.expect(RightParen); err != nil {
		return nil, err
	}

	returnType := ""
	if p.match(Colon) {
		returnType, err = p.typeName()
		if err != nil {
			return nil, err
		}
	}

	body, err := p.body()
	if err != nil {
		return nil, err
	}

	return FuncDefNode{
		name:       nameTok.lexeme,
		params:     params,
		returnType: returnType,
		body:       body,
		position:   position{tok.line},
	}, nil
}

// parameter parses `[type] ID [: type] [= default]`.
func (p *parser) parameter() (Param, error) {
	var param Param

	if tok := p.peek(); isTypeKind(tok.kind) ||
		(tok.kind == Identifier && p.peekAt(1).kind == Identifier) {
		p.advance()
		param.typeName = tok.lexeme
	}

	nameTok, err := p.expect(Identifier)
	if err != nil {
		return param, err
	}
	param.name = nameTok.lexeme

	if p.match(Colon) {
		param.typeName, err = p.typeName()
		if err != nil {
			return param, err
		}
	}

	if p.match(AssignOp) {
		param.def, err = p.expression()
		if err != nil {
			return param, err
		}
	}
	return param, nil
}

// clientChannel parses `c_channel NAME host port`.
func (p *parser) clientChannel() (Stmt, error) {
	tok := p.advance()

	nameTok, err := p.expect(Identifier)
	if err != nil {
		return nil, err
	}
	host, err := p.primary()
	if err != nil {
		return nil, err
	}
	port, err := p.primary()
	if err != nil {
		return nil, err
	}
	return ClientChannelNode{
		name:     nameTok.lexeme,
		host:     host,
		port:     port,
		position: position{tok.line},
	}, nil
}

// serverChannel parses `s_channel NAME { handler, description, host, port }`.
func (p *parser) serverChannel() (Stmt, error) {
	tok := p.advance()

	nameTok, err := p.expect(Identifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LeftBrace); err != nil {
		return nil, err
	}
	handlerTok, err := p.expect(Identifier)
	if err != nil {
		return nil, err
	}

	exprs := make([]Expr, 3)
	for i := range exprs {
		if _, err := p.expect(Comma); err != nil {
			return nil, err
		}
		exprs[i], err = p.expression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RightBrace); err != nil {
		return nil, err
	}

	return ServerChannelNode{
		name:        nameTok.lexeme,
		handler:     handlerTok.lexeme,
		description: exprs[0],
		host:        exprs[1],
		port:        exprs[2],
		position:    position{tok.line},
	}, nil
}

func (p *parser) expression() (Expr, error) {
	return p.logicalOr()
}

func (p *parser) logicalOr() (Expr, error) {
	left, err := p.logicalAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == LogicalOrOp {
		op := p.advance()
		right, err := p.logicalAnd()
		if err != nil {
			return nil, err
		}
		left = LogicalNode{operator: op.kind, left: left, right: right, position: position{op.line}}
	}
	return left, nil
}

func (p *parser) logicalAnd() (Expr, error) {
	left, err := p.relational()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == LogicalAndOp {
		op := p.advance()
		right, err := p.relational()
		if err != nil {
			return nil, err
		}
		left = LogicalNode{operator: op.kind, left: left, right: right, position: position{op.line}}
	}
	return left, nil
}

func isRelationalOp(k Kind) bool {
	switch k {
	case EqualOp, NotEqualOp, LessThanOp, GreaterThanOp, LessEqualOp, GreaterEqualOp:
		return true
	default:
		return false
	}
}

func (p *parser) relational() (Expr, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	if !isRelationalOp(p.peek().kind) {
		return left, nil
	}

	op := p.advance()
	right, err := p.additive()
	if err != nil {
		return nil, err
	}
	if next := p.peek(); isRelationalOp(next.kind) {
		return nil, p.errorf(next, "comparison operators do not chain, found %s after %s", next.kind, op.kind)
	}
	return RelationalNode{operator: op.kind, left: left, right: right, position: position{op.line}}, nil
}

func (p *parser) additive() (Expr, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for k := p.peek().kind; k == AddOp || k == SubtractOp; k = p.peek().kind {
		op := p.advance()
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = ArithmeticNode{operator: op.kind, left: left, right: right, position: position{op.line}}
	}
	return left, nil
}

func (p *parser) multiplicative() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for k := p.peek().kind; k == MultiplyOp || k == DivideOp || k == ModulusOp; k = p.peek().kind {
		op := p.advance()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = ArithmeticNode{operator: op.kind, left: left, right: right, position: position{op.line}}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	if k := p.peek().kind; k == NegationOp || k == SubtractOp {
		op := p.advance()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return UnaryNode{operator: op.kind, operand: operand, position: position{op.line}}, nil
	}
	return p.postfix()
}

// postfix parses indexed access and channel method calls trailing a
// primary expression.
func (p *parser) postfix() (Expr, error) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}

	for {
		switch tok := p.peek(); tok.kind {
		case LeftBracket:
			p.advance()
			index, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RightBracket); err != nil {
				return nil, err
			}
			expr = AccessNode{base: expr, index: index, position: position{tok.line}}
		case Dot:
			p.advance()
			receiver, isIdent := expr.(IdentifierNode)
			if !isIdent {
				return nil, p.errorf(tok, "methods can only be called on a channel name, not %s", expr)
			}
			method := p.peek()
			if method.kind != Identifier && method.kind != SendKeyword && method.kind != ReceiveKeyword {
				return nil, p.errorf(method, "expected a method name, but got %s", describe(method))
			}
			p.advance()
			args, err := p.arguments()
			if err != nil {
				return nil, err
			}
			expr = CallNode{
				name:      method.lexeme,
				receiver:  receiver.name,
				arguments: args,
				position:  position{tok.line},
			}
		default:
			return expr, nil
		}
	}
}

func (p *parser) arguments() ([]Expr, error) {
	if _, err := p.expect(LeftParen); err != nil {
		return nil, err
	}
	args := make([]Expr, 0)
	for p.peek().kind != RightParen {
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.match(Comma) {
			break
		}
	}
	if _, err := p.expect(RightParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) primary() (Expr, error) {
	tok := p.peek()
	pos := position{tok.line}

	switch tok.kind {
	case NumberLiteral:
		p.advance()
		if strings.Contains(tok.lexeme, ".") {
			f, err := strconv.ParseFloat(tok.lexeme, 64)
			if err != nil {
				return nil, p.errorf(tok, "could not parse number %s", tok.lexeme)
			}
			return ConstantNode{val: FloatValue(f), position: pos}, nil
		}
		n, err := strconv.ParseInt(tok.lexeme, 10, 64)
		if err != nil {
			return nil, p.errorf(tok, "integer literal %s out of range", tok.lexeme)
		}
		return ConstantNode{val: IntValue(n), position: pos}, nil
	case StringLiteral:
		p.advance()
		return ConstantNode{val: StringValue(tok.str), position: pos}, nil
	case TrueLiteral:
		p.advance()
		return ConstantNode{val: BoolValue(true), position: pos}, nil
	case FalseLiteral:
		p.advance()
		return ConstantNode{val: BoolValue(false), position: pos}, nil
	case Identifier:
		p.advance()
		if p.peek().kind == LeftParen {
			args, err := p.arguments()
			if err != nil {
				return nil, err
			}
			return CallNode{name: tok.lexeme, arguments: args, position: pos}, nil
		}
		return IdentifierNode{name: tok.lexeme, position: pos}, nil
	case OutputKeyword, SendKeyword, ReceiveKeyword:
		p.advance()
		args, err := p.arguments()
		if err != nil {
			return nil, err
		}
		return CallNode{name: tok.lexeme, arguments: args, position: pos}, nil
	case InputKeyword:
		// a bare `input` reads a line without a prompt
		p.advance()
		args := make([]Expr, 0)
		if p.peek().kind == LeftParen {
			var err error
			args, err = p.arguments()
			if err != nil {
				return nil, err
			}
		}
		return CallNode{name: tok.lexeme, arguments: args, position: pos}, nil
	case LeftParen:
		p.advance()
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RightParen); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, p.errorf(tok, "expected an expression, but got %s", describe(tok))
	}
}
