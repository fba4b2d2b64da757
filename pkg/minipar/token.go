package minipar

import "fmt"

// Kind is the category of a lexical token.
type Kind int

const (
	Identifier Kind = iota
	NumberLiteral
	StringLiteral
	TrueLiteral
	FalseLiteral

	StringType
	IntType
	BoolType

	SeqKeyword
	ParKeyword
	CChannelKeyword
	SChannelKeyword
	FunctionKeyword
	IfKeyword
	ElseKeyword
	WhileKeyword
	SendKeyword
	ReceiveKeyword
	OutputKeyword
	ReturnKeyword
	InputKeyword
	BreakKeyword
	ContinueKeyword

	AssignOp
	EqualOp
	NotEqualOp
	LessThanOp
	GreaterThanOp
	LessEqualOp
	GreaterEqualOp
	LogicalAndOp
	LogicalOrOp
	NegationOp
	AddOp
	SubtractOp
	MultiplyOp
	DivideOp
	ModulusOp

	LeftParen
	RightParen
	LeftBrace
	RightBrace
	LeftBracket
	RightBracket
	Comma
	Semicolon
	Colon
	Dot

	EOF
)

var keywords = map[string]Kind{
	"string":    StringType,
	"int":       IntType,
	"bool":      BoolType,
	"SEQ":       SeqKeyword,
	"PAR":       ParKeyword,
	"c_channel": CChannelKeyword,
	"s_channel": SChannelKeyword,
	"function":  FunctionKeyword,
	"if":        IfKeyword,
	"else":      ElseKeyword,
	"while":     WhileKeyword,
	"send":      SendKeyword,
	"receive":   ReceiveKeyword,
	"output":    OutputKeyword,
	"return":    ReturnKeyword,
	"true":      TrueLiteral,
	"false":     FalseLiteral,
	"input":     InputKeyword,
	"break":     BreakKeyword,
	"continue":  ContinueKeyword,
}

// operators are tried longest first
var operators = []struct {
	lexeme string
	kind   Kind
}{
	{"==", EqualOp},
	{"!=", NotEqualOp},
	{"<=", LessEqualOp},
	{">=", GreaterEqualOp},
	{"&&", LogicalAndOp},
	{"||", LogicalOrOp},
	{"<", LessThanOp},
	{">", GreaterThanOp},
	{"!", NegationOp},
	{"=", AssignOp},
	{"+", AddOp},
	{"-", SubtractOp},
	{"*", MultiplyOp},
	{"/", DivideOp},
	{"%", ModulusOp},
	{"(", LeftParen},
	{")", RightParen},
	{"{", LeftBrace},
	{"}", RightBrace},
	{"[", LeftBracket},
	{"]", RightBracket},
	{",", Comma},
	{";", Semicolon},
	{":", Colon},
	{".", Dot},
}

func (k Kind) String() string {
	switch k {
	case Identifier:
		return "identifier"
	case NumberLiteral:
		return "number literal"
	case StringLiteral:
		return "string literal"
	case TrueLiteral:
		return "'true'"
	case FalseLiteral:
		return "'false'"
	case EOF:
		return "end of input"
	}

	for word, kind := range keywords {
		if kind == k {
			return "'" + word + "'"
		}
	}
	for _, op := range operators {
		if op.kind == k {
			return "'" + op.lexeme + "'"
		}
	}
	return "unknown token"
}

// isTypeKind reports whether k names a builtin type.
func isTypeKind(k Kind) bool {
	return k == StringType || k == IntType || k == BoolType
}

// Tok is a single lexical token. Tokens are immutable once produced.
type Tok struct {
	kind   Kind
	lexeme string
	// str is the decoded value of string literals
	str  string
	line int
	// trivia holds the whitespace and comments skipped before this token
	trivia string
}

func (t Tok) Kind() Kind {
	return t.kind
}

func (t Tok) Lexeme() string {
	return t.lexeme
}

func (t Tok) Line() int {
	return t.line
}

// Trivia is the skipped source text (whitespace and comments)
// immediately preceding the token.
func (t Tok) Trivia() string {
	return t.trivia
}

func (t Tok) String() string {
	switch t.kind {
	case Identifier, NumberLiteral, StringLiteral:
		return fmt.Sprintf("%s %s [line %d]", t.kind, t.lexeme, t.line)
	default:
		return fmt.Sprintf("%s [line %d]", t.kind, t.line)
	}
}
