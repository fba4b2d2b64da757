package minipar

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *ModuleNode {
	t.Helper()
	tokens, err := Scan(src)
	require.NoError(t, err)
	module, err := Parse(tokens)
	require.NoError(t, err)
	return module
}

func parseErr(t *testing.T, src string) Err {
	t.Helper()
	tokens, err := Scan(src)
	require.NoError(t, err)
	_, err = Parse(tokens)
	require.Error(t, err)

	var e Err
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ErrSyntax, e.Reason())
	return e
}

func constant(v Value) ConstantNode {
	return ConstantNode{val: v}
}

func TestParseExpressionPrecedence(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Expr
	}{
		{
			name: "multiplication binds tighter than addition",
			src:  "x = 1 + 2 * 3;",
			want: ArithmeticNode{
				operator: AddOp,
				left:     constant(IntValue(1)),
				right: ArithmeticNode{
					operator: MultiplyOp,
					left:     constant(IntValue(2)),
					right:    constant(IntValue(3)),
				},
			},
		},
		{
			name: "and binds tighter than or",
			src:  "x = true || false && false;",
			want: LogicalNode{
				operator: LogicalOrOp,
				left:     constant(BoolValue(true)),
				right: LogicalNode{
					operator: LogicalAndOp,
					left:     constant(BoolValue(false)),
					right:    constant(BoolValue(false)),
				},
			},
		},
		{
			name: "subtraction is left associative",
			src:  "x = 10 - 4 - 3;",
			want: ArithmeticNode{
				operator: SubtractOp,
				left: ArithmeticNode{
					operator: SubtractOp,
					left:     constant(IntValue(10)),
					right:    constant(IntValue(4)),
				},
				right: constant(IntValue(3)),
			},
		},
		{
			name: "relational below arithmetic",
			src:  "x = a + 1 >= b * 2 && !done;",
			want: LogicalNode{
				operator: LogicalAndOp,
				left: RelationalNode{
					operator: GreaterEqualOp,
					left: ArithmeticNode{
						operator: AddOp,
						left:     IdentifierNode{name: "a"},
						right:    constant(IntValue(1)),
					},
					right: ArithmeticNode{
						operator: MultiplyOp,
						left:     IdentifierNode{name: "b"},
						right:    constant(IntValue(2)),
					},
				},
				right: UnaryNode{operator: NegationOp, operand: IdentifierNode{name: "done"}},
			},
		},
		{
			name: "parentheses and unary minus",
			src:  "x = -(1 + 2.5) % 2;",
			want: ArithmeticNode{
				operator: ModulusOp,
				left: UnaryNode{
					operator: SubtractOp,
					operand: ArithmeticNode{
						operator: AddOp,
						left:     constant(IntValue(1)),
						right:    constant(FloatValue(2.5)),
					},
				},
				right: constant(IntValue(2)),
			},
		},
		{
			name: "calls and indexed access",
			src:  `x = len(s)[0] + f("a", b);`,
			want: ArithmeticNode{
				operator: AddOp,
				left: AccessNode{
					base:  CallNode{name: "len", arguments: []Expr{IdentifierNode{name: "s"}}},
					index: constant(IntValue(0)),
				},
				right: CallNode{name: "f", arguments: []Expr{constant(StringValue("a")), IdentifierNode{name: "b"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			module := mustParse(t, tt.src)
			require.Len(t, module.stmts, 1)

			assign, ok := module.stmts[0].(AssignNode)
			require.True(t, ok, "got %s", module.stmts[0])
			if diff := cmp.Diff(tt.want.String(), assign.value.String()); diff != "" {
				t.Errorf("expression mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDeclarations(t *testing.T) {
	module := mustParse(t, `int a = 1; b: string = "x"; float c = 2.5; bool d; e: int;`)
	require.Len(t, module.stmts, 5)

	want := []struct {
		name, declType string
		value          Value
	}{
		{"a", "int", IntValue(1)},
		{"b", "string", StringValue("x")},
		{"c", "float", FloatValue(2.5)},
		{"d", "bool", BoolValue(false)},
		{"e", "int", IntValue(0)},
	}
	for i, w := range want {
		assign, ok := module.stmts[i].(AssignNode)
		require.True(t, ok)
		assert.Equal(t, w.name, assign.name)
		assert.Equal(t, w.declType, assign.declType)

		value, ok := assign.value.(ConstantNode)
		require.True(t, ok)
		assert.Equal(t, w.value, value.val)
	}
}

func TestParseBlocks(t *testing.T) {
	t.Run("implicit bodies end at the next block keyword", func(t *testing.T) {
		module := mustParse(t, "SEQ\n a = 1;\n b = 2;\nPAR\n c = 3;\n d = 4;\n")
		require.Len(t, module.stmts, 2)

		seq, ok := module.stmts[0].(SeqNode)
		require.True(t, ok)
		assert.Len(t, seq.body, 2)

		par, ok := module.stmts[1].(ParNode)
		require.True(t, ok)
		assert.Len(t, par.body, 2)
	})

	t.Run("braced bodies nest", func(t *testing.T) {
		module := mustParse(t, "PAR { SEQ { a = 1; b = 2; } { c = 3 } d = 4; }")
		require.Len(t, module.stmts, 1)

		par, ok := module.stmts[0].(ParNode)
		require.True(t, ok)
		require.Len(t, par.body, 3)
		assert.IsType(t, SeqNode{}, par.body[0])
		assert.IsType(t, SeqNode{}, par.body[1])
		assert.IsType(t, AssignNode{}, par.body[2])
	})

	t.Run("implicit body inside braces ends at the brace", func(t *testing.T) {
		module := mustParse(t, "SEQ { PAR a = 1; b = 2; } c = 3;")
		require.Len(t, module.stmts, 2)
	})
}

func TestParseStatements(t *testing.T) {
	src := `
function add(int a, b: int = 2, c) : int {
	return a + b;
}
if (x > 1) y = 1; else { y = 2 }
while (i < 10) {
	i = i + 1;
	if (i == 5) { break; }
	continue;
}
print("done", x);
c_channel cli "localhost" 9000;
s_channel srv { add, "adder", "localhost", 9000 }
cli.send("abc");
cli.close();
return;
`
	module := mustParse(t, src)
	require.Len(t, module.stmts, 9)

	fn, ok := module.stmts[0].(FuncDefNode)
	require.True(t, ok)
	assert.Equal(t, "add", fn.name)
	assert.Equal(t, "int", fn.returnType)
	require.Len(t, fn.params, 3)
	assert.Equal(t, Param{name: "a", typeName: "int"}, fn.params[0])
	assert.Equal(t, "b", fn.params[1].name)
	assert.Equal(t, "int", fn.params[1].typeName)
	assert.NotNil(t, fn.params[1].def)
	assert.Equal(t, Param{name: "c"}, fn.params[2])

	ifNode, ok := module.stmts[1].(IfNode)
	require.True(t, ok)
	assert.Len(t, ifNode.body, 1)
	assert.Len(t, ifNode.elseBody, 1)

	while, ok := module.stmts[2].(WhileNode)
	require.True(t, ok)
	assert.Len(t, while.body, 3)

	call, ok := module.stmts[3].(ExprStmtNode)
	require.True(t, ok)
	assert.Equal(t, `Call print (Constant "done", Identifier 'x')`, call.String())

	client, ok := module.stmts[4].(ClientChannelNode)
	require.True(t, ok)
	assert.Equal(t, "cli", client.name)

	server, ok := module.stmts[5].(ServerChannelNode)
	require.True(t, ok)
	assert.Equal(t, "srv", server.name)
	assert.Equal(t, "add", server.handler)

	send, ok := module.stmts[6].(ExprStmtNode).expr.(CallNode)
	require.True(t, ok)
	assert.Equal(t, "send", send.name)
	assert.Equal(t, "cli", send.receiver)

	closeCall, ok := module.stmts[7].(ExprStmtNode).expr.(CallNode)
	require.True(t, ok)
	assert.Equal(t, "close", closeCall.name)
	assert.Empty(t, closeCall.arguments)

	ret, ok := module.stmts[8].(ReturnNode)
	require.True(t, ok)
	assert.Nil(t, ret.value)
}

func TestParseStraySemicolons(t *testing.T) {
	module := mustParse(t, ";; x = 1;; ; y = 2;")
	assert.Len(t, module.stmts, 2)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		line    int
		message string
	}{
		{"missing expression", "x = 1;\ny = ;", 2, "expected an expression"},
		{"missing semicolon", "x = 1\ny = 2;", 2, "expected ';'"},
		{"chained comparison", "x = 1 < 2 < 3;", 1, "do not chain"},
		{"expression statement", "x + 1;", 1, "not a statement"},
		{"stray closing brace", "x = 1; }", 1, "unexpected '}'"},
		{"bad channel handler", "s_channel s { 1, \"d\", \"h\", 1 }", 1, "expected identifier"},
		{"duplicate parameter", "function f(a, a) {}", 1, "duplicate parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := parseErr(t, tt.src)
			assert.Equal(t, tt.line, e.Line())
			assert.Contains(t, e.Error(), tt.message)
			assert.False(t, IsIncomplete(e))
		})
	}
}

func TestParseIncompleteInput(t *testing.T) {
	for _, src := range []string{
		"while (x < 1) {",
		"function f(a,",
		"x = 1 +",
		"if (x) { y = 1; } else",
	} {
		e := parseErr(t, src)
		assert.True(t, IsIncomplete(e), "%q should be incomplete", src)
	}
}

func TestParseAllRecovers(t *testing.T) {
	tokens, err := Scan("x = ;\ny = 2;\nz = * 3;\nif (y) { a = ; b = 1; }\nw = 4;")
	require.NoError(t, err)

	module, errs := ParseAll(tokens)
	require.Len(t, errs, 3)
	lines := []int{}
	for _, e := range errs {
		lines = append(lines, e.(Err).Line())
	}
	assert.Equal(t, []int{1, 3, 4}, lines)

	require.Len(t, module.stmts, 3)
	assert.Equal(t, "y", module.stmts[0].(AssignNode).name)
	ifNode := module.stmts[1].(IfNode)
	require.Len(t, ifNode.body, 1)
	assert.Equal(t, "b", ifNode.body[0].(AssignNode).name)
	assert.Equal(t, "w", module.stmts[2].(AssignNode).name)
}

func TestParseAllTerminatesOnStrayTokens(t *testing.T) {
	tokens, err := Scan("} } ); x = 1;")
	require.NoError(t, err)

	module, errs := ParseAll(tokens)
	assert.Len(t, errs, 3)
	require.Len(t, module.stmts, 1)
}
