package minipar

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	eng *Engine
	ex  *Executor
	out *bytes.Buffer
}

func newHarness(t *testing.T, stdin string) *harness {
	t.Helper()
	out := &bytes.Buffer{}
	eng := NewEngine(nil)
	eng.Stdout = out
	eng.Stdin = strings.NewReader(stdin)

	ex := eng.NewExecutor()
	t.Cleanup(ex.Close)
	return &harness{eng: eng, ex: ex, out: out}
}

func run(t *testing.T, src string) (*harness, error) {
	t.Helper()
	h := newHarness(t, "")
	return h, h.ex.ExecString(src)
}

func (h *harness) get(t *testing.T, name string) Value {
	t.Helper()
	v, ok := h.ex.Get(name)
	require.True(t, ok, "%s is not defined", name)
	return v
}

func TestEvalArithmeticPrecedence(t *testing.T) {
	h, err := run(t, "x = 1 + 2 * 3;")
	require.NoError(t, err)
	assert.Equal(t, IntValue(7), h.get(t, "x"))
}

func TestEvalLogicalPrecedence(t *testing.T) {
	h, err := run(t, "x = true || false && false; y = (true || false) && false;")
	require.NoError(t, err)
	assert.Equal(t, BoolValue(true), h.get(t, "x"))
	assert.Equal(t, BoolValue(false), h.get(t, "y"))
}

func TestEvalLogicalShortCircuits(t *testing.T) {
	h, err := run(t, "x = false && nope(); y = true || nope();")
	require.NoError(t, err)
	assert.Equal(t, BoolValue(false), h.get(t, "x"))
	assert.Equal(t, BoolValue(true), h.get(t, "y"))
}

func TestEvalScoping(t *testing.T) {
	t.Run("assignment in if body is visible afterwards", func(t *testing.T) {
		h, err := run(t, "x = 1; if (x == 1) { y = 2; }")
		require.NoError(t, err)
		assert.Equal(t, IntValue(2), h.get(t, "y"))
	})

	t.Run("assignment updates the outer binding", func(t *testing.T) {
		h, err := run(t, "i = 0; while (i < 3) { i = i + 1; }")
		require.NoError(t, err)
		assert.Equal(t, IntValue(3), h.get(t, "i"))
	})

	t.Run("declarations are local to their block", func(t *testing.T) {
		h, err := run(t, "x = 1; if (true) { int x = 5; int z = x; }")
		require.NoError(t, err)
		assert.Equal(t, IntValue(1), h.get(t, "x"))
		_, ok := h.ex.Get("z")
		assert.False(t, ok)
	})

	t.Run("functions update globals", func(t *testing.T) {
		h, err := run(t, "count = 0; function inc() { count = count + 1; } inc(); inc();")
		require.NoError(t, err)
		assert.Equal(t, IntValue(2), h.get(t, "count"))
	})

	t.Run("function locals do not leak", func(t *testing.T) {
		h, err := run(t, "function f() { temp = 1; } f();")
		require.NoError(t, err)
		_, ok := h.ex.Get("temp")
		assert.False(t, ok)
	})

	t.Run("callee cannot see caller locals", func(t *testing.T) {
		_, err := run(t, `
function peek() { return hidden; }
function outer() { int hidden = 1; return peek(); }
outer();`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUndefined))
		assert.Contains(t, err.Error(), "hidden is not defined [line 2]")
	})
}

func TestEvalDivisionByZero(t *testing.T) {
	for _, src := range []string{"x = 5 / 0;", "x = 5 % 0;", "x = 5.5 / 0.0;", `x = 1 % "0";`} {
		t.Run(src, func(t *testing.T) {
			_, err := run(t, src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDivisionByZero))
			assert.Equal(t, ErrRuntime, ReasonOf(err))
		})
	}
}

func TestEvalCoercion(t *testing.T) {
	tests := []struct {
		expr string
		want Value
	}{
		{`"2" + 3`, IntValue(5)},
		{`"2.5" * 2`, FloatValue(5)},
		{`"ab" + 1`, StringValue("ab1")},
		{`1 + "ab"`, StringValue("1ab")},
		{`"ab" * 3`, StringValue("ababab")},
		{`2 * "ab"`, StringValue("abab")},
		{`true + 1`, IntValue(2)},
		{`7 / 2`, FloatValue(3.5)},
		{`6 / 2`, IntValue(3)},
		{`1.5 + 1.5`, FloatValue(3)},
		{`-7 % 3`, IntValue(2)},
		{`7 % -3`, IntValue(-2)},
		{`7.5 % 2`, FloatValue(1.5)},
		{`-"4"`, IntValue(-4)},
		{`"10" > 9`, BoolValue(true)},
		{`"10" == 10.0`, BoolValue(true)},
		{`"abc" < "abd"`, BoolValue(true)},
		{`"abc" == 1`, BoolValue(false)},
		{`"abc" != 1`, BoolValue(true)},
		{`true == 1`, BoolValue(true)},
		{`"hey"[1]`, StringValue("e")},
		{`"héllo"[1]`, StringValue("é")},
		{`"hey"[-1]`, StringValue("y")},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			h, err := run(t, "v = "+tt.expr+";")
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.get(t, "v"))
		})
	}
}

func TestEvalOperandErrors(t *testing.T) {
	tests := []struct {
		src   string
		cause error
	}{
		{`x = "abc" < 1;`, ErrOperand},
		{`x = "a" - 1;`, ErrOperand},
		{`x = -"a";`, ErrOperand},
		{`x = 5[0];`, ErrAccess},
		{`x = "abc"[3];`, ErrAccess},
		{`x = "abc"["a"];`, ErrAccess},
		{`x = y;`, ErrUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := run(t, tt.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.cause), "got %v", err)
			assert.Equal(t, ErrRuntime, ReasonOf(err))
		})
	}
}

func TestEvalControlFlow(t *testing.T) {
	h, err := run(t, `
i = 0;
total = 0;
while (i < 10) {
	i = i + 1;
	if (i % 2 == 0) { continue; }
	if (i > 7) { break; }
	total = total + i;
}
if (total == 16) { result = "ok"; } else { result = "wrong"; }
`)
	require.NoError(t, err)
	assert.Equal(t, IntValue(9), h.get(t, "i"))
	assert.Equal(t, IntValue(16), h.get(t, "total"))
	assert.Equal(t, StringValue("ok"), h.get(t, "result"))
}

func TestEvalMisplacedControl(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{"top level break", "break;", "break outside of a loop"},
		{"top level continue", "x = 1;\ncontinue;", "continue outside of a loop [line 2]"},
		{"top level return", "return 1;", "return outside of a function"},
		{"break in if at top level", "if (true) { break; }", "break outside of a loop"},
		{"break in function", "function f() { break; } f();", "break outside of a loop in function f"},
		{"return from PAR branch", "PAR { return; }", "return escapes a PAR branch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMisplacedControl))
			assert.Equal(t, ErrRuntime, ReasonOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestEvalFunctions(t *testing.T) {
	h, err := run(t, `
function add(int a, int b = 10) { return a + b; }
function fact(n) {
	if (n <= 1) { return 1; }
	return n * fact(n - 1);
}
function zero(int a) { return a; }
function none(a) { return a; }
function noReturn() { scratch = 1; }
function len(s) { return 42; }

x = add(1);
y = add(1, 2);
f = fact(5);
z = zero();
n = none();
r = noReturn();
l = len("abc");
`)
	require.NoError(t, err)
	assert.Equal(t, IntValue(11), h.get(t, "x"))
	assert.Equal(t, IntValue(3), h.get(t, "y"))
	assert.Equal(t, IntValue(120), h.get(t, "f"))
	assert.Equal(t, IntValue(0), h.get(t, "z"))
	assert.Equal(t, Null, h.get(t, "n"))
	assert.Equal(t, Null, h.get(t, "r"))
	assert.Equal(t, IntValue(42), h.get(t, "l"))
}

func TestEvalCallErrors(t *testing.T) {
	t.Run("undefined function", func(t *testing.T) {
		_, err := run(t, "x = 1;\nnope(x);")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUndefined))
		assert.Equal(t, "function nope is not defined [line 2]", err.Error())
	})

	t.Run("too many arguments", func(t *testing.T) {
		_, err := run(t, "function f(a) { return a; } f(1, 2);")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "function f takes 1 arguments, but got 2")
	})

	t.Run("runaway recursion", func(t *testing.T) {
		h := newHarness(t, "")
		h.eng.Config.Runtime.MaxCallDepth = 50
		err := h.ex.ExecString("function f(n) { return f(n + 1); } f(0);")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maximum call depth of 50 exceeded")
	})

	t.Run("builtin errors carry the line", func(t *testing.T) {
		_, err := run(t, "x = 1;\ny = sqrt(\"four\");")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOperand))
		assert.Contains(t, err.Error(), "sqrt() takes a number argument")
		assert.Contains(t, err.Error(), "[line 2]")
	})
}

func TestEvalParIsolation(t *testing.T) {
	h, err := run(t, `
counter = 0;
PAR {
	SEQ { counter = counter + 1; print(counter); }
	SEQ { counter = counter + 1; print(counter); }
}
print(counter);
`)
	require.NoError(t, err)
	assert.Equal(t, "1\n1\n0\n", h.out.String())
	assert.Equal(t, IntValue(0), h.get(t, "counter"))
}

func TestEvalParFunctionsStayInBranch(t *testing.T) {
	h, err := run(t, `
function f() { return 1; }
PAR {
	SEQ { function g() { return f() + 1; } print(g()); }
}
print(f());
`)
	require.NoError(t, err)
	assert.Equal(t, "2\n1\n", h.out.String())
	assert.NotContains(t, h.ex.Callables(), "g")
	assert.Contains(t, h.ex.Callables(), "f")
}

func TestEvalParCollectsEveryFailure(t *testing.T) {
	h, err := run(t, `
PAR {
	a = 1 / 0;
	b = nope();
	print("survivor");
}
print("unreachable");
`)
	require.Error(t, err)
	assert.Equal(t, "survivor\n", h.out.String())

	var parErr *ParError
	require.True(t, errors.As(err, &parErr))
	assert.Equal(t, 2, parErr.Line)
	require.Len(t, parErr.Branches, 2)
	assert.Equal(t, 0, parErr.Branches[0].Index)
	assert.Equal(t, 1, parErr.Branches[1].Index)
	assert.NotEqual(t, parErr.Branches[0].ID, parErr.Branches[1].ID)

	assert.True(t, errors.Is(err, ErrDivisionByZero))
	assert.True(t, errors.Is(err, ErrUndefined))
	assert.Equal(t, ErrRuntime, ReasonOf(err))
}

func TestEvalParWithLimit(t *testing.T) {
	h := newHarness(t, "")
	h.eng.Config.Runtime.MaxParallel = 1
	err := h.ex.ExecString("PAR { print(1); print(2); print(3); }")
	require.NoError(t, err)

	lines := strings.Fields(h.out.String())
	assert.ElementsMatch(t, []string{"1", "2", "3"}, lines)
}

func TestEvalSemanticErrorsStopExecution(t *testing.T) {
	h, err := run(t, `print("before"); if (1) { print("inside"); }`)
	require.Error(t, err)
	assert.Equal(t, ErrSemantic, ReasonOf(err))
	assert.Empty(t, h.out.String())
}

func TestEvalPrintAndOutput(t *testing.T) {
	h, err := run(t, `print("a", 1, 2.0, true); output("b");`)
	require.NoError(t, err)
	assert.Equal(t, "a 1 2.0 true\nb\n", h.out.String())
}

func TestEvalInput(t *testing.T) {
	h := newHarness(t, "42\n3.5\nhello world\n")
	err := h.ex.ExecString(`a = input(); b = input; c = input("name? "); d = input();`)
	require.NoError(t, err)

	assert.Equal(t, IntValue(42), h.get(t, "a"))
	assert.Equal(t, FloatValue(3.5), h.get(t, "b"))
	assert.Equal(t, StringValue("hello world"), h.get(t, "c"))
	assert.Equal(t, StringValue(""), h.get(t, "d"))
	assert.Equal(t, "name? ", h.out.String())
}

func TestEvalBuiltins(t *testing.T) {
	tests := []struct {
		expr string
		want Value
	}{
		{`to_number("12")`, IntValue(12)},
		{`to_number(" 1.5 ")`, FloatValue(1.5)},
		{`to_number(true)`, IntValue(1)},
		{`to_string(12) + "!"`, StringValue("12!")},
		{`to_bool("false")`, BoolValue(false)},
		{`to_bool("x")`, BoolValue(true)},
		{`to_bool(0)`, BoolValue(false)},
		{`len("héllo")`, IntValue(5)},
		{`isalpha("abc")`, BoolValue(true)},
		{`isalpha("ab1")`, BoolValue(false)},
		{`isnum("123")`, BoolValue(true)},
		{`isnum("")`, BoolValue(false)},
		{`pow(2, 10)`, IntValue(1024)},
		{`pow(2, -1)`, FloatValue(0.5)},
		{`sqrt(16)`, FloatValue(4)},
		{`floor(2.7)`, IntValue(2)},
		{`ceil(2.1)`, IntValue(3)},
		{`round(2.5)`, IntValue(3)},
		{`abs(-3)`, IntValue(3)},
		{`abs(-2.5)`, FloatValue(2.5)},
		{`exp(0)`, FloatValue(1)},
		{`floor(pi)`, IntValue(3)},
		{`round(e * 100)`, IntValue(272)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			h, err := run(t, "v = "+tt.expr+";")
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.get(t, "v"))
		})
	}
}

func TestEvalBuiltinErrors(t *testing.T) {
	for _, src := range []string{
		`to_number("abc");`,
		`len(1);`,
		`pow(1);`,
		`sin();`,
		`input(1, 2);`,
	} {
		t.Run(src, func(t *testing.T) {
			_, err := run(t, src)
			require.Error(t, err)
			assert.Equal(t, ErrRuntime, ReasonOf(err))
		})
	}
}

func TestLoadFunc(t *testing.T) {
	h := newHarness(t, "")
	h.ex.LoadFunc("twice", func(ex *Executor, in []Value) (Value, error) {
		return StringValue(strings.Repeat(in[0].String(), 2)), nil
	})

	require.NoError(t, h.ex.ExecString(`x = twice("ab");`))
	assert.Equal(t, StringValue("abab"), h.get(t, "x"))
}

func TestExecutorKeepsStateAcrossPrograms(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.ex.ExecString("function sq(n) { return n * n; } base = 3;"))
	require.NoError(t, h.ex.ExecString("x = sq(base);"))
	assert.Equal(t, IntValue(9), h.get(t, "x"))
}

func TestEngineExec(t *testing.T) {
	out := &bytes.Buffer{}
	eng := NewEngine(nil)
	eng.Stdout = out

	require.NoError(t, eng.Exec(strings.NewReader(`SEQ print("hello");`)))
	assert.Equal(t, "hello\n", out.String())

	err := eng.Exec(strings.NewReader("x = ;"))
	assert.Equal(t, ErrSyntax, ReasonOf(err))
	err = eng.Exec(strings.NewReader("x = `;"))
	assert.Equal(t, ErrLex, ReasonOf(err))
}
