package minipar

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	SetLogOutput(out, errOut)

	noColor := color.NoColor
	SetColor(false)
	t.Cleanup(func() {
		SetLogOutput(colorable.NewColorableStdout(), colorable.NewColorableStderr())
		color.NoColor = noColor
	})
	return out, errOut
}

func TestLogLevels(t *testing.T) {
	out, errOut := captureLogs(t)

	LogInteractivef("minipar v%s", "1")
	LogDebug("lex ->", "Identifier 'x'")
	LogWarnf("%d channels left open", 2)
	LogSafeErr(ErrRuntime, "x is not defined [line 3]")

	assert.Equal(t, "minipar v1\n", out.String())
	assert.Equal(t, []string{
		"debug: lex -> Identifier 'x'",
		"warn: 2 channels left open",
		"runtime error: x is not defined [line 3]",
	}, strings.Split(strings.TrimSpace(errOut.String()), "\n"))
}

func TestLogInvariantViolationNamesCaller(t *testing.T) {
	_, errOut := captureLogs(t)

	LogSafeErr(ErrAssert, "unknown statement")
	assert.Contains(t, errOut.String(), "invariant violation: unknown statement (at ")
	assert.Contains(t, errOut.String(), "log_test.go")
}

func TestDebugExecLogsParBranches(t *testing.T) {
	_, errOut := captureLogs(t)

	h := newHarness(t, "")
	h.eng.Debug.Exec = true
	assert.NoError(t, h.ex.ExecString("PAR { x = 1; }"))
	assert.Contains(t, errOut.String(), "debug: exec -> PAR")
	assert.Contains(t, errOut.String(), "debug: par branch ")
}
