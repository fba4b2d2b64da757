package minipar

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
)

var (
	debugStyle       = color.New(color.FgBlue)
	debugLabelStyle  = color.New(color.FgBlue, color.Bold)
	interactiveStyle = color.New(color.FgGreen)
	warnStyle        = color.New(color.FgYellow)
	warnLabelStyle   = color.New(color.FgYellow, color.Bold)
	errStyle         = color.New(color.FgRed)
	errLabelStyle    = color.New(color.FgRed, color.Bold)
)

var (
	logMu     sync.Mutex
	logOut    io.Writer = colorable.NewColorableStdout()
	logErrOut io.Writer = colorable.NewColorableStderr()
)

// SetLogOutput redirects interactive output (out) and diagnostics (errOut).
func SetLogOutput(out, errOut io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()

	logOut = out
	logErrOut = errOut
}

// SetColor turns coloured log output on or off for the whole process.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

func writeLog(w io.Writer, line string) {
	logMu.Lock()
	defer logMu.Unlock()

	fmt.Fprintln(w, line)
}

func LogDebug(args ...string) {
	writeLog(logErrOut, debugLabelStyle.Sprint("debug: ")+debugStyle.Sprint(strings.Join(args, " ")))
}

func LogDebugf(s string, args ...interface{}) {
	LogDebug(fmt.Sprintf(s, args...))
}

func LogInteractive(args ...string) {
	writeLog(logOut, interactiveStyle.Sprint(strings.Join(args, " ")))
}

func LogInteractivef(s string, args ...interface{}) {
	LogInteractive(fmt.Sprintf(s, args...))
}

func LogWarn(args ...string) {
	writeLog(logErrOut, warnLabelStyle.Sprint("warn: ")+warnStyle.Sprint(strings.Join(args, " ")))
}

func LogWarnf(s string, args ...interface{}) {
	LogWarn(fmt.Sprintf(s, args...))
}

func LogSafeErr(reason int, args ...string) {
	msg := strings.Join(args, " ")
	if reason == ErrAssert {
		// invariant violations are interpreter bugs, so point at the Go caller
		msg = fmt.Sprintf("%s (at %+v)", msg, stack.Caller(1))
	}
	writeLog(logErrOut, errLabelStyle.Sprint(ReasonName(reason)+": ")+errStyle.Sprint(msg))
}

func LogErr(reason int, args ...string) {
	LogSafeErr(reason, args...)
	os.Exit(reason)
}

func LogErrf(reason int, s string, args ...interface{}) {
	LogErr(reason, fmt.Sprintf(s, args...))
}
