package minipar

import (
	"errors"
	"fmt"
	"strings"
)

// Error reasons are enumerated here to be used in the Err struct,
// the error type shared across all MiniPar APIs. The reason doubles
// as the process exit code of the minipar command.
const (
	ErrUnknown  = 0
	ErrSyntax   = 1
	ErrRuntime  = 2
	ErrLex      = 3
	ErrSemantic = 4
	ErrSystem   = 40
	ErrAssert   = 100
)

// Sentinel causes used to classify runtime errors with errors.Is.
var (
	ErrDivisionByZero   = errors.New("division/modulo by zero")
	ErrUndefined        = errors.New("undefined name")
	ErrChannel          = errors.New("invalid channel operation")
	ErrMisplacedControl = errors.New("misplaced control statement")
	ErrOperand          = errors.New("invalid operand type")
	ErrAccess           = errors.New("invalid indexed access")
)

// Err is the error returned by every stage of the interpreter.
type Err struct {
	reason  int
	message string
	line    int
	cause   error
	// eof is set on syntax errors raised because input ended early,
	// which the repl uses to keep reading lines.
	eof bool
}

func (e Err) Error() string {
	if e.line > 0 {
		return fmt.Sprintf("%s [line %d]", e.message, e.line)
	}
	return e.message
}

// Reason reports which stage of the interpreter raised the error.
func (e Err) Reason() int {
	return e.reason
}

// Line is the source line the error was raised at, or 0 if unknown.
func (e Err) Line() int {
	return e.line
}

func (e Err) Unwrap() error {
	return e.cause
}

func runtimeErr(line int, cause error, format string, args ...interface{}) Err {
	return Err{
		reason:  ErrRuntime,
		message: fmt.Sprintf(format, args...),
		line:    line,
		cause:   cause,
	}
}

// ReasonName is the human-readable name of an error reason.
func ReasonName(reason int) string {
	switch reason {
	case ErrLex:
		return "lex error"
	case ErrSyntax:
		return "syntax error"
	case ErrSemantic:
		return "semantic error"
	case ErrRuntime:
		return "runtime error"
	case ErrSystem:
		return "system error"
	case ErrAssert:
		return "invariant violation"
	default:
		return "error"
	}
}

// ReasonOf extracts the reason code from any error produced by this package.
func ReasonOf(err error) int {
	var e Err
	if errors.As(err, &e) {
		return e.reason
	}
	var pe *ParError
	if errors.As(err, &pe) {
		return ErrRuntime
	}
	return ErrUnknown
}

// IsIncomplete reports whether err is a syntax error caused by input
// ending in the middle of a statement.
func IsIncomplete(err error) bool {
	var e Err
	return errors.As(err, &e) && e.eof
}

// BranchError is the failure of a single PAR branch.
type BranchError struct {
	ID    string
	Index int
	Err   error
}

func (b BranchError) Error() string {
	return fmt.Sprintf("branch %d (%s): %s", b.Index, b.ID, b.Err)
}

func (b BranchError) Unwrap() error {
	return b.Err
}

// ParError aggregates the failures of every branch of a PAR block.
// It is only reported once all branches have finished.
type ParError struct {
	Line     int
	Branches []BranchError
}

func (e *ParError) Error() string {
	msgs := make([]string, len(e.Branches))
	for i, b := range e.Branches {
		msgs[i] = b.Error()
	}
	return fmt.Sprintf("%d of PAR block's branches failed [line %d]:\n\t%s",
		len(e.Branches), e.Line, strings.Join(msgs, "\n\t"))
}

func (e *ParError) Unwrap() []error {
	errs := make([]error, len(e.Branches))
	for i, b := range e.Branches {
		errs[i] = b
	}
	return errs
}

// Wrap turns a foreign error into an Err with the given reason.
func Wrap(reason int, err error) Err {
	return Err{
		reason:  reason,
		message: err.Error(),
		cause:   err,
	}
}
