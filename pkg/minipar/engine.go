package minipar

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Engine holds the settings shared by every Executor it creates. A single
// Engine may run many programs one after another.
type Engine struct {
	Config      *Config
	Permissions PermissionsConfig
	Debug       DebugConfig

	// Stdout and Stdin are the program's console. They default to the
	// process's standard streams.
	Stdout io.Writer
	Stdin  io.Reader
}

// PermissionsConfig defines an Executor's permissions to operating
// system interfaces
type PermissionsConfig struct {
	Net bool
}

// DebugConfig defines any debugging flags referenced at runtime
type DebugConfig struct {
	Lex   bool
	Parse bool
	Exec  bool
	Dump  bool
}

// NewEngine returns an Engine with network access allowed.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		Config:      cfg,
		Permissions: PermissionsConfig{Net: true},
	}
}

// NewExecutor creates an Executor with a fresh global frame and every
// builtin loaded.
func (eng *Engine) NewExecutor() *Executor {
	if eng.Config == nil {
		eng.Config = DefaultConfig()
	}
	stdout, stdin := eng.Stdout, eng.Stdin
	if stdout == nil {
		stdout = os.Stdout
	}
	if stdin == nil {
		stdin = os.Stdin
	}

	ex := &Executor{
		engine:    eng,
		scope:     newScope(),
		functions: make(map[string]FuncDefNode),
		conns:     newConnTable(),
		builtins:  make(map[string]NativeFunc),
		out:       &syncWriter{w: stdout},
		in:        &lineReader{r: bufio.NewReader(stdin)},
	}
	ex.LoadEnvironment()
	return ex
}

// Exec runs a MiniPar program read from input on a new Executor.
func (eng *Engine) Exec(input io.Reader) error {
	ex := eng.NewExecutor()
	defer ex.Close()
	return ex.Exec(input)
}

// Exec scans, parses, checks and runs a program on this Executor, so
// that successive calls share globals and functions. It stops at the
// first error from any stage.
func (ex *Executor) Exec(input io.Reader) error {
	src, err := io.ReadAll(input)
	if err != nil {
		return Err{
			reason:  ErrSystem,
			message: fmt.Sprintf("could not read program: %s", err),
			cause:   err,
		}
	}
	return ex.ExecString(string(src))
}

// ExecString is Exec for a program already in memory.
func (ex *Executor) ExecString(src string) error {
	debug := ex.engine.Debug

	tokens, err := Scan(src)
	if err != nil {
		return err
	}
	if debug.Lex {
		for _, tok := range tokens {
			LogDebug("lex ->", tok.String())
		}
	}

	module, err := Parse(tokens)
	if err != nil {
		return err
	}
	if debug.Parse {
		for _, stmt := range module.stmts {
			LogDebug("parse ->", stmt.String())
		}
	}

	if err := Check(module, ex.Callables()...); err != nil {
		return err
	}

	err = ex.Run(module)
	if debug.Dump {
		ex.Dump()
	}
	return err
}

// Dump prints the current state of the Executor's global heap
func (ex *Executor) Dump() {
	LogDebug("frame dump", ex.scope.String())
}

// Close releases every channel the Executor still holds open.
func (ex *Executor) Close() {
	ex.conns.closeAll()
}
