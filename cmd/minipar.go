package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/thesephist/minipar/pkg/minipar"
)

const Version = "0.2.0"

var (
	cfgFile    string
	verbose    bool
	debugLex   bool
	debugParse bool
	debugExec  bool
	dump       bool
	noNet      bool
	noColor    bool

	cfg *minipar.Config
)

var rootCmd = &cobra.Command{
	Use:   "minipar [file]",
	Short: "MiniPar interpreter",
	Long: `MiniPar is a small imperative language with SEQ and PAR blocks
and TCP channels.

By default, minipar interprets from stdin.
	minipar < main.mp
Run MiniPar programs from source files by passing them to the interpreter.
	minipar main.mp
With no arguments on a terminal, minipar starts an interactive repl.`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runFile(args[0])
		}
		if isTerminal(os.Stdin) {
			return repl()
		}
		return newEngine().Exec(os.Stdin)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a MiniPar program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFile(args[0])
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens <file>",
	Short: "Print the tokens of a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readSource(args[0])
		if err != nil {
			return err
		}
		tokens, scanErr := minipar.Scan(src)

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Line", "Kind", "Lexeme"})
		for _, tok := range tokens {
			table.Append([]string{strconv.Itoa(tok.Line()), tok.Kind().String(), tok.Lexeme()})
		}
		table.Render()
		return scanErr
	},
}

var astCmd = &cobra.Command{
	Use:   "ast <file>",
	Short: "Print the syntax tree of a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		module, err := parseFile(args[0])
		if err != nil {
			return err
		}

		printer := spew.ConfigState{
			Indent:                  "  ",
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			SortKeys:                true,
		}
		printer.Fdump(cmd.OutOrStdout(), module)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Report every syntax error, then semantic errors, without running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readSource(args[0])
		if err != nil {
			return err
		}
		tokens, err := minipar.Scan(src)
		if err != nil {
			return err
		}

		module, errs := minipar.ParseAll(tokens)
		if len(errs) > 0 {
			for _, e := range errs[:len(errs)-1] {
				minipar.LogSafeErr(minipar.ReasonOf(e), e.Error())
			}
			return errs[len(errs)-1]
		}

		if err := minipar.Check(module, newEngine().NewExecutor().Callables()...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return repl()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "minipar v%s\n", Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file, .toml or .yaml (default: $MINIPAR_CONFIG or ./minipar.toml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log all interpreter debug information")
	flags.BoolVar(&debugLex, "debug-lex", false, "log lexer output")
	flags.BoolVar(&debugParse, "debug-parse", false, "log parser output")
	flags.BoolVar(&debugExec, "debug-exec", false, "log executed statements, PAR branches and channels")
	flags.BoolVar(&dump, "dump", false, "dump global frame after eval")
	flags.BoolVar(&noNet, "no-net", false, "fail all channel declarations")
	flags.BoolVar(&noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(runCmd, tokensCmd, astCmd, checkCmd, replCmd, versionCmd)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = minipar.LoadConfig(cfgFile)
	} else {
		cfg, err = minipar.LoadConfigFromEnv()
	}
	if err != nil {
		return minipar.Wrap(minipar.ErrSystem, err)
	}

	switch {
	case noColor || cfg.Log.Color == "never":
		minipar.SetColor(false)
	case cfg.Log.Color == "always":
		minipar.SetColor(true)
	default:
		minipar.SetColor(isTerminal(os.Stdout) && isTerminal(os.Stderr))
	}
	return nil
}

func newEngine() *minipar.Engine {
	eng := minipar.NewEngine(cfg)
	eng.Permissions.Net = !noNet
	eng.Debug = minipar.DebugConfig{
		Lex:   debugLex || verbose,
		Parse: debugParse || verbose,
		Exec:  debugExec || verbose || cfg.Log.Debug,
		Dump:  dump || verbose,
	}
	return eng
}

func readSource(filePath string) (string, error) {
	// expand out ~ for $HOME, which is not done by shells
	if strings.HasPrefix(filePath, "~"+string(os.PathSeparator)) {
		filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
	}

	src, err := os.ReadFile(filePath)
	if err != nil {
		return "", minipar.Wrap(minipar.ErrSystem, fmt.Errorf("could not read %s: %w", filePath, err))
	}
	return string(src), nil
}

func parseFile(filePath string) (*minipar.ModuleNode, error) {
	src, err := readSource(filePath)
	if err != nil {
		return nil, err
	}
	tokens, err := minipar.Scan(src)
	if err != nil {
		return nil, err
	}
	return minipar.Parse(tokens)
}

func runFile(filePath string) error {
	src, err := readSource(filePath)
	if err != nil {
		return err
	}

	ex := newEngine().NewExecutor()
	defer ex.Close()
	return ex.ExecString(src)
}

const historyFile = ".minipar_history"

func repl() error {
	ex := newEngine().NewExecutor()
	defer ex.Close()

	// add repl-specific builtins
	ex.LoadFunc("clear", func(ex *minipar.Executor, in []minipar.Value) (minipar.Value, error) {
		fmt.Print("\x1b[2J\x1b[H")
		return minipar.Null, nil
	})
	ex.LoadFunc("dump", func(ex *minipar.Executor, in []minipar.Value) (minipar.Value, error) {
		ex.Dump()
		return minipar.Null, nil
	})

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := filepath.Join(os.Getenv("HOME"), historyFile)
	if f, err := os.Open(history); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(history)
		if err != nil {
			minipar.LogWarnf("could not save repl history: %s", err)
			return
		}
		line.WriteHistory(f)
		f.Close()
	}()

	minipar.LogInteractivef("minipar v%s, ctrl-d to exit", Version)

	var buf strings.Builder
	for {
		prompt := "> "
		if buf.Len() > 0 {
			prompt = "... "
		}

		text, err := line.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			buf.Reset()
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return minipar.Wrap(minipar.ErrSystem, err)
		}

		buf.WriteString(text)
		buf.WriteString("\n")

		err = ex.ExecString(buf.String())
		if minipar.IsIncomplete(err) {
			continue
		}
		line.AppendHistory(strings.TrimSpace(buf.String()))
		buf.Reset()

		// failed statements are reported, the session goes on
		if err != nil {
			report(err, false)
		}
	}
}

// report logs err and, if fatal, exits with the reason as the status.
func report(err error, fatal bool) {
	reason := minipar.ReasonOf(err)
	if reason == minipar.ErrUnknown {
		reason = minipar.ErrSystem
	}

	var parErr *minipar.ParError
	if errors.As(err, &parErr) {
		for _, b := range parErr.Branches {
			minipar.LogSafeErr(minipar.ReasonOf(b.Err), b.Error())
		}
		if fatal {
			minipar.LogErrf(reason, "%d PAR branches failed [line %d]", len(parErr.Branches), parErr.Line)
		}
		return
	}

	if fatal {
		minipar.LogErr(reason, err.Error())
	}
	minipar.LogSafeErr(reason, err.Error())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		report(err, true)
	}
}
