// Package cli provides the command-line interface for lensconv.
// It exports Run() and RunWithHooks() to allow extension by wrapper projects.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zot/lensconv/internal/config"
)

// Version is the lensconv release.
const Version = "0.3.0"

// Hooks allows extending the CLI.
type Hooks struct {
	// Commands returns additional subcommands.
	Commands func() []*cobra.Command

	// CustomVersion returns version info to append (optional).
	CustomVersion func() string

	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// errSilent marks a failure that has already been reported to the user.
var errSilent = errors.New("")

// app holds the state shared by one CLI invocation.
type app struct {
	hooks  *Hooks
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	verbosity  int

	cfg *config.Config
	log *zap.Logger
}

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	return RunWithHooks(args, nil)
}

// RunWithHooks executes CLI with extension hooks.
func RunWithHooks(args []string, hooks *Hooks) int {
	if hooks == nil {
		hooks = &Hooks{}
	}
	a := &app{hooks: hooks, stdout: hooks.Stdout, stderr: hooks.Stderr}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}

	root := a.rootCommand()
	if hooks.Commands != nil {
		root.AddCommand(hooks.Commands()...)
	}
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// setup loads configuration and applies flag overrides. It runs before
// every command.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Dir, _ = flags.GetString("output")
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	cfg.Logging.Verbosity += a.verbosity
	if flags.Changed("workers") {
		cfg.Batch.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.Batch.Timeout = config.Duration(d)
	}
	if flags.Changed("report-format") {
		cfg.Batch.ReportFormat, _ = flags.GetString("report-format")
	}
	if flags.Changed("standalone") {
		cfg.Shader.Standalone, _ = flags.GetBool("standalone")
	}
	if flags.Changed("hook") {
		cfg.Hooks.Script, _ = flags.GetString("hook")
	}
	if flags.Changed("keep-extracted") {
		cfg.Output.KeepExtracted, _ = flags.GetBool("keep-extracted")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = cfg.NewLoggerTo(zapcore.AddSync(a.stderr))
	return nil
}

func (a *app) printVersion() {
	fmt.Fprintf(a.stdout, "lensconv v%s\n", Version)
	if a.hooks.CustomVersion != nil {
		fmt.Fprintln(a.stdout, a.hooks.CustomVersion())
	}
}
