// Package cli implements the loadrig command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wesleyorama2/loadrig/internal/logging"
)

var version = "0.1.0"

// EnvPrefix prefixes environment variables that set flags, e.g.
// LOADRIG_VUS or LOADRIG_LOG_LEVEL.
const EnvPrefix = "LOADRIG"

// ExitError ends the command with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// app holds per-invocation state shared by the commands.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

// NewRootCmd builds the command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:     "loadrig",
		Short:   "Stage-driven HTTP load generator",
		Version: version,
		Long: `loadrig runs HTTP load tests described in YAML or JSON scenario files.

Virtual users are ramped through stages, every request is measured, and
thresholds decide whether the run passed. The process exit code reflects
the outcome so runs can gate CI pipelines:

  0    all thresholds passed
  99   a threshold failed or aborted the run
  104  the scenario file is invalid
  105  the run was interrupted`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bind(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	pf.String("log-file", "", "also write JSON logs to this file, rotated")
	pf.Bool("no-color", false, "disable colored output")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newValidateCmd(a))
	root.AddCommand(newSchemaCmd(a))
	return root
}

// bind layers flags over LOADRIG_* environment variables.
func (a *app) bind(cmd *cobra.Command) error {
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	return a.v.BindPFlags(cmd.Flags())
}

func (a *app) logger() (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:    a.v.GetString("log-level"),
		Format:   a.v.GetString("log-format"),
		Output:   a.stderr,
		FilePath: a.v.GetString("log-file"),
	})
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

// Execute runs the command line with the process arguments. SIGINT and
// SIGTERM cancel the run, which then drains and exits with 105.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
