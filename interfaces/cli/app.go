// Package cli provides the ideaflow command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ideaflow"
	api "github.com/felixgeelhaar/ideaflow/interfaces/api"
)

// Version information set at build time.
var (
	Version   = ideaflow.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Exit codes returned by ExitCode.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalid      = 2
	ExitNotFound     = 3
	ExitConflict     = 4
	ExitConfigFailed = 5
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "ideaflow",
		Short: "Versioned idea lifecycle with audited transitions",
		Long: `ideaflow tracks ideas through a fixed lifecycle:

  draft -> proposed -> experiment -> outcome -> reflection

Every change is guarded by the idea's version number, so two people editing
the same idea cannot overwrite each other. Every accepted transition is
written to an audit log that can be replayed and verified later.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newTransitionsCmd(),
		app.newIdeaCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(a.stdout, "ideaflow version %s\n", Version)
			_, _ = fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			_, _ = fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, api.ErrValidationFailed) || errors.Is(err, api.ErrConfigNotFound) ||
		errors.Is(err, api.ErrBuildFailed) || errors.Is(err, api.ErrUnsupportedFormat) ||
		errors.Is(err, api.ErrMissingEnvVar) {
		return ExitConfigFailed
	}
	switch api.HTTPStatus(err) {
	case http.StatusBadRequest:
		return ExitInvalid
	case http.StatusNotFound:
		return ExitNotFound
	case http.StatusConflict:
		return ExitConflict
	default:
		return ExitFailure
	}
}

// ErrorMessage renders err for the terminal, with a hint for the error
// categories a user can act on.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	resp := api.NewErrorResponse(err)
	switch resp.Status {
	case http.StatusConflict:
		if resp.CurrentVersion > 0 {
			return fmt.Sprintf("conflict: %s\n  the idea is now at version %d; re-read it and retry with --version %d",
				resp.Message, resp.CurrentVersion, resp.CurrentVersion)
		}
		return fmt.Sprintf("conflict: %s\n  re-read the idea and retry with its current version", resp.Message)
	case http.StatusNotFound:
		return "not found: " + resp.Message
	case http.StatusBadRequest:
		return "invalid request: " + resp.Message
	default:
		return resp.Message
	}
}
