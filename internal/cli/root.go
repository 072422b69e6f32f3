// Package cli implements plcctl, an offline and database-backed client for
// the operation pipeline.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"plcwatch/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	DatabaseURL string
	Input       string
	MaxAttempts int
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the plcctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "plcctl",
		Short: "Inspect DID operation histories and handle timelines",
		Long: `plcctl ingests directory export records (JSON Lines) and answers
questions about them: the ranked chains of an identifier and the ownership
timeline of a handle.

Without --db every command works on an in-memory store, filled from --input.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log per-record diagnostics to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "db", os.Getenv("DATABASE_URL"), "PostgreSQL URL (default $DATABASE_URL, empty for in-memory)")
	cmd.PersistentFlags().StringVarP(&opts.Input, "input", "i", "", "JSON Lines export to ingest before running the command (- for stdin)")
	cmd.PersistentFlags().IntVar(&opts.MaxAttempts, "resolver-attempts", 4, "bound on entity resolver conflict retries")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewChainCommand(opts))
	cmd.AddCommand(NewTimelineCommand(opts))
	cmd.AddCommand(NewHandlesCommand(opts))

	return cmd
}

// diagnostics logs to stderr, at debug level with --verbose and warnings otherwise.
func (o *RootOptions) diagnostics(w io.Writer) *slog.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logger.ParseLevel(level)}))
}
