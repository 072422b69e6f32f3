package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"plcwatch/internal/plc/handler"
	"plcwatch/internal/plc/ingest"
	dErrors "plcwatch/pkg/domain-errors"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Publish    bool
	Brokers    []string
	Topic      string
	Partitions int32
}

func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Ingest a JSON Lines export (- for stdin)",
		Long: `Ingest a directory export in order. Malformed lines and records that
cannot be applied yet (unknown prev) are reported and skipped.

With --publish the records are produced to Kafka, keyed by DID, for the
server's consumer instead of being ingested here.

Examples:
  plcctl ingest export.jsonl --db postgres://localhost/plcwatch
  plcctl ingest - --publish --brokers localhost:9092 < export.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Publish {
				return runPublish(cmd, opts, args[0])
			}
			return runIngest(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "produce records to Kafka instead of ingesting them")
	cmd.Flags().StringSliceVar(&opts.Brokers, "brokers", []string{"localhost:9092"}, "Kafka seed brokers")
	cmd.Flags().StringVar(&opts.Topic, "topic", "plc.export", "Kafka topic")
	cmd.Flags().Int32Var(&opts.Partitions, "partitions", 8, "partitions when the topic has to be created")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *IngestOptions, path string) error {
	ctx := commandContext(cmd)
	logger := opts.diagnostics(cmd.ErrOrStderr())

	local := *opts.RootOptions
	local.Input = ""
	b, err := openBackend(ctx, &local, cmd.InOrStdin(), logger)
	if err != nil {
		return err
	}
	defer b.Close()

	stats, err := ingestFile(ctx, b.service, path, cmd.InOrStdin(), logger)
	if err != nil {
		return err
	}
	return printStats(cmd, opts.RootOptions, stats)
}

func runPublish(cmd *cobra.Command, opts *IngestOptions, path string) error {
	ctx := commandContext(cmd)
	logger := opts.diagnostics(cmd.ErrOrStderr())

	if err := ingest.EnsureTopic(ctx, opts.Brokers, opts.Topic, opts.Partitions, 1); err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare topic", err)
	}
	pub, err := ingest.NewPublisher(opts.Brokers, opts.Topic, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to kafka", err)
	}
	defer pub.Close()

	r, closeFn, err := openInput(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := pub.PublishStream(ctx, r)
	if err != nil {
		return WrapExitError(ExitCommandError, "publish failed", err)
	}
	out := printer{format: opts.Format, w: cmd.OutOrStdout()}
	return out.print(map[string]int{"published": n}, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "published\t%d\n", n)
	})
}

func printStats(cmd *cobra.Command, opts *RootOptions, stats ingest.Stats) error {
	out := printer{format: opts.Format, w: cmd.OutOrStdout()}
	return out.print(stats, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ingested\t%d\n", stats.Ingested)
		fmt.Fprintf(tw, "malformed\t%d\n", stats.Malformed)
		fmt.Fprintf(tw, "rejected\t%d\n", stats.Rejected)
	})
}

func NewChainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chain DID",
		Short: "Show the ranked chains of an identifier, canonical first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend) error {
				chains, err := b.service.IdentifierChains(ctx, args[0])
				if err != nil {
					return queryError("failed to resolve chains", err)
				}
				resp := handler.NewChainsResponse(args[0], chains)
				out := printer{format: opts.Format, w: cmd.OutOrStdout()}
				return out.print(resp, func(tw *tabwriter.Writer) {
					for i, c := range resp.Chains {
						label := "fork"
						if c.Canonical {
							label = "canonical"
						}
						fmt.Fprintf(tw, "chain %d (%s)\n", i+1, label)
						fmt.Fprintln(tw, "CID\tKIND\tHANDLE\tPDS\tNULLIFIED\tCREATED")
						for _, op := range c.Operations {
							fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
								op.CID, op.Kind, dash(op.Handle), dash(op.PDS), op.Nullified, op.CreatedAt.Format(time.RFC3339))
						}
						fmt.Fprintln(tw)
					}
				})
			})
		},
	}
}

func NewTimelineCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline HANDLE",
		Short: "Show which identifiers held a handle, and when",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend) error {
				tl, err := b.service.HandleTimeline(ctx, args[0])
				if err != nil {
					return queryError("failed to build timeline", err)
				}
				out := printer{format: opts.Format, w: cmd.OutOrStdout()}
				return out.print(tl, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "DID\tPDS\tSINCE\tUNTIL")
					for _, e := range tl.Entries {
						until := "-"
						if e.Until != nil {
							until = e.Until.Format(time.RFC3339)
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.DID, dash(e.Endpoint), e.Since.Format(time.RFC3339), until)
					}
					if tl.Current != nil {
						fmt.Fprintf(tw, "\ncurrent\t%s\t%s\n", tl.Current.DID, dash(tl.Current.Endpoint))
					}
					for _, broken := range tl.Broken {
						fmt.Fprintf(tw, "broken\t%s\t%s\n", broken.DID, broken.Reason)
					}
				})
			})
		},
	}
}

func NewHandlesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "handles",
		Short: "List every handle ever referenced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend) error {
				handles, err := b.service.ListHandles(ctx)
				if err != nil {
					return queryError("failed to list handles", err)
				}
				out := printer{format: opts.Format, w: cmd.OutOrStdout()}
				names := make([]string, 0, len(handles))
				for _, h := range handles {
					names = append(names, h.Name)
				}
				return out.print(names, func(tw *tabwriter.Writer) {
					for _, name := range names {
						fmt.Fprintln(tw, name)
					}
				})
			})
		},
	}
}

func withBackend(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *backend) error) error {
	ctx := commandContext(cmd)
	b, err := openBackend(ctx, opts, cmd.InOrStdin(), opts.diagnostics(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

// queryError maps "no such thing" answers to ExitFailure and everything else
// to ExitCommandError.
func queryError(msg string, err error) error {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeInvariantViolation:
		return WrapExitError(ExitFailure, msg, err)
	default:
		return WrapExitError(ExitCommandError, msg, err)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
