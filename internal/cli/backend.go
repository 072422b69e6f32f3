package cli

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"

	"plcwatch/internal/plc/ingest"
	"plcwatch/internal/plc/resolver"
	"plcwatch/internal/plc/service"
	"plcwatch/internal/plc/store/memory"
	"plcwatch/internal/plc/store/postgres"
)

type store interface {
	service.Store
	resolver.Store
}

// backend is the service a command talks to, plus what must be closed after.
type backend struct {
	service *service.Service
	db      *sql.DB
}

func (b *backend) Close() {
	if b.db != nil {
		_ = b.db.Close()
	}
}

// openBackend connects to --db (or builds an in-memory store) and ingests
// --input when given.
func openBackend(ctx context.Context, opts *RootOptions, stdin io.Reader, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	var st store = memory.NewInMemory()
	if opts.DatabaseURL != "" {
		db, err := postgres.Open(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect to database", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, WrapExitError(ExitCommandError, "failed to migrate database", err)
		}
		b.db = db
		st = postgres.New(db)
	}

	b.service = service.New(st,
		resolver.New(st, resolver.WithMaxAttempts(opts.MaxAttempts), resolver.WithLogger(logger)),
		service.WithLogger(logger),
	)

	if opts.Input != "" {
		stats, err := ingestFile(ctx, b.service, opts.Input, stdin, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		logger.InfoContext(ctx, "input ingested",
			"ingested", stats.Ingested,
			"malformed", stats.Malformed,
			"rejected", stats.Rejected,
		)
	}
	return b, nil
}

func ingestFile(ctx context.Context, svc *service.Service, path string, stdin io.Reader, logger *slog.Logger) (ingest.Stats, error) {
	r, closeFn, err := openInput(path, stdin)
	if err != nil {
		return ingest.Stats{}, err
	}
	defer closeFn()

	stats, err := ingest.IngestStream(ctx, svc, r, logger)
	if err != nil {
		return stats, WrapExitError(ExitCommandError, "ingest failed", err)
	}
	return stats, nil
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open input", err)
	}
	return f, func() { _ = f.Close() }, nil
}
