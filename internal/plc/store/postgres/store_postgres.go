package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"plcwatch/internal/plc/models"
	"plcwatch/pkg/platform/sentinel"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// Store persists identifiers, handles, service endpoints and operations in PostgreSQL.
// Inserts never upsert: a unique violation surfaces as sentinel.ErrConflict so the
// entity resolver can retry its lookup. The schema is applied by Migrate.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindIdentifier(ctx context.Context, did string) (*models.Identifier, error) {
	var i models.Identifier
	err := s.db.QueryRowContext(ctx,
		`SELECT id, did, created_at FROM identifiers WHERE did = $1`, did,
	).Scan(&i.ID, &i.DID, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identifier: %w", err)
	}
	return &i, nil
}

func (s *Store) CreateIdentifier(ctx context.Context, identifier *models.Identifier) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identifiers (id, did, created_at) VALUES ($1, $2, $3)`,
		identifier.ID, identifier.DID, identifier.CreatedAt,
	)
	return translateInsert("create identifier", err)
}

func (s *Store) FindHandle(ctx context.Context, name string) (*models.Handle, error) {
	var h models.Handle
	err := s.db.QueryRowContext(ctx,
		`SELECT id, handle, created_at FROM handles WHERE handle = $1`, name,
	).Scan(&h.ID, &h.Name, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find handle: %w", err)
	}
	return &h, nil
}

func (s *Store) CreateHandle(ctx context.Context, handle *models.Handle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handles (id, handle, created_at) VALUES ($1, $2, $3)`,
		handle.ID, handle.Name, handle.CreatedAt,
	)
	return translateInsert("create handle", err)
}

func (s *Store) FindServiceEndpoint(ctx context.Context, endpoint string) (*models.ServiceEndpoint, error) {
	var e models.ServiceEndpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, endpoint, created_at FROM service_endpoints WHERE endpoint = $1`, endpoint,
	).Scan(&e.ID, &e.Endpoint, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find service endpoint: %w", err)
	}
	return &e, nil
}

func (s *Store) CreateServiceEndpoint(ctx context.Context, endpoint *models.ServiceEndpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_endpoints (id, endpoint, created_at) VALUES ($1, $2, $3)`,
		endpoint.ID, endpoint.Endpoint, endpoint.CreatedAt,
	)
	return translateInsert("create service endpoint", err)
}

func (s *Store) ListHandles(ctx context.Context) ([]*models.Handle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, handle, created_at FROM handles ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("list handles: %w", err)
	}
	defer rows.Close()

	var out []*models.Handle
	for rows.Next() {
		var h models.Handle
		if err := rows.Scan(&h.ID, &h.Name, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list handles: %w", err)
	}
	return out, nil
}

// CreateOperation inserts a fully resolved operation in a single statement.
func (s *Store) CreateOperation(ctx context.Context, op *models.Operation) error {
	var prev sql.NullString
	if !op.IsRoot() {
		prev = sql.NullString{String: op.PrevCID, Valid: true}
	}
	var handleID, endpointID uuid.NullUUID
	if op.Handle != nil {
		handleID = uuid.NullUUID{UUID: op.Handle.ID, Valid: true}
	}
	if op.Endpoint != nil {
		endpointID = uuid.NullUUID{UUID: op.Endpoint.ID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (cid, kind, identifier_id, prev_cid, handle_id, endpoint_id, nullified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		op.CID,
		string(op.Kind),
		op.Identifier.ID,
		prev,
		handleID,
		endpointID,
		op.Nullified,
		op.CreatedAt,
	)
	if isSQLState(err, sqlStateForeignKeyViolation) {
		return fmt.Errorf("create operation %q: %w", op.CID, sentinel.ErrNotFound)
	}
	return translateInsert("create operation", err)
}

func (s *Store) SetNullified(ctx context.Context, cid string, nullified bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE operations SET nullified = $2 WHERE cid = $1`, cid, nullified)
	if err != nil {
		return fmt.Errorf("set nullified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set nullified rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectOperations = `
	SELECT o.cid, o.kind, o.nullified, o.created_at, COALESCE(o.prev_cid, ''),
		i.id, i.did, i.created_at,
		h.id, h.handle, h.created_at,
		e.id, e.endpoint, e.created_at
	FROM operations o
	JOIN identifiers i ON i.id = o.identifier_id
	LEFT JOIN handles h ON h.id = o.handle_id
	LEFT JOIN service_endpoints e ON e.id = o.endpoint_id
`

func (s *Store) FindOperation(ctx context.Context, cid string) (*models.Operation, error) {
	op, err := scanOperation(s.db.QueryRowContext(ctx, selectOperations+` WHERE o.cid = $1`, cid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find operation: %w", err)
	}
	return op, nil
}

// FindRootOperation returns the operation of did that has no prev. With more
// than one root stored, the earliest wins.
func (s *Store) FindRootOperation(ctx context.Context, did string) (*models.Operation, error) {
	op, err := scanOperation(s.db.QueryRowContext(ctx,
		selectOperations+` WHERE i.did = $1 AND o.prev_cid IS NULL ORDER BY o.created_at, o.cid LIMIT 1`, did))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find root operation: %w", err)
	}
	return op, nil
}

// ListOperationsByIdentifiers loads the complete history of every listed identifier
// in one round trip.
func (s *Store) ListOperationsByIdentifiers(ctx context.Context, dids []string) ([]*models.Operation, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	return s.listOperations(ctx, selectOperations+` WHERE i.did = ANY($1) ORDER BY o.created_at, o.cid`, pq.Array(dids))
}

func (s *Store) ListOperationsByHandle(ctx context.Context, name string) ([]*models.Operation, error) {
	return s.listOperations(ctx, selectOperations+` WHERE h.handle = $1 ORDER BY o.created_at, o.cid`, name)
}

func (s *Store) listOperations(ctx context.Context, query string, args ...any) ([]*models.Operation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var out []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*models.Operation, error) {
	var (
		op                         models.Operation
		kind                       string
		handleID, endpointID       uuid.NullUUID
		handleName, endpointURL    sql.NullString
		handleCreated, endpCreated sql.NullTime
	)
	err := row.Scan(
		&op.CID, &kind, &op.Nullified, &op.CreatedAt, &op.PrevCID,
		&op.Identifier.ID, &op.Identifier.DID, &op.Identifier.CreatedAt,
		&handleID, &handleName, &handleCreated,
		&endpointID, &endpointURL, &endpCreated,
	)
	if err != nil {
		return nil, err
	}
	op.Kind = models.OperationKind(kind)
	op.CreatedAt = op.CreatedAt.UTC()
	if handleID.Valid {
		op.Handle = &models.Handle{ID: handleID.UUID, Name: handleName.String, CreatedAt: handleCreated.Time}
	}
	if endpointID.Valid {
		op.Endpoint = &models.ServiceEndpoint{ID: endpointID.UUID, Endpoint: endpointURL.String, CreatedAt: endpCreated.Time}
	}
	return &op, nil
}

func translateInsert(action string, err error) error {
	if err == nil {
		return nil
	}
	if isSQLState(err, sqlStateUniqueViolation) {
		return fmt.Errorf("%s: %w", action, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// isSQLState matches the error code from either the pgx or the lib/pq driver.
func isSQLState(err error, code string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
