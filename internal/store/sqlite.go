package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seantiz/apartment/internal/model"

	_ "modernc.org/sqlite"
)

const createObjectsTable = `
CREATE TABLE IF NOT EXISTS objects (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    status      TEXT NOT NULL,
    apartment   TEXT NOT NULL,
    invocations INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    closed_at   DATETIME
)`

const createInvocationsTable = `
CREATE TABLE IF NOT EXISTS invocations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    object_id   TEXT NOT NULL REFERENCES objects(id),
    seq         INTEGER NOT NULL,
    op          TEXT NOT NULL,
    args        TEXT NOT NULL DEFAULT '',
    result      TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL,
    created_at  DATETIME NOT NULL,
    UNIQUE (object_id, seq)
)`

const objectColumns = `id, kind, status, apartment, invocations, error,
	created_at, updated_at, closed_at`

// ErrNotFound is returned when an object is not found.
var ErrNotFound = errors.New("object not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	// writeMu serializes read-then-write transactions within the process.
	writeMu sync.Mutex
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for name, ddl := range map[string]string{
		"objects":     createObjectsTable,
		"invocations": createInvocationsTable,
	} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s table: %w", name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(r rowScanner) (*model.Object, error) {
	o := &model.Object{}
	err := r.Scan(
		&o.ID, &o.Kind, &o.Status, &o.Apartment, &o.Invocations, &o.Error,
		&o.CreatedAt, &o.UpdatedAt, &o.ClosedAt,
	)
	return o, err
}

// CreateObject inserts a new object record.
func (s *SQLiteStore) CreateObject(ctx context.Context, o *model.Object) error {
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (`+objectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Kind, o.Status, o.Apartment, o.Invocations, o.Error,
		o.CreatedAt, o.UpdatedAt, o.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}
	return nil
}

// GetObject retrieves an object by ID.
func (s *SQLiteStore) GetObject(ctx context.Context, id string) (*model.Object, error) {
	o, err := scanObject(s.db.QueryRowContext(ctx,
		`SELECT `+objectColumns+` FROM objects WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return o, nil
}

// ListObjects returns a paginated list of objects ordered by created_at DESC,
// along with the total count of all objects.
func (s *SQLiteStore) ListObjects(ctx context.Context, limit, offset int) ([]*model.Object, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM objects").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count objects: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+objectColumns+` FROM objects
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var objects []*model.Object
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan object: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate objects: %w", err)
	}

	return objects, total, nil
}

// UpdateObjectStatus moves an object to status, recording errMsg. Terminal
// statuses also set closed_at.
func (s *SQLiteStore) UpdateObjectStatus(ctx context.Context, id, status, errMsg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM objects WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read object status: %w", err)
	}

	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	var closedAt *time.Time
	if model.IsTerminal(status) {
		closedAt = &now
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE objects SET status = ?, error = ?, updated_at = ?, closed_at = ? WHERE id = ?",
		status, errMsg, now, closedAt, id,
	); err != nil {
		return fmt.Errorf("update object status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

// RecordInvocation appends inv to its object's history and assigns the row
// ID. A zero inv.Seq is assigned the next sequence number; a non-zero one is
// kept, so callers that number invocations at execution time may record them
// in any order.
func (s *SQLiteStore) RecordInvocation(ctx context.Context, inv *model.Invocation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, "SELECT invocations FROM objects WHERE id = ?", inv.ObjectID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read invocation count: %w", err)
	}

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.Seq == 0 {
		inv.Seq = count + 1
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO invocations (object_id, seq, op, args, result, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ObjectID, inv.Seq, inv.Op, inv.Args, inv.Result, inv.Error, inv.DurationMS, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	if inv.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("read invocation id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE objects SET invocations = invocations + 1, updated_at = ? WHERE id = ?",
		inv.CreatedAt, inv.ObjectID,
	); err != nil {
		return fmt.Errorf("update invocation count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invocation: %w", err)
	}
	return nil
}

// GetInvocations returns an object's invocation history in sequence order.
func (s *SQLiteStore) GetInvocations(ctx context.Context, objectID string) ([]model.Invocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, object_id, seq, op, args, result, error, duration_ms, created_at
		FROM invocations WHERE object_id = ? ORDER BY seq`, objectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var invs []model.Invocation
	for rows.Next() {
		var inv model.Invocation
		if err := rows.Scan(
			&inv.ID, &inv.ObjectID, &inv.Seq, &inv.Op, &inv.Args, &inv.Result,
			&inv.Error, &inv.DurationMS, &inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return invs, nil
}

// GetObjectStats returns aggregate statistics over all objects and their
// invocations.
func (s *SQLiteStore) GetObjectStats(ctx context.Context) (*ObjectStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &ObjectStats{
		CountByStatus: make(map[string]int),
		CountByKind:   make(map[string]int),
	}

	if err := countBy(ctx, tx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := countBy(ctx, tx, "kind", stats.CountByKind); err != nil {
		return nil, err
	}
	for _, n := range stats.CountByStatus {
		stats.Total += n
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0), AVG(duration_ms)
		FROM invocations`,
	).Scan(&stats.Invocations, &stats.FailedCalls, &avg); err != nil {
		return nil, fmt.Errorf("aggregate invocations: %w", err)
	}
	if avg.Valid {
		stats.AvgInvocationMS = avg.Float64
	}

	return stats, nil
}

// countBy fills into with object counts grouped by column, which must be a
// trusted identifier.
func countBy(ctx context.Context, tx *sql.Tx, column string, into map[string]int) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM objects GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count objects by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return nil
}
