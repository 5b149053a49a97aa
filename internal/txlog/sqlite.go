package txlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/datahog/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on (timestamp, source) for ordered scans
const currentSchemaVersion = 1

// SQLiteLog stores the transaction log in a single SQLite database.
// Uses WAL mode so readers never block the writer.
type SQLiteLog struct {
	db *sql.DB
}

var _ Log = (*SQLiteLog)(nil)

// OpenSQLite creates or opens a log database at path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection also
	// serializes Append without an extra lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteLog{db: db}, nil
}

// Close closes the database connection.
func (l *SQLiteLog) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Log methods when available.
func (l *SQLiteLog) DB() *sql.DB {
	return l.db
}

// Append implements Log.
func (l *SQLiteLog) Append(ctx context.Context, tx model.Transaction) (Entry, error) {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("append: begin: %w", err)
	}
	defer sqlTx.Rollback()

	hash, err := tx.Hash()
	if err != nil {
		return Entry{}, fmt.Errorf("append: %w", err)
	}

	// Idempotency: a re-delivered transaction keeps its original position.
	var existing rawEntry
	err = sqlTx.QueryRowContext(ctx,
		`SELECT seq, chain FROM transactions WHERE hash = ?`, hash[:],
	).Scan(&existing.Seq, scanU256(&existing.Chain))
	switch {
	case err == nil:
		return Entry{Seq: existing.Seq, Hash: hash, Chain: existing.Chain, Tx: tx}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return Entry{}, fmt.Errorf("append: lookup hash: %w", err)
	}

	var last rawEntry
	err = sqlTx.QueryRowContext(ctx,
		`SELECT seq, chain FROM transactions ORDER BY seq DESC LIMIT 1`,
	).Scan(&last.Seq, scanU256(&last.Chain))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("append: read tail: %w", err)
	}

	raw, err := encode(last.Seq+1, last.Chain, tx)
	if err != nil {
		return Entry{}, fmt.Errorf("append: %w", err)
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO transactions
		(seq, hash, chain, timestamp, source, payload, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		raw.Seq,
		raw.Hash[:],
		raw.Chain[:],
		int64(tx.Timestamp),
		tx.Source[:],
		raw.Payload,
		model.SchemaVersion,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append: insert: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("append: commit: %w", err)
	}
	return Entry{Seq: raw.Seq, Hash: raw.Hash, Chain: raw.Chain, Tx: tx}, nil
}

// ReadAfter implements Log.
func (l *SQLiteLog) ReadAfter(ctx context.Context, after int64, limit int) ([]Entry, error) {
	v := verifier{seq: after}
	if after > 0 {
		err := l.db.QueryRowContext(ctx,
			`SELECT chain FROM transactions WHERE seq = ?`, after,
		).Scan(scanU256(&v.chain))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.Replay("log truncated",
				fmt.Errorf("%w: cursor entry %d missing", ErrSequenceGap, after))
		}
		if err != nil {
			return nil, fmt.Errorf("read after %d: %w", after, err)
		}
	}

	query := `SELECT seq, hash, chain, payload FROM transactions WHERE seq > ? ORDER BY seq ASC`
	args := []any{after}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var raw rawEntry
		if err := rows.Scan(&raw.Seq, scanU256(&raw.Hash), scanU256(&raw.Chain), &raw.Payload); err != nil {
			return nil, err
		}
		entry, err := v.next(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return entries, nil
}

// LastSeq implements Log.
func (l *SQLiteLog) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := l.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM transactions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// u256Scanner scans a 32-byte BLOB column into a U256.
type u256Scanner struct{ dst *model.U256 }

func scanU256(dst *model.U256) *u256Scanner { return &u256Scanner{dst: dst} }

func (s *u256Scanner) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok || len(b) != len(s.dst) {
		return model.Replay("log corrupt", fmt.Errorf("%w: bad 256-bit column (%T)", ErrCorrupt, src))
	}
	copy(s.dst[:], b)
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the replay-order index.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_order
		ON transactions(timestamp, source)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
