package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// schema creates the decisions table. Timestamps are stored as Unix
// nanoseconds and retry_after as nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	ts INTEGER NOT NULL,
	policy TEXT NOT NULL,
	key TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	retry_after INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
CREATE INDEX IF NOT EXISTS idx_decisions_policy_key ON decisions(policy, key, ts);
`

// SQLiteConfig contains configuration for the SQLite journal store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrent reads.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/decisions.db",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteStore implements Store on top of SQLite.
type SQLiteStore struct {
	db        *sql.DB
	config    *SQLiteConfig
	logger    *slog.Logger
	closeOnce sync.Once

	appendStmt *sql.Stmt
	pruneStmt  *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the journal database.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, NewStorageError("sqlite", "open", fmt.Errorf("db path cannot be empty"))
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "journal.sqlite"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite journal initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize applies pragmas, creates the schema and prepares statements.
func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(schema); err != nil {
		return NewStorageError("sqlite", "create_schema", err)
	}

	var err error
	s.appendStmt, err = s.db.Prepare(`
		INSERT INTO decisions (id, ts, policy, key, allowed, retry_after)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return NewStorageError("sqlite", "prepare_append", err)
	}

	s.pruneStmt, err = s.db.Prepare(`DELETE FROM decisions WHERE ts < ?`)
	if err != nil {
		return NewStorageError("sqlite", "prepare_prune", err)
	}

	return nil
}

// Append inserts entry.
func (s *SQLiteStore) Append(ctx context.Context, entry *Entry) error {
	_, err := s.appendStmt.ExecContext(ctx,
		entry.ID,
		entry.Timestamp.UnixNano(),
		entry.Policy,
		entry.Key,
		boolToInt(entry.Allowed),
		int64(entry.RetryAfter),
	)
	if err != nil {
		return NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Query returns matching entries, newest first.
func (s *SQLiteStore) Query(ctx context.Context, query *Query) ([]*Entry, error) {
	where, args := buildWhere(query)
	stmt := "SELECT id, ts, policy, key, allowed, retry_after FROM decisions" +
		where + " ORDER BY ts DESC, rowid DESC LIMIT ?"
	args = append(args, query.limit())

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	var results []*Entry
	for rows.Next() {
		var (
			e          Entry
			ts         int64
			allowed    int
			retryAfter int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Policy, &e.Key, &allowed, &retryAfter); err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Allowed = allowed != 0
		e.RetryAfter = time.Duration(retryAfter)
		results = append(results, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}

	return results, nil
}

// Count returns the number of matching entries.
func (s *SQLiteStore) Count(ctx context.Context, query *Query) (int64, error) {
	where, args := buildWhere(query)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decisions"+where, args...).Scan(&count); err != nil {
		return 0, NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Prune deletes entries older than olderThan.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.pruneStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, NewStorageError("sqlite", "prune", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "prune", err)
	}
	return deleted, nil
}

// Close closes prepared statements and the database.
func (s *SQLiteStore) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.appendStmt != nil {
			s.appendStmt.Close()
		}
		if s.pruneStmt != nil {
			s.pruneStmt.Close()
		}
		if err := s.db.Close(); err != nil {
			closeErr = NewStorageError("sqlite", "close", err)
		}
	})
	return closeErr
}

// buildWhere renders the query filters as a WHERE clause with positional args.
func buildWhere(query *Query) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)

	if query.Policy != "" {
		clauses = append(clauses, "policy = ?")
		args = append(args, query.Policy)
	}
	if query.Key != "" {
		clauses = append(clauses, "key = ?")
		args = append(args, query.Key)
	}
	if !query.Since.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, query.Since.UnixNano())
	}
	if !query.Until.IsZero() {
		clauses = append(clauses, "ts < ?")
		args = append(args, query.Until.UnixNano())
	}
	if query.Allowed != nil {
		clauses = append(clauses, "allowed = ?")
		args = append(args, boolToInt(*query.Allowed))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
