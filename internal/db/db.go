// Package db provides the SQLite ledger of polling cycles and the messages
// they processed. The ledger is a record only; it never decides whether a
// message is processed again.
package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daviddao/autodraft/internal/types"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DefaultPath is the ledger location relative to the working directory.
const DefaultPath = ".autodraft/ledger.db"

// DB wraps a SQLite connection for ledger operations.
type DB struct {
	conn *sqlx.DB
	path string
}

// Open opens (or creates) a ledger database at the given path. The special
// path ":memory:" opens a private in-memory database.
func Open(dbPath string) (*DB, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	}

	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A second pooled connection to :memory: would see an empty database.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Cycle is a stored polling cycle.
type Cycle struct {
	ID         string `db:"id" json:"id"`
	StartedAt  string `db:"started_at" json:"started_at"`
	FinishedAt string `db:"finished_at" json:"finished_at,omitempty"`
	Listed     int    `db:"listed" json:"listed"`
	Drafted    int    `db:"drafted" json:"drafted"`
	Failed     int    `db:"failed" json:"failed"`
	Error      string `db:"error" json:"error,omitempty"`
}

// Processed is a stored per-message outcome.
type Processed struct {
	CycleID     string `db:"cycle_id" json:"cycle_id"`
	ProcessedAt string `db:"processed_at" json:"processed_at"`
	types.Outcome
}

// Totals aggregates the whole ledger.
type Totals struct {
	Cycles  int `db:"cycles" json:"cycles"`
	Drafted int `db:"drafted" json:"drafted"`
	Failed  int `db:"failed" json:"failed"`
	Aborted int `db:"aborted" json:"aborted"`
}

// RecordCycle stores a finished cycle and its outcomes in one transaction.
func (d *DB) RecordCycle(ctx context.Context, c types.CycleSummary) error {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles (id, started_at, finished_at, listed, drafted, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.StartedAt, c.FinishedAt, c.Listed, c.Drafted, c.Failed, c.Error,
	)
	if err != nil {
		return fmt.Errorf("insert cycle %s: %w", c.ID, err)
	}

	processedAt := c.FinishedAt
	if processedAt == "" {
		processedAt = c.StartedAt
	}
	for _, o := range c.Outcomes {
		_, err := tx.NamedExecContext(ctx, `
			INSERT OR REPLACE INTO processed
				(cycle_id, message_id, subject, draft_id, outcome, marked_read, error, processed_at)
			VALUES (:cycle_id, :message_id, :subject, :draft_id, :outcome, :marked_read, :error, :processed_at)`,
			Processed{CycleID: c.ID, ProcessedAt: processedAt, Outcome: o},
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.MessageID, err)
		}
	}

	return tx.Commit()
}

// RecentProcessed returns the newest per-message outcomes first.
func (d *DB) RecentProcessed(ctx context.Context, limit int) ([]Processed, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []Processed
	err := d.conn.SelectContext(ctx, &rows, `
		SELECT cycle_id, message_id, subject, draft_id, outcome, marked_read, error, processed_at
		FROM processed
		ORDER BY processed_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select processed: %w", err)
	}
	return rows, nil
}

// RecentCycles returns the newest cycles first.
func (d *DB) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []Cycle
	err := d.conn.SelectContext(ctx, &rows, `
		SELECT id, started_at, finished_at, listed, drafted, failed, error
		FROM cycles
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select cycles: %w", err)
	}
	return rows, nil
}

// MessageHistory returns every recorded outcome for one message, oldest first.
func (d *DB) MessageHistory(ctx context.Context, messageID string) ([]Processed, error) {
	var rows []Processed
	err := d.conn.SelectContext(ctx, &rows, `
		SELECT cycle_id, message_id, subject, draft_id, outcome, marked_read, error, processed_at
		FROM processed
		WHERE message_id = ?
		ORDER BY processed_at ASC, rowid ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("select history for %s: %w", messageID, err)
	}
	return rows, nil
}

// Totals returns aggregate counts over all recorded cycles.
func (d *DB) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := d.conn.GetContext(ctx, &t, `
		SELECT COUNT(*) AS cycles,
		       COALESCE(SUM(drafted), 0) AS drafted,
		       COALESCE(SUM(failed), 0) AS failed,
		       COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0) AS aborted
		FROM cycles`)
	if err != nil {
		return Totals{}, fmt.Errorf("select totals: %w", err)
	}
	return t, nil
}
