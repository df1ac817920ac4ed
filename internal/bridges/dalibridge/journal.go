package dalibridge

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dali/internal/dali"
	"github.com/nerrad567/gray-logic-dali/internal/dali/capture"
)

// Journal records every frame the gateway sends or receives in the
// dali_frames table. It is a traffic log for diagnostics, queried newest
// first and pruned by age.
//
// Thread Safety: All methods are safe for concurrent use.
type Journal struct {
	db     *sql.DB
	logger Logger

	// Prepared insert (created in Start, reused for every frame)
	insertStmt *sql.Stmt
	stmtMu     sync.Mutex

	closed bool
	mu     sync.RWMutex
}

// JournalEntry is one row of the journal.
type JournalEntry struct {
	ID         int64
	Direction  capture.Direction
	RecordedAt time.Time
	Frame      dali.Frame
}

// NewJournal creates a journal on db. The dali_frames table must exist
// (see the migrations package).
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// SetLogger sets the logger for the journal.
func (j *Journal) SetLogger(logger Logger) {
	j.logger = logger
}

// Start prepares the insert statement. Must be called before Record.
func (j *Journal) Start() error {
	j.stmtMu.Lock()
	defer j.stmtMu.Unlock()

	if j.insertStmt != nil {
		return nil
	}

	stmt, err := j.db.Prepare(`
		INSERT INTO dali_frames (direction, timestamp, length, data, status, message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing frame insert statement: %w", err)
	}
	j.insertStmt = stmt

	j.mu.Lock()
	j.closed = false
	j.mu.Unlock()
	return nil
}

// Stop closes the prepared statement. Record becomes a no-op afterwards.
func (j *Journal) Stop() {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()

	j.stmtMu.Lock()
	defer j.stmtMu.Unlock()
	if j.insertStmt != nil {
		j.insertStmt.Close()
		j.insertStmt = nil
	}
}

// Record appends one frame. Frames without a bus timestamp (caller-built or
// timeouts) are stamped with at.
func (j *Journal) Record(ctx context.Context, dir capture.Direction, frame dali.Frame, at time.Time) error {
	j.mu.RLock()
	closed := j.closed
	j.mu.RUnlock()
	if closed {
		return nil
	}

	j.stmtMu.Lock()
	defer j.stmtMu.Unlock()
	if j.insertStmt == nil {
		return nil
	}

	ts := frame.Timestamp
	if ts == 0 {
		ts = dali.Stamp(at)
	}
	_, err := j.insertStmt.ExecContext(ctx,
		dir.String(),
		ts,
		frame.Length,
		int64(frame.Data),
		frame.Status.String(),
		frame.Message,
		at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording %s frame: %w", dir, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if err := j.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, direction, timestamp, length, data, status, message, recorded_at
		FROM dali_frames
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent frames: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e                     JournalEntry
			dir, status, recorded string
			data                  int64
		)
		if err := rows.Scan(&e.ID, &dir, &e.Frame.Timestamp, &e.Frame.Length, &data,
			&status, &e.Frame.Message, &recorded); err != nil {
			return nil, fmt.Errorf("scanning frame row: %w", err)
		}

		e.Frame.Data = uint32(data) // #nosec G115 -- stored from a uint32
		if e.Direction, err = parseDirection(dir); err != nil {
			return nil, err
		}
		if e.Frame.Status, err = dali.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("row %d: %w", e.ID, err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("row %d: parsing recorded_at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating frame rows: %w", err)
	}
	return entries, nil
}

// Count returns the number of journaled frames.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	if err := j.checkOpen(); err != nil {
		return 0, err
	}
	var n int64
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dali_frames").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting frames: %w", err)
	}
	return n, nil
}

// Prune deletes frames with a bus timestamp before cutoff and returns how
// many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := j.checkOpen(); err != nil {
		return 0, err
	}
	res, err := j.db.ExecContext(ctx, "DELETE FROM dali_frames WHERE timestamp < ?", dali.Stamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning frames: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning frames: %w", err)
	}
	if n > 0 {
		j.logInfo("pruned frame journal", "deleted", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}

func (j *Journal) checkOpen() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	return nil
}

func parseDirection(s string) (capture.Direction, error) {
	switch s {
	case "in":
		return capture.DirectionIn, nil
	case "out":
		return capture.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown frame direction %q", s)
	}
}

func (j *Journal) logInfo(msg string, keysAndValues ...any) {
	if j.logger != nil {
		j.logger.Info(msg, keysAndValues...)
	}
}
