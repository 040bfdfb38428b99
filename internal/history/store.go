// Package history persists cycle results and dispatched commands to
// SQLite, giving a local audit trail that survives restarts even when
// the time-series database is unavailable.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/solshade-core/internal/control"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// CycleEntry is one recorded control cycle outcome for a group.
type CycleEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// GroupID is the cover group the result belongs to.
	GroupID string `json:"group_id"`

	// Result is the full published result, as it went out on MQTT.
	Result control.Result `json:"result"`

	// CreatedAt is when the row was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// CommandEntry is one dispatched movement command.
type CommandEntry struct {
	ID        int64     `json:"id"`
	CommandID string    `json:"command_id"`
	GroupID   string    `json:"group_id"`
	DeviceID  string    `json:"device_id"`
	Position  *int      `json:"position,omitempty"`
	Tilt      *int      `json:"tilt,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Store records and retrieves cycle and command history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Store interface {
	// RecordCycle persists one cycle result for its group.
	RecordCycle(ctx context.Context, result control.Result) error

	// RecordCommand persists one dispatched command.
	RecordCommand(ctx context.Context, groupID string, msg control.CommandMessage) error

	// GroupHistory returns recent cycle results for a group, newest first.
	// Limit defaults to 50 and is capped at 200.
	GroupHistory(ctx context.Context, groupID string, limit int) ([]CycleEntry, error)

	// CommandHistory returns recent dispatched commands for a group,
	// newest first. Limit defaults to 50 and is capped at 200.
	CommandHistory(ctx context.Context, groupID string, limit int) ([]CommandEntry, error)

	// Prune deletes cycle and command rows older than the given duration
	// and returns the total number of rows removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteStore implements Store using SQLite.
//
// Cycle results are stored as JSON in the cycle_history table; commands
// land in command_audit with their channels broken out into columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed history store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// RecordCycle inserts a cycle result row for the result's group.
func (s *SQLiteStore) RecordCycle(ctx context.Context, result control.Result) error {
	if result.GroupID == "" {
		return fmt.Errorf("group id is required")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO cycle_history (group_id, result) VALUES (?, ?)",
		result.GroupID,
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting cycle history: %w", err)
	}

	return nil
}

// RecordCommand inserts a command audit row.
func (s *SQLiteStore) RecordCommand(ctx context.Context, groupID string, msg control.CommandMessage) error {
	if msg.Device == "" {
		return fmt.Errorf("device id is required")
	}
	source := msg.Source
	if source == "" {
		source = "controller"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_audit (command_id, group_id, device_id, position, tilt, source)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.CommandID,
		groupID,
		msg.Device,
		msg.Position,
		msg.Tilt,
		source,
	)
	if err != nil {
		return fmt.Errorf("inserting command audit: %w", err)
	}

	return nil
}

// GroupHistory returns recent cycle results for a group, newest first.
func (s *SQLiteStore) GroupHistory(ctx context.Context, groupID string, limit int) ([]CycleEntry, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, result, created_at
		 FROM cycle_history
		 WHERE group_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		groupID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cycle history: %w", err)
	}
	defer rows.Close()

	entries := make([]CycleEntry, 0, limit)
	for rows.Next() {
		var entry CycleEntry
		var resultJSON string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.GroupID, &resultJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning cycle history: %w", err)
		}

		if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
			return nil, fmt.Errorf("unmarshalling result: %w", err)
		}

		timestamp, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cycle history: %w", err)
	}

	return entries, nil
}

// CommandHistory returns recent dispatched commands for a group, newest first.
func (s *SQLiteStore) CommandHistory(ctx context.Context, groupID string, limit int) ([]CommandEntry, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group id is required")
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command_id, group_id, device_id, position, tilt, source, created_at
		 FROM command_audit
		 WHERE group_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		groupID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command audit: %w", err)
	}
	defer rows.Close()

	entries := make([]CommandEntry, 0, limit)
	for rows.Next() {
		var entry CommandEntry
		var position, tilt sql.NullInt64
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.CommandID, &entry.GroupID, &entry.DeviceID,
			&position, &tilt, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command audit: %w", err)
		}

		if position.Valid {
			v := int(position.Int64)
			entry.Position = &v
		}
		if tilt.Valid {
			v := int(tilt.Int64)
			entry.Tilt = &v
		}

		timestamp, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command audit: %w", err)
	}

	return entries, nil
}

// Prune deletes cycle and command rows older than the given duration.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	cycles, err := s.pruneTable(ctx, "DELETE FROM cycle_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning cycle history: %w", err)
	}

	commands, err := s.pruneTable(ctx, "DELETE FROM command_audit WHERE created_at < ?", cutoff)
	if err != nil {
		return cycles, fmt.Errorf("pruning command audit: %w", err)
	}

	return cycles + commands, nil
}

func (s *SQLiteStore) pruneTable(ctx context.Context, query, cutoff string) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// clampLimit applies the default and maximum history page sizes.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
