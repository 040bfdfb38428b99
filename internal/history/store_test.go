package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/solshade-core/internal/control"
	"github.com/nerrad567/solshade-core/internal/cover"
)

// setupTestDB creates an in-memory SQLite database with the history tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE cycle_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id TEXT NOT NULL,
			result TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_cycle_history_group ON cycle_history(group_id, created_at DESC);
		CREATE TABLE command_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			position INTEGER,
			tilt INTEGER,
			source TEXT NOT NULL DEFAULT 'controller',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_command_audit_group ON command_audit(group_id, created_at DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// insertCycleRow inserts a cycle history row with a specific timestamp.
func insertCycleRow(t *testing.T, db *sql.DB, groupID, resultJSON string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO cycle_history (group_id, result, created_at) VALUES (?, ?, ?)",
		groupID,
		resultJSON,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert cycle row: %v", err)
	}
}

// insertCommandRow inserts a command audit row with a specific timestamp.
func insertCommandRow(t *testing.T, db *sql.DB, groupID, deviceID string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO command_audit (command_id, group_id, device_id, position, source, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		"cmd-"+deviceID,
		groupID,
		deviceID,
		40,
		"controller",
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert command row: %v", err)
	}
}

// TestRecordCycle verifies cycle results round-trip through the store.
func TestRecordCycle(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	tilt := 30
	result := control.Result{
		GroupID:       "living-room",
		GroupName:     "Living Room",
		Type:          cover.TypeTilt,
		State:         65,
		DoubleState:   &tilt,
		ControlMethod: "intermediate",
		SunValid:      true,
		ComputedAt:    time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC),
	}

	if err := store.RecordCycle(ctx, result); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}

	entries, err := store.GroupHistory(ctx, "living-room", 10)
	if err != nil {
		t.Fatalf("GroupHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.GroupID != "living-room" {
		t.Errorf("GroupID = %q, want %q", entry.GroupID, "living-room")
	}
	if entry.Result.State != 65 {
		t.Errorf("Result.State = %d, want 65", entry.Result.State)
	}
	if entry.Result.DoubleState == nil || *entry.Result.DoubleState != 30 {
		t.Errorf("Result.DoubleState = %v, want 30", entry.Result.DoubleState)
	}
	if entry.Result.ControlMethod != "intermediate" {
		t.Errorf("Result.ControlMethod = %q, want %q", entry.Result.ControlMethod, "intermediate")
	}
	if !entry.Result.SunValid {
		t.Error("Result.SunValid = false, want true")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
}

// TestRecordCycle_MissingGroup verifies results without a group are rejected.
func TestRecordCycle_MissingGroup(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)

	if err := store.RecordCycle(context.Background(), control.Result{}); err == nil {
		t.Fatal("RecordCycle() with empty group id should fail")
	}
}

// TestGroupHistory verifies ordering and limit enforcement.
func TestGroupHistory(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertCycleRow(t, db, "south", `{"group_id":"south","state":10}`, now.Add(-2*time.Hour))
	insertCycleRow(t, db, "south", `{"group_id":"south","state":20}`, now.Add(-1*time.Hour))
	insertCycleRow(t, db, "south", `{"group_id":"south","state":30}`, now)
	insertCycleRow(t, db, "west", `{"group_id":"west","state":99}`, now)

	entries, err := store.GroupHistory(ctx, "south", 2)
	if err != nil {
		t.Fatalf("GroupHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}

	if entries[0].Result.State != 30 {
		t.Errorf("entry[0] State = %d, want 30", entries[0].Result.State)
	}
	if entries[1].Result.State != 20 {
		t.Errorf("entry[1] State = %d, want 20", entries[1].Result.State)
	}
	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}
}

// TestRecordCommand verifies commands round-trip with nullable channels.
func TestRecordCommand(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	position := 55
	msg := control.CommandMessage{
		CommandID: "0f8d2a31",
		Device:    "cover-south-1",
		Position:  &position,
		Timestamp: time.Now().UTC(),
		Source:    "controller",
	}

	if err := store.RecordCommand(ctx, "south", msg); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}

	entries, err := store.CommandHistory(ctx, "south", 10)
	if err != nil {
		t.Fatalf("CommandHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.CommandID != "0f8d2a31" {
		t.Errorf("CommandID = %q, want %q", entry.CommandID, "0f8d2a31")
	}
	if entry.DeviceID != "cover-south-1" {
		t.Errorf("DeviceID = %q, want %q", entry.DeviceID, "cover-south-1")
	}
	if entry.Position == nil || *entry.Position != 55 {
		t.Errorf("Position = %v, want 55", entry.Position)
	}
	if entry.Tilt != nil {
		t.Errorf("Tilt = %v, want nil", entry.Tilt)
	}
	if entry.Source != "controller" {
		t.Errorf("Source = %q, want %q", entry.Source, "controller")
	}
}

// TestRecordCommand_MissingDevice verifies commands without a device are rejected.
func TestRecordCommand_MissingDevice(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)

	if err := store.RecordCommand(context.Background(), "south", control.CommandMessage{}); err == nil {
		t.Fatal("RecordCommand() with empty device should fail")
	}
}

// TestCommandHistory_Ordering verifies commands come back newest first.
func TestCommandHistory_Ordering(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertCommandRow(t, db, "south", "dev-1", now.Add(-1*time.Hour))
	insertCommandRow(t, db, "south", "dev-2", now)
	insertCommandRow(t, db, "west", "dev-3", now)

	entries, err := store.CommandHistory(ctx, "south", 10)
	if err != nil {
		t.Fatalf("CommandHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
	if entries[0].DeviceID != "dev-2" {
		t.Errorf("entry[0] DeviceID = %q, want %q", entries[0].DeviceID, "dev-2")
	}
	if entries[1].DeviceID != "dev-1" {
		t.Errorf("entry[1] DeviceID = %q, want %q", entries[1].DeviceID, "dev-1")
	}
}

// TestPrune verifies old rows are removed from both tables.
func TestPrune(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertCycleRow(t, db, "south", `{"group_id":"south","state":10}`, now.Add(-40*24*time.Hour))
	insertCycleRow(t, db, "south", `{"group_id":"south","state":20}`, now.Add(-12*time.Hour))
	insertCommandRow(t, db, "south", "dev-1", now.Add(-40*24*time.Hour))
	insertCommandRow(t, db, "south", "dev-2", now.Add(-12*time.Hour))

	deleted, err := store.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	cycles, err := store.GroupHistory(ctx, "south", 10)
	if err != nil {
		t.Fatalf("GroupHistory() error = %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("cycle entries = %d, want 1", len(cycles))
	}

	commands, err := store.CommandHistory(ctx, "south", 10)
	if err != nil {
		t.Fatalf("CommandHistory() error = %v", err)
	}
	if len(commands) != 1 {
		t.Fatalf("command entries = %d, want 1", len(commands))
	}
}

// TestPrune_RejectsNonPositive verifies prune input validation.
func TestPrune_RejectsNonPositive(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)

	if _, err := store.Prune(context.Background(), 0); err == nil {
		t.Fatal("Prune(0) should fail")
	}
}

// TestClampLimit verifies default and maximum page sizes.
func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, defaultLimit},
		{"negative uses default", -5, defaultLimit},
		{"in range passes through", 75, 75},
		{"above max is capped", 500, maxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampLimit(tt.limit); got != tt.want {
				t.Errorf("clampLimit(%d) = %d, want %d", tt.limit, got, tt.want)
			}
		})
	}
}
