package cover

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for cover group persistence.
type Repository interface {
	// GetByID retrieves a cover group by its unique ID.
	// Returns ErrGroupNotFound if the group does not exist.
	GetByID(ctx context.Context, id string) (*Group, error)

	// List retrieves all cover groups ordered by name.
	List(ctx context.Context) ([]Group, error)

	// Create inserts a new cover group.
	// Returns ErrGroupExists if a group with the same ID already exists.
	Create(ctx context.Context, group *Group) error

	// CreateIfNotExists inserts a group only when no row with the same ID
	// exists. Returns true when the group was created. Existing rows are
	// left untouched so operator edits survive a reseed.
	CreateIfNotExists(ctx context.Context, group *Group) (bool, error)

	// Update modifies an existing cover group.
	// Returns ErrGroupNotFound if the group does not exist.
	Update(ctx context.Context, group *Group) error

	// Delete removes a cover group.
	// Returns ErrGroupNotFound if the group does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
// Geometry, behaviour and climate settings are stored as JSON columns so
// schema migrations are only needed when top-level fields change.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed cover group repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a cover group by its unique ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Group, error) {
	query := `SELECT id, name, type, enabled, devices, geometry, behaviour, climate,
		created_at, updated_at
		FROM covers WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	group, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("querying cover group: %w", err)
	}

	return group, nil
}

// List retrieves all cover groups ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Group, error) {
	query := `SELECT id, name, type, enabled, devices, geometry, behaviour, climate,
		created_at, updated_at
		FROM covers
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying cover groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cover group: %w", err)
		}
		groups = append(groups, *group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cover groups: %w", err)
	}

	return groups, nil
}

// Create inserts a new cover group. Timestamps are set on the passed group
// so the caller sees what was stored.
func (r *SQLiteRepository) Create(ctx context.Context, group *Group) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}

	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	devicesJSON, geometryJSON, behaviourJSON, climateJSON, err := marshalGroupColumns(group)
	if err != nil {
		return err
	}

	query := `INSERT INTO covers (
			id, name, type, enabled, devices, geometry, behaviour, climate,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		group.ID,
		group.Name,
		string(group.Type),
		boolToInt(group.Enabled),
		devicesJSON,
		geometryJSON,
		behaviourJSON,
		climateJSON,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrGroupExists
		}
		return fmt.Errorf("inserting cover group: %w", err)
	}

	return nil
}

// CreateIfNotExists inserts a group only when no row with the same ID exists.
func (r *SQLiteRepository) CreateIfNotExists(ctx context.Context, group *Group) (bool, error) {
	err := r.Create(ctx, group)
	if errors.Is(err, ErrGroupExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Update modifies an existing cover group.
func (r *SQLiteRepository) Update(ctx context.Context, group *Group) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}

	now := time.Now().UTC()
	group.UpdatedAt = now

	devicesJSON, geometryJSON, behaviourJSON, climateJSON, err := marshalGroupColumns(group)
	if err != nil {
		return err
	}

	query := `UPDATE covers SET
		name = ?, type = ?, enabled = ?, devices = ?, geometry = ?, behaviour = ?,
		climate = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		group.Name,
		string(group.Type),
		boolToInt(group.Enabled),
		devicesJSON,
		geometryJSON,
		behaviourJSON,
		climateJSON,
		now.Format(time.RFC3339),
		group.ID,
	)
	if err != nil {
		return fmt.Errorf("updating cover group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGroupNotFound
	}

	return nil
}

// Delete removes a cover group.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM covers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting cover group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGroupNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanGroup scans a row or rows result into a Group.
func scanGroup(scanner rowScanner) (*Group, error) {
	var g Group
	var groupType string
	var enabled int
	var devicesJSON, geometryJSON, behaviourJSON, climateJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&g.ID,
		&g.Name,
		&groupType,
		&enabled,
		&devicesJSON,
		&geometryJSON,
		&behaviourJSON,
		&climateJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Type = Type(groupType)
	g.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(devicesJSON), &g.Devices); err != nil {
		return nil, fmt.Errorf("unmarshalling devices: %w", err)
	}
	if err := json.Unmarshal([]byte(geometryJSON), &g.Geometry); err != nil {
		return nil, fmt.Errorf("unmarshalling geometry: %w", err)
	}
	if err := json.Unmarshal([]byte(behaviourJSON), &g.Behaviour); err != nil {
		return nil, fmt.Errorf("unmarshalling behaviour: %w", err)
	}
	if err := json.Unmarshal([]byte(climateJSON), &g.Climate); err != nil {
		return nil, fmt.Errorf("unmarshalling climate: %w", err)
	}

	g.CreatedAt, err = parseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}
	g.UpdatedAt, err = parseTimestamp(updatedAt)
	if err != nil {
		return nil, err
	}

	return &g, nil
}

// marshalGroupColumns serialises the JSON columns of a group for storage.
func marshalGroupColumns(group *Group) (devices, geometry, behaviour, climate string, err error) {
	devicesBytes, err := json.Marshal(group.Devices)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling devices: %w", err)
	}
	geometryBytes, err := json.Marshal(group.Geometry)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling geometry: %w", err)
	}
	behaviourBytes, err := json.Marshal(group.Behaviour)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling behaviour: %w", err)
	}
	climateBytes, err := json.Marshal(group.Climate)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling climate: %w", err)
	}
	return string(devicesBytes), string(geometryBytes), string(behaviourBytes), string(climateBytes), nil
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return timestamp, nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
