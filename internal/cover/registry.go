package cover

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides cover group management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups; the
// control loop reads its snapshot every cycle, so lookups must not hit the
// database.
//
// The cache is populated on startup via Seed or RefreshCache and kept in
// sync by cache-updating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Group // Cached groups by ID
	cacheMu sync.RWMutex      // Protects cache
	logger  Logger
}

// NewRegistry creates a new cover group registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Group),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Seed inserts groups that do not already exist in the repository, then
// refreshes the cache. Existing rows win over the seed definitions so
// operator edits survive restarts.
func (r *Registry) Seed(ctx context.Context, groups []*Group) error {
	created := 0
	for _, g := range groups {
		ok, err := r.repo.CreateIfNotExists(ctx, g)
		if err != nil {
			return fmt.Errorf("seeding cover group %s: %w", g.ID, err)
		}
		if ok {
			created++
		}
	}

	if err := r.RefreshCache(ctx); err != nil {
		return err
	}

	r.logger.Info("cover groups seeded", "created", created, "seed_total", len(groups))
	return nil
}

// RefreshCache reloads all cover groups from the repository into the cache.
func (r *Registry) RefreshCache(ctx context.Context) error {
	groups, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading cover groups: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Group, len(groups))
	for i := range groups {
		g := groups[i]
		r.cache[g.ID] = g.DeepCopy()
	}

	r.logger.Info("cover group cache refreshed", "count", len(groups))
	return nil
}

// Get retrieves a cover group by ID.
// Returns ErrGroupNotFound if the group does not exist.
// The returned group is a deep copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Group, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		// Return a deep copy to prevent external mutation of cache
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new group not yet cached)
	group, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache for future lookups (store a deep copy)
	r.cacheMu.Lock()
	r.cache[id] = group.DeepCopy()
	r.cacheMu.Unlock()

	return group, nil
}

// List retrieves all cover groups.
// The returned groups are deep copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Group, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Return from cache if populated
	if len(r.cache) > 0 {
		groups := make([]Group, 0, len(r.cache))
		for _, g := range r.cache {
			// Deep copy to prevent external mutation of cache
			groups = append(groups, *g.DeepCopy())
		}
		return groups, nil
	}

	// Fall back to repository
	return r.repo.List(ctx)
}

// ListEnabled retrieves all enabled cover groups; the control loop solves
// only these. The returned groups are deep copies.
func (r *Registry) ListEnabled(ctx context.Context) ([]Group, error) {
	groups, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	enabled := groups[:0]
	for i := range groups {
		if groups[i].Enabled {
			enabled = append(enabled, groups[i])
		}
	}
	return enabled, nil
}

// Create validates and persists a new cover group.
func (r *Registry) Create(ctx context.Context, group *Group) error {
	if err := ValidateGroup(group); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, group); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[group.ID] = group.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("cover group created", "id", group.ID, "name", group.Name, "type", group.Type)
	return nil
}

// Update validates and persists changes to an existing cover group.
func (r *Registry) Update(ctx context.Context, group *Group) error {
	if err := ValidateGroup(group); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, group); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[group.ID] = group.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("cover group updated", "id", group.ID, "name", group.Name)
	return nil
}

// Delete removes a cover group.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("cover group deleted", "id", id)
	return nil
}

// DeviceIndex maps every cached device identifier to its owning group ID.
func (r *Registry) DeviceIndex() map[string]string {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	groups := make([]*Group, 0, len(r.cache))
	for _, g := range r.cache {
		groups = append(groups, g)
	}
	return DeviceIndex(groups)
}

// Count returns the number of cached cover groups.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats holds registry statistics for monitoring.
type Stats struct {
	TotalGroups   int
	EnabledGroups int
	TotalDevices  int
	ByType        map[Type]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalGroups: len(r.cache),
		ByType:      make(map[Type]int),
	}

	for _, g := range r.cache {
		if g.Enabled {
			stats.EnabledGroups++
		}
		stats.TotalDevices += len(g.Devices)
		stats.ByType[g.Type]++
	}

	return stats
}

// ValidateGroup checks a group for structural problems before persistence.
// Geometry is validated by a solver dry-run so the checks stay in one place.
func ValidateGroup(group *Group) error {
	if group == nil {
		return fmt.Errorf("%w: group is required", ErrInvalidGroup)
	}

	var errs []string
	if group.ID == "" {
		errs = append(errs, "id is required")
	}
	if group.Name == "" {
		errs = append(errs, "name is required")
	}
	if len(group.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}
	if !group.Type.IsValid() {
		errs = append(errs, fmt.Sprintf("unknown cover type %q", group.Type))
	} else if _, err := NewSolver(group.Type, group.Geometry); err != nil {
		errs = append(errs, err.Error())
	}

	if p := group.Geometry.DefaultHeight; p < 0 || p > 100 {
		errs = append(errs, fmt.Sprintf("default_height %v out of range [0,100]", p))
	}
	if p := group.Geometry.MaxPosition; p < 0 || p > 100 {
		errs = append(errs, fmt.Sprintf("max_position %v out of range [0,100]", p))
	}
	if p := group.Geometry.SunsetPosition; p < 0 || p > 100 {
		errs = append(errs, fmt.Sprintf("sunset_position %v out of range [0,100]", p))
	}
	if a := group.Geometry.Azimuth; a < 0 || a >= 360 {
		errs = append(errs, fmt.Sprintf("azimuth %v out of range [0,360)", a))
	}

	b := group.Behaviour
	if b.MinChange < 0 {
		errs = append(errs, "min_change must not be negative")
	}
	if b.StartMinutes >= 0 && b.EndMinutes >= 0 && b.EndMinutes <= b.StartMinutes {
		errs = append(errs, "end_time must be after start_time")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidGroup, strings.Join(errs, "; "))
	}
	return nil
}
