package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/solshade-core/internal/control"
	"github.com/nerrad567/solshade-core/internal/cover"
)

const (
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 200
	maxQueryParamLen      = 100
	serviceUnavailableKey = "service_unavailable"
)

// groupResponse is the JSON rendering of one cover group: the covers-file
// dialect plus persistence timestamps.
type groupResponse struct {
	cover.GroupConfig
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// renderGroup converts a resolved group into its response shape.
func renderGroup(g *cover.Group) groupResponse {
	return groupResponse{
		GroupConfig: cover.ConfigFromGroup(g),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

// overrideEntry is one active manual override in API responses.
type overrideEntry struct {
	Device string    `json:"device"`
	Since  time.Time `json:"since"`
}

// handleListCovers returns all cover groups.
//
// GET /covers
// Response: {"covers": [...], "count": N}
func (s *Server) handleListCovers(w http.ResponseWriter, r *http.Request) {
	groups, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list cover groups", "error", err)
		writeInternalError(w, "failed to list cover groups")
		return
	}

	covers := make([]groupResponse, 0, len(groups))
	for i := range groups {
		covers = append(covers, renderGroup(&groups[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"covers": covers,
		"count":  len(covers),
	})
}

// handleCreateCover creates a new cover group.
//
// POST /covers
// Body: covers-file group shape (id, type, devices, window, behaviour, climate)
// Response: 201 with the resolved group
func (s *Server) handleCreateCover(w http.ResponseWriter, r *http.Request) {
	var gc cover.GroupConfig
	if err := json.NewDecoder(r.Body).Decode(&gc); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if gc.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}

	group, errs := gc.Resolve()
	if len(errs) > 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid cover group: "+strings.Join(errs, "; "))
		return
	}

	if err := s.registry.Create(r.Context(), group); err != nil {
		switch {
		case errors.Is(err, cover.ErrGroupExists):
			writeConflict(w, "cover group already exists")
		case errors.Is(err, cover.ErrInvalidGroup):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("failed to create cover group", "error", err, "id", gc.ID)
			writeInternalError(w, "failed to create cover group")
		}
		return
	}

	// The new group participates from the next cycle.
	s.controller.RequestCycle()

	writeJSON(w, http.StatusCreated, renderGroup(group))
}

// handleGetCover returns a single cover group.
//
// GET /covers/{id}
func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	group, ok := s.getGroup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, renderGroup(group))
}

// handleUpdateCover applies a partial update to a cover group.
//
// PATCH /covers/{id}
// Body: any subset of {name, type, enabled, devices, window, behaviour, climate}
//
// The existing group is rendered back into its config shape, the supplied
// fields are overlaid, and the merged config re-enters the same resolution
// path as the covers file. Setting a nested optional field to null restores
// its default.
func (s *Server) handleUpdateCover(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.getGroup(w, r)
	if !ok {
		return
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(fields) == 0 {
		writeBadRequest(w, "no fields to update")
		return
	}

	cfg := cover.ConfigFromGroup(existing)
	for name, raw := range fields {
		var err error
		switch name {
		case "id":
			writeBadRequest(w, "id cannot be changed")
			return
		case "name":
			err = json.Unmarshal(raw, &cfg.Name)
		case "type":
			err = json.Unmarshal(raw, &cfg.Type)
		case "enabled":
			err = json.Unmarshal(raw, &cfg.Enabled)
		case "devices":
			err = json.Unmarshal(raw, &cfg.Devices)
		case "window":
			err = json.Unmarshal(raw, &cfg.Window)
		case "behaviour":
			err = json.Unmarshal(raw, &cfg.Behaviour)
		case "climate":
			err = json.Unmarshal(raw, &cfg.Climate)
		default:
			writeBadRequest(w, "unknown field: "+name)
			return
		}
		if err != nil {
			writeBadRequest(w, "invalid value for field "+name)
			return
		}
	}

	group, errs := cfg.Resolve()
	if len(errs) > 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid cover group: "+strings.Join(errs, "; "))
		return
	}
	group.CreatedAt = existing.CreatedAt

	if err := s.registry.Update(r.Context(), group); err != nil {
		switch {
		case errors.Is(err, cover.ErrGroupNotFound):
			writeNotFound(w, "cover group not found")
		case errors.Is(err, cover.ErrInvalidGroup):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("failed to update cover group", "error", err, "id", group.ID)
			writeInternalError(w, "failed to update cover group")
		}
		return
	}

	// Geometry may have changed; stale forecasts mislead.
	if s.forecast != nil {
		s.forecast.Invalidate(group.ID)
	}
	s.controller.RequestCycle()

	writeJSON(w, http.StatusOK, renderGroup(group))
}

// handleDeleteCover removes a cover group.
//
// DELETE /covers/{id}
// Response: 204 No Content
func (s *Server) handleDeleteCover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, cover.ErrGroupNotFound) {
			writeNotFound(w, "cover group not found")
			return
		}
		s.logger.Error("failed to delete cover group", "error", err, "id", id)
		writeInternalError(w, "failed to delete cover group")
		return
	}

	if s.forecast != nil {
		s.forecast.Invalidate(id)
	}
	s.controller.RequestCycle()

	w.WriteHeader(http.StatusNoContent)
}

// handleCoverResult returns the latest cycle result for a cover group.
//
// GET /covers/{id}/result
func (s *Server) handleCoverResult(w http.ResponseWriter, r *http.Request) {
	group, ok := s.getGroup(w, r)
	if !ok {
		return
	}

	result, ok := s.controller.Result(group.ID)
	if !ok {
		writeNotFound(w, "no cycle result yet for this group")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCoverAttributes returns the live attribute view for a cover group.
//
// GET /covers/{id}/attributes
func (s *Server) handleCoverAttributes(w http.ResponseWriter, r *http.Request) {
	group, ok := s.getGroup(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.controller.GroupAttributes(group))
}

// handleCoverForecast returns the projected positions for a cover group.
//
// GET /covers/{id}/forecast
// Response: {"group_id": ..., "points": [...], "count": N}
func (s *Server) handleCoverForecast(w http.ResponseWriter, r *http.Request) {
	group, ok := s.getGroup(w, r)
	if !ok {
		return
	}

	if s.forecast == nil {
		writeError(w, http.StatusServiceUnavailable, serviceUnavailableKey, "forecast unavailable")
		return
	}

	points := s.forecast.Generate(group)

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": group.ID,
		"points":   points,
		"count":    len(points),
	})
}

// handleCoverHistory returns recent cycle results for a cover group.
//
// GET /covers/{id}/history?limit=N&since=RFC3339
// Response: {"group_id": ..., "history": [...], "count": N}
func (s *Server) handleCoverHistory(w http.ResponseWriter, r *http.Request) {
	group, ok := s.getGroup(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	since, err := parseSinceParam(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, serviceUnavailableKey, "history unavailable")
		return
	}

	entries, err := s.history.GroupHistory(r.Context(), group.ID, limit)
	if err != nil {
		s.logger.Error("failed to load cycle history", "error", err, "group_id", group.ID)
		writeInternalError(w, "failed to load cycle history")
		return
	}

	if !since.IsZero() {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.CreatedAt.After(since) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": group.ID,
		"history":  entries,
		"count":    len(entries),
	})
}

// handleCoverCommands returns recently dispatched commands for a cover group.
//
// GET /covers/{id}/commands?limit=N
// Response: {"group_id": ..., "commands": [...], "count": N}
func (s *Server) handleCoverCommands(w http.ResponseWriter, r *http.Request) {
	group, ok := s.getGroup(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, serviceUnavailableKey, "history unavailable")
		return
	}

	entries, err := s.history.CommandHistory(r.Context(), group.ID, limit)
	if err != nil {
		s.logger.Error("failed to load command history", "error", err, "group_id", group.ID)
		writeInternalError(w, "failed to load command history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": group.ID,
		"commands": entries,
		"count":    len(entries),
	})
}

// handleListResults returns the latest cycle result for every group.
//
// GET /results
// Response: {"results": [...], "count": N}
func (s *Server) handleListResults(w http.ResponseWriter, _ *http.Request) {
	results := s.controller.Results()
	if results == nil {
		results = []control.Result{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// handleListOverrides returns every device currently under manual control.
//
// GET /overrides
// Response: {"overrides": [{"device": ..., "since": ...}], "count": N}
func (s *Server) handleListOverrides(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.controller.ManualOverrides()

	overrides := make([]overrideEntry, 0, len(snapshot))
	for device, since := range snapshot {
		overrides = append(overrides, overrideEntry{Device: device, Since: since})
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].Device < overrides[j].Device })

	writeJSON(w, http.StatusOK, map[string]any{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

// handleResetOverride clears the manual override on a device, returning it
// to automatic control on the next cycle.
//
// DELETE /overrides/{device}
// Response: 204 No Content
func (s *Server) handleResetOverride(w http.ResponseWriter, r *http.Request) {
	device := chi.URLParam(r, "device")
	if device == "" || len(device) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	if err := s.controller.ResetManual(device); err != nil {
		switch {
		case errors.Is(err, control.ErrUnknownDevice):
			writeNotFound(w, "device not found")
		case errors.Is(err, control.ErrNotManual):
			writeConflict(w, "device is not under manual control")
		default:
			s.logger.Error("failed to reset manual override", "error", err, "device", device)
			writeInternalError(w, "failed to reset manual override")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getGroup loads the group named in the URL, writing the error response on
// failure. The second return is false when a response was already written.
func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) (*cover.Group, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid cover group ID")
		return nil, false
	}

	group, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, cover.ErrGroupNotFound) {
			writeNotFound(w, "cover group not found")
			return nil, false
		}
		s.logger.Error("failed to get cover group", "error", err, "id", id)
		writeInternalError(w, "failed to get cover group")
		return nil, false
	}

	return group, true
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseSinceParam parses the since parameter as RFC3339/RFC3339Nano.
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return parsed.UTC(), nil
	}

	parsed, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}

	return parsed.UTC(), nil
}
