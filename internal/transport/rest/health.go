package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

const healthCheckTimeout = 2 * time.Second

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

// Check probes one component. Only HealthUnhealthy fails readiness.
type Check func(ctx context.Context) CheckEntry

type NamedCheck struct {
	Name  string
	Check Check
}

type HealthHandler struct {
	checks []NamedCheck
}

// NewHealthHandler always probes the database; extra checks are reported
// next to it.
func NewHealthHandler(db *sql.DB, extra ...NamedCheck) *HealthHandler {
	checks := append([]NamedCheck{{Name: "postgres", Check: DatabaseCheck(db)}}, extra...)
	return &HealthHandler{checks: checks}
}

// DatabaseCheck pings the database shared by the repositories and the event log.
func DatabaseCheck(db *sql.DB) Check {
	return func(ctx context.Context) CheckEntry {
		if err := db.PingContext(ctx); err != nil {
			return CheckEntry{Status: HealthUnhealthy, Message: "database unreachable"}
		}
		stats := db.Stats()
		return CheckEntry{
			Status: HealthHealthy,
			Details: map[string]any{
				"open_connections": stats.OpenConnections,
				"in_use":           stats.InUse,
				"idle":             stats.Idle,
			},
		}
	}
}

// OpenConflictsCheck reports the review backlog. A backlog above warnAt is
// degraded, not unhealthy: the service still reconciles.
func OpenConflictsCheck(db *sql.DB, warnAt int) Check {
	return func(ctx context.Context) CheckEntry {
		var open int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM state_conflicts WHERE status = 'open'`).Scan(&open)
		if err != nil {
			return CheckEntry{Status: HealthDegraded, Message: "review queue unavailable"}
		}
		entry := CheckEntry{Status: HealthHealthy, Details: map[string]any{"open": open}}
		if warnAt > 0 && open > warnAt {
			entry.Status = HealthDegraded
			entry.Message = "open conflicts need review"
		}
		return entry
	}
}

// pingHandler only says the process is up.
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     HealthHealthy,
		Components: make(map[string]CheckEntry, len(h.checks)),
	}
	for _, c := range h.checks {
		start := time.Now()
		entry := c.Check(ctx)
		entry.CheckedAt = time.Now()
		entry.DurationMs = time.Since(start).Milliseconds()
		resp.Components[c.Name] = entry

		switch {
		case entry.Status == HealthUnhealthy:
			resp.Status = HealthUnhealthy
		case entry.Status == HealthDegraded && resp.Status == HealthHealthy:
			resp.Status = HealthDegraded
		}
	}
	resp.CheckedAt = time.Now()

	statusCode := http.StatusOK
	if resp.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, statusCode, resp)
}

func writeHealthJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
