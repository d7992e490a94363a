// File: internal/executor/state.go
package executor

// State is the connection lifecycle state tracked by the Manager. Transitions
// follow a fixed machine:
//
//	unattempted -> attempting_persistent
//	attempting_persistent -> persistent_healthy | persistent_failed
//	persistent_failed -> attempting_fallback
//	attempting_fallback -> fallback_healthy | fully_failed
//
// Close resets any state back to unattempted.
type State string

const (
	StateUnattempted          State = "unattempted"
	StateAttemptingPersistent State = "attempting_persistent"
	StatePersistentHealthy    State = "persistent_healthy"
	StatePersistentFailed     State = "persistent_failed"
	StateAttemptingFallback   State = "attempting_fallback"
	StateFallbackHealthy      State = "fallback_healthy"
	StateFullyFailed          State = "fully_failed"
)

// Healthy reports whether the state carries a usable connection.
func (s State) Healthy() bool {
	return s == StatePersistentHealthy || s == StateFallbackHealthy
}

// HealthSnapshot is the queryable view of the Manager's connection health.
type HealthSnapshot struct {
	State     State  `json:"state"`
	Healthy   bool   `json:"healthy"`
	SessionID string `json:"session_id,omitempty"`
	Flavor    string `json:"flavor,omitempty"`
	LastError string `json:"last_error,omitempty"`
	// Hint is a human-readable remediation step, populated when unhealthy.
	Hint string `json:"hint,omitempty"`
}
