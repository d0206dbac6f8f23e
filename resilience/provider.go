package resilience

import "time"

// CircuitState is the breaker state of a provider.
type CircuitState string

const (
	// StateClosed lets calls through.
	StateClosed CircuitState = "closed"
	// StateOpen rejects calls until the reset timeout has elapsed.
	StateOpen CircuitState = "open"
	// StateHalfOpen lets a trial call through after the cool-down.
	StateHalfOpen CircuitState = "half_open"
)

// Provider is the health record of one backend.
//
// Invariant: State == StateOpen implies ConsecutiveFailures >= the manager's
// threshold.
type Provider struct {
	Name                string       `json:"name"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures uint         `json:"consecutiveFailures"`
	LastFailureAt       *time.Time   `json:"lastFailureAt,omitempty"`
}

func (p *Provider) snapshot() Provider {
	c := *p
	if p.LastFailureAt != nil {
		t := *p.LastFailureAt
		c.LastFailureAt = &t
	}
	return c
}
