package observer

import "time"

// BackoffPolicy selects the reconnect delay from how long the observer has
// been disconnected, not from the attempt count: rapid retries help right
// after a blip, while a server that has been down for ten minutes does not
// need hammering.
type BackoffPolicy struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration

	// MediumAfter and LongAfter are the disconnection-duration thresholds
	// at which the medium and long delays take over.
	MediumAfter time.Duration
	LongAfter   time.Duration
}

// DefaultBackoffPolicy returns the standard tiers: 5s under five minutes of
// disconnection, 60s between five and ten, 300s beyond that.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Short:       5 * time.Second,
		Medium:      60 * time.Second,
		Long:        300 * time.Second,
		MediumAfter: 5 * time.Minute,
		LongAfter:   10 * time.Minute,
	}
}

// Delay returns the wait before the next attempt given the elapsed
// disconnection time.
func (p BackoffPolicy) Delay(disconnectedFor time.Duration) time.Duration {
	switch {
	case disconnectedFor >= p.LongAfter:
		return p.Long
	case disconnectedFor >= p.MediumAfter:
		return p.Medium
	default:
		return p.Short
	}
}
