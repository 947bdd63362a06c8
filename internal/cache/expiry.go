package cache

import "time"

// DefaultTTL applies when a non-positive TTL is configured.
const DefaultTTL = 24 * time.Hour

// IsFresh reports whether a record written at createdAt is still servable at
// now. The bound is inclusive: a record aged exactly ttl is fresh.
func IsFresh(createdAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) <= ttl
}

// ExpiryPolicy applies IsFresh with a fixed TTL.
type ExpiryPolicy struct {
	TTL time.Duration
}

func NewExpiryPolicy(ttl time.Duration) ExpiryPolicy {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return ExpiryPolicy{TTL: ttl}
}

func (p ExpiryPolicy) Fresh(createdAt, now time.Time) bool {
	return IsFresh(createdAt, now, p.TTL)
}

// Cutoff is the oldest creation time still considered fresh at now.
// Records created strictly before it are expired, matching Fresh.
func (p ExpiryPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.TTL)
}
