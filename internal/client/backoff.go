package client

import "time"

// Backoff computes reconnect delays that double per attempt up to a ceiling.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff starts at one second and never waits longer than 30.
var DefaultBackoff = Backoff{Base: time.Second, Cap: 30 * time.Second}

// Delay returns min(Base * 2^attempts, Cap). Zero fields take the
// DefaultBackoff values.
func (b Backoff) Delay(attempts int) time.Duration {
	base, ceiling := b.Base, b.Cap
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoff.Cap
	}
	if base >= ceiling {
		return ceiling
	}

	d := base
	for range max(attempts, 0) {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}
