package ftp

import "time"

// deadline is a monotonic wall-clock expiry for the current session phase.
// The zero value never expires.
type deadline struct {
	at  time.Time
	now func() time.Time
}

func (d *deadline) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *deadline) reset(in time.Duration) { d.at = d.clock().Add(in) }

func (d *deadline) neverExpires() { d.at = time.Time{} }

func (d *deadline) expired() bool {
	return !d.at.IsZero() && d.clock().After(d.at)
}
