package transport

import "time"

// Timing holds a peer's liveness parameters. Ping interval and timeouts are
// independent values.
//
// A peer times out once nothing has been heard from it for TimeoutMaximum,
// or for at least TimeoutMinimum when that silence also exceeds
// TimeoutLimit round trips.
type Timing struct {
	PingInterval   time.Duration
	TimeoutLimit   uint32 // Multiple of the smoothed round-trip time
	TimeoutMinimum time.Duration
	TimeoutMaximum time.Duration
}

// Defaults used when a field is left zero.
const (
	DefaultPingInterval   = time.Second
	DefaultTimeoutLimit   = 32
	DefaultTimeoutMinimum = 5 * time.Second
	DefaultTimeoutMaximum = 5 * time.Second

	// initialRoundTrip is assumed until the first pong arrives.
	initialRoundTrip = 500 * time.Millisecond
)

// DefaultTiming returns the connection parameters used at connect time.
func DefaultTiming() Timing {
	return Timing{
		PingInterval:   DefaultPingInterval,
		TimeoutLimit:   DefaultTimeoutLimit,
		TimeoutMinimum: DefaultTimeoutMinimum,
		TimeoutMaximum: DefaultTimeoutMaximum,
	}
}

// Normalize fills zero fields with defaults and keeps TimeoutMaximum no
// smaller than TimeoutMinimum.
func (t Timing) Normalize() Timing {
	if t.PingInterval <= 0 {
		t.PingInterval = DefaultPingInterval
	}
	if t.TimeoutLimit == 0 {
		t.TimeoutLimit = DefaultTimeoutLimit
	}
	if t.TimeoutMinimum <= 0 {
		t.TimeoutMinimum = DefaultTimeoutMinimum
	}
	if t.TimeoutMaximum <= 0 {
		t.TimeoutMaximum = DefaultTimeoutMaximum
	}
	if t.TimeoutMaximum < t.TimeoutMinimum {
		t.TimeoutMaximum = t.TimeoutMinimum
	}
	return t
}

// Expired reports whether silence means the peer is gone.
func (t Timing) Expired(silence, rtt time.Duration) bool {
	if silence >= t.TimeoutMaximum {
		return true
	}
	if silence < t.TimeoutMinimum {
		return false
	}
	return silence >= time.Duration(t.TimeoutLimit)*rtt
}
