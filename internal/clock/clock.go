// Package clock provides the monotonic tick source and polled one-shot timer
// used throughout the connection engine. It is a thin wrapper over
// time.Now/time.Since; the abstractions built on top of it — Tick,
// TicksPerSec, PolledTimer — are what the rest of the package depends on.
package clock

import "time"

// Tick is a monotonically increasing instant, comparable with ordinary
// subtraction since it is backed by a monotonic clock reading.
type Tick int64

// TicksPerSec reports how many Tick units make up one second.
const TicksPerSec = int64(time.Second)

// start anchors Now's monotonic reading. time.Now().UnixNano() would strip
// the monotonic component and expose Tick arithmetic to wall-clock
// adjustments (NTP step, manual clock set); measuring elapsed time against a
// fixed start via time.Since keeps the monotonic reading intact.
var start = time.Now()

// Now returns the current Tick.
func Now() Tick {
	return Tick(time.Since(start))
}

// Since returns how much time has elapsed since t, as a Duration.
func Since(t Tick) time.Duration {
	return time.Duration(Now() - t)
}

// IsNewer reports whether a is strictly newer (later) than b.
func IsNewer(a, b Tick) bool {
	return a > b
}

// PolledTimer is a one-shot timer that must be actively polled with
// TriggeredOrNotRunning/Triggered; it performs no background scheduling of
// its own, matching kNet's PolledTimer.h.
type PolledTimer struct {
	deadline Tick
	running  bool
}

// StartMSecs (re)arms the timer to trigger after the given number of
// milliseconds from now.
func (p *PolledTimer) StartMSecs(msecs float64) {
	p.deadline = Now() + Tick(msecs*float64(time.Millisecond))
	p.running = true
}

// Triggered reports whether the timer is running and has passed its deadline.
func (p *PolledTimer) Triggered() bool {
	return p.running && Now() >= p.deadline
}

// TriggeredOrNotRunning reports whether the timer has fired, or was never
// started — the common "do the periodic thing now" check used by the
// connection update loop.
func (p *PolledTimer) TriggeredOrNotRunning() bool {
	return !p.running || Now() >= p.deadline
}
