package player

import "sync"

// WatchdogTimeout is the tick count at which the watchdog trips —
// spec.md §4.9's WATCHDOG_TIMEOUT. Ten consecutive 1-second idle ticks
// without decoder output, per spec.md §8 scenario 6.
const WatchdogTimeout = 10

// Watchdog counts idle reader ticks that occur while playing and not
// idle, tripping once it reaches WatchdogTimeout — spec.md §4.9 (C12).
// Any received byte from a decoder resets it to zero.
type Watchdog struct {
	mu    sync.Mutex
	count int
}

// Tick increments the counter and reports whether it has now reached
// the timeout.
func (w *Watchdog) Tick() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count++
	return w.count >= WatchdogTimeout
}

// Reset zeroes the counter — called whenever a decoder produces output.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count = 0
}

// ForceTrip immediately sets the counter to the timeout, so the next
// Tick (or an immediate check) reports tripped. The reader calls it
// when the foreground decoder reports a fatal @E error.
func (w *Watchdog) ForceTrip() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count = WatchdogTimeout
}

// Count returns the current tick count, for status reporting.
func (w *Watchdog) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
