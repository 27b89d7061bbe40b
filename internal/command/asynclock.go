package command

import "sync/atomic"

// AsyncLock guards the single detached async worker slot (dbclean,
// doublets, dbinfo, profile) — spec.md §4.8's `_asynclock` /
// asyncTest(). Implemented with an atomic flag rather than a mutex
// since the only operation is try-acquire/release, never a blocking
// wait — a worker that can't get the lock reports "player is busy"
// instead of queuing.
type AsyncLock struct {
	held atomic.Bool
}

// NewAsyncLock returns an unlocked AsyncLock.
func NewAsyncLock() *AsyncLock { return &AsyncLock{} }

// TryAcquire attempts to take the lock, returning false if a worker is
// already running — spec.md §4.8 asyncTest().
func (a *AsyncLock) TryAcquire() bool {
	return a.held.CompareAndSwap(false, true)
}

// Release frees the lock for the next async worker.
func (a *AsyncLock) Release() {
	a.held.Store(false)
}

// Busy reports whether an async worker currently holds the lock.
func (a *AsyncLock) Busy() bool {
	return a.held.Load()
}
