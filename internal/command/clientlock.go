package command

import "sync"

// unboundClient is the _curclient sentinel meaning "no client holds
// the exclusive lock".
const unboundClient = -1

// ClientLock pins message-ring output to a single client id while a
// streaming/out-of-band command (dbinfo, dbclean, doublets, search) is
// in flight — spec.md §4.8's `_clientlock`/`_curclient`. Per spec.md §5,
// this lock is *always* attempted with TryLock; a caller that can't get
// it treats that as a normal business outcome, never a blocking wait.
type ClientLock struct {
	mu      sync.Mutex
	current int
}

// NewClientLock returns an unheld ClientLock.
func NewClientLock() *ClientLock {
	return &ClientLock{current: unboundClient}
}

// TrySetCurClient attempts to pin the exclusive lock to cid. Returns
// false if another client already holds it — spec.md §4.8 setCurClient.
func (c *ClientLock) TrySetCurClient(cid int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != unboundClient {
		return false
	}
	c.current = cid
	return true
}

// UnlockClient releases the exclusive lock if cid currently holds it.
func (c *ClientLock) UnlockClient(cid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == cid {
		c.current = unboundClient
	}
}

// CurClient returns the id of the client currently holding the
// exclusive lock, or unboundClient if none does.
func (c *ClientLock) CurClient() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// VisibleTo reports whether message-ring output should be visible to
// cid right now: true if no client holds the lock, or cid is the
// holder — spec.md §4.8: "peek serializes to "" for non-holder clients
// during this period."
func (c *ClientLock) VisibleTo(cid int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == unboundClient || c.current == cid
}
