package command

import "sync"

// messageRingCapacity is spec.md §3's "Capacity N (256)".
const messageRingCapacity = 256

// Message is one message-ring entry: text plus the id of the client
// holding the exclusive lock at insertion time, or -1 — spec.md §3.
type Message struct {
	Text string
	CID  int
}

// MessageRing is a fixed-capacity ring buffer of log/alert text, shared
// between the reader (writer) and any number of HTTP update-subscriber
// goroutines (readers, each with its own read cursor) — spec.md §3
// "Message ring" (C1).
type MessageRing struct {
	mu      sync.Mutex
	buf     [messageRingCapacity]Message
	next    int // index the next Write will occupy
	written int64
}

// NewMessageRing returns an empty ring.
func NewMessageRing() *MessageRing {
	return &MessageRing{}
}

// Write appends text, overwriting the oldest entry once the ring is
// full. cid identifies the exclusive client holding the lock at the
// time of the write, or -1.
func (m *MessageRing) Write(cid int, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next%messageRingCapacity] = Message{Text: text, CID: cid}
	m.next++
	m.written++
}

// Cursor is a per-reader position into the ring, opaque to callers.
type Cursor struct {
	pos int64
}

// NewCursor returns a cursor starting at the current write head, so the
// first Read call only sees messages written after this point.
func (m *MessageRing) NewCursor() Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Cursor{pos: m.written}
}

// ReadOne returns the single oldest message written since cursor visible
// to cid, and the cursor advanced past it, mirroring mpserver.c's
// serializeStatus: one message is attached to a status response at a
// time, trickling out over a client's repeated polls rather than
// batching. Returns ok=false and a cursor moved to the write head if
// nothing new is visible yet.
func (m *MessageRing) ReadOne(cursor Cursor, cid int, lock *ClientLock) (msg string, next Cursor, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := cursor.pos
	if m.written-start > messageRingCapacity {
		start = m.written - messageRingCapacity
	}

	for pos := start; pos < m.written; pos++ {
		entry := m.buf[pos%messageRingCapacity]
		if lock == nil || lock.VisibleTo(cid) || entry.CID == cid || entry.CID == unboundClient {
			return entry.Text, Cursor{pos: pos + 1}, true
		}
	}
	return "", Cursor{pos: m.written}, false
}

// Read returns every message written since cursor, newest last, and the
// advanced cursor. Messages whose CID doesn't match lock.VisibleTo(cid)
// are skipped (serialized to "" in the original, but it's simpler and
// equally correct for this API to just omit them from the slice) —
// spec.md §4.8's "peek serializes to "" for non-holder clients".
func (m *MessageRing) Read(cursor Cursor, cid int, lock *ClientLock) ([]string, Cursor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := cursor.pos
	if m.written-start > messageRingCapacity {
		// Reader fell behind the overwrite window; skip to the oldest
		// entry still present rather than replaying stale slots.
		start = m.written - messageRingCapacity
	}

	var out []string
	for pos := start; pos < m.written; pos++ {
		entry := m.buf[pos%messageRingCapacity]
		if lock == nil || lock.VisibleTo(cid) || entry.CID == cid || entry.CID == unboundClient {
			out = append(out, entry.Text)
		}
	}
	return out, Cursor{pos: m.written}
}
