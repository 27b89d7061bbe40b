// Package playlist implements the non-cyclic doubly linked playlist that
// sits between the catalog ring (internal/catalog) and the reader state
// machine — spec.md §3 "Playlist entry" and §4.4 "Playlist & scheduling
// interactions" (component C6).
package playlist

import (
	"sync"

	"github.com/foxbow/mixplay/internal/catalog"
)

// Entry is one playlist node. Titles are referenced, not owned: removing
// an entry never deletes the underlying catalog title, but does clear its
// MARK flag.
type Entry struct {
	prev, next *Entry
	Title      *catalog.Title
}

func (e *Entry) Prev() *Entry { return e.prev }
func (e *Entry) Next() *Entry { return e.next }

// Playlist is a doubly linked, non-cyclic list of Entry nodes with a
// current cursor. Both ends are nil, unlike the cyclic catalog ring.
// Mutation is serialized by mu — spec.md §4.4: "Playlist mutation is
// serialized by a single playlist mutex."
type Playlist struct {
	mu      sync.Mutex
	head    *Entry
	tail    *Entry
	current *Entry
	length  int
}

// New returns an empty playlist.
func New() *Playlist {
	return &Playlist{}
}

// Lock/Unlock/TryLock expose the playlist mutex directly — spec.md §5's
// lock ordering names "playlist mutex" as a single step. Every other
// Playlist method takes this same mutex itself and it is not reentrant,
// so none of them can be called while a caller holds it.
func (p *Playlist) Lock()        { p.mu.Lock() }
func (p *Playlist) Unlock()      { p.mu.Unlock() }
func (p *Playlist) TryLock() bool { return p.mu.TryLock() }

func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.length
}

func (p *Playlist) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.length == 0
}

func (p *Playlist) Head() *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

func (p *Playlist) Tail() *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tail
}

func (p *Playlist) Current() *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Playlist) SetCurrent(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = e
}

// Entries returns every entry head-to-tail. Used by tests, never on a
// hot path.
func (p *Playlist) Entries() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entry, 0, p.length)
	for e := p.head; e != nil; e = e.next {
		out = append(out, e)
	}
	return out
}

// HistoryCount returns the number of entries strictly before current.
func (p *Playlist) HistoryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return 0
	}
	n := 0
	for e := p.current.prev; e != nil; e = e.prev {
		n++
	}
	return n
}

// QueueCount returns the number of entries strictly after current.
func (p *Playlist) QueueCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return 0
	}
	n := 0
	for e := p.current.next; e != nil; e = e.next {
		n++
	}
	return n
}

// Advance moves current to its successor (or to nil past the tail) and
// returns the new current.
func (p *Playlist) Advance() *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current = p.current.next
	}
	return p.current
}

// Retreat moves current to its predecessor and returns the new current.
func (p *Playlist) Retreat() *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.prev != nil {
		p.current = p.current.prev
	}
	return p.current
}

// Step moves current forward n entries (n>0) or back |n| entries (n<0),
// clamping at either end rather than overrunning — spec.md §4.7's
// "@P 0 ... order" displacement handling.
func (p *Playlist) Step(n int) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ; n > 0 && p.current != nil && p.current.next != nil; n-- {
		p.current = p.current.next
	}
	for ; n < 0 && p.current != nil && p.current.prev != nil; n++ {
		p.current = p.current.prev
	}
	return p.current
}

// AddAfter inserts a new entry referencing t immediately after "after"
// (nil means insert at head, becoming the sole entry if the list was
// empty). If mark is true, MARK is set on t; a title already MARK-ed is
// logged by the caller but still inserted — spec.md §4.4 addToPL.
func (p *Playlist) AddAfter(after *Entry, t *catalog.Title, mark bool) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := &Entry{Title: t}
	if mark {
		t.Flags |= catalog.MARK
	}

	if after == nil {
		e.next = p.head
		if p.head != nil {
			p.head.prev = e
		}
		p.head = e
		if p.tail == nil {
			p.tail = e
		}
	} else {
		e.prev = after
		e.next = after.next
		if after.next != nil {
			after.next.prev = e
		} else {
			p.tail = e
		}
		after.next = e
	}
	p.length++
	return e
}

// AddTail is a convenience for addToPL(title, pl.tail, mark).
func (p *Playlist) AddTail(t *catalog.Title, mark bool) *Entry {
	tail := p.Tail()
	return p.AddAfter(tail, t, mark)
}

// removeLocked unlinks e, clearing MARK on its title, fixing up current if e
// was it. Caller must hold mu.
func (p *Playlist) removeLocked(e *Entry) {
	e.Title.Flags &^= catalog.MARK

	if e.prev != nil {
		e.prev.next = e.next
	} else {
		p.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		p.tail = e.prev
	}
	p.length--

	if p.current == e {
		if e.next != nil {
			p.current = e.next
		} else {
			p.current = e.prev
		}
	}
	e.prev, e.next = nil, nil
}

// findByKeyLocked locates the entry whose title key equals key. Caller must
// hold mu.
func (p *Playlist) findByKeyLocked(key int) *Entry {
	for e := p.head; e != nil; e = e.next {
		if e.Title.Key == key {
			return e
		}
	}
	return nil
}

// RemoveByTitleKey removes the entry referencing the title with the
// given catalog key, if present. Returns the removed entry (or nil) and
// whether it had been MARK-ed at the time of removal (the caller is
// responsible for the §4.5 skip-count accounting this implies) —
// spec.md §4.4 remFromPLByKey.
func (p *Playlist) RemoveByTitleKey(key int) (removed *Entry, wasMarked bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.findByKeyLocked(key)
	if e == nil {
		return nil, false
	}
	wasMarked = e.Title.Flags.Has(catalog.MARK)
	p.removeLocked(e)
	return e, wasMarked
}

// Remove unlinks an already-resolved entry (used internally by plCheck
// and by callers that already hold a reference).
func (p *Playlist) Remove(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(e)
}

// MoveByTitleKey reorders the entry referencing fromKey so that it
// becomes the successor of the entry referencing afterKey (or becomes
// head if afterKey == 0). If the moved entry was in history (strictly
// before current), its MARK is cleared — it becomes a fresh insertion
// in the queue — spec.md §4.4 moveTitleByIndex.
func (p *Playlist) MoveByTitleKey(fromKey, afterKey int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	from := p.findByKeyLocked(fromKey)
	if from == nil {
		return false
	}

	wasHistory := false
	for e := p.current; e != nil; e = e.prev {
		if e == from {
			wasHistory = e != p.current
			break
		}
	}

	var after *Entry
	if afterKey != 0 {
		after = p.findByKeyLocked(afterKey)
		if after == nil {
			return false
		}
		if after == from {
			return false
		}
	}

	wasMarked := from.Title.Flags.Has(catalog.MARK)
	p.removeLocked(from)
	from.prev, from.next = nil, nil

	if after == nil {
		from.next = p.head
		if p.head != nil {
			p.head.prev = from
		}
		p.head = from
		if p.tail == nil {
			p.tail = from
		}
	} else {
		from.prev = after
		from.next = after.next
		if after.next != nil {
			after.next.prev = from
		} else {
			p.tail = from
		}
		after.next = from
	}
	p.length++

	if wasHistory {
		from.Title.Flags &^= catalog.MARK
	} else if wasMarked {
		from.Title.Flags |= catalog.MARK
	}
	return true
}

// Clear empties the playlist, clearing MARK on every referenced title.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for e := p.head; e != nil; e = e.next {
		e.Title.Flags &^= catalog.MARK
	}
	p.head, p.tail, p.current = nil, nil, nil
	p.length = 0
}

// TruncateHistory drops entries strictly before current beyond keep,
// clearing MARK on each dropped entry, and returns the titles that were
// dropped — spec.md §4.3 plCheck "Truncate history" step.
func (p *Playlist) TruncateHistory(keep int) []*catalog.Title {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil
	}
	var before []*Entry
	for e := p.current.prev; e != nil; e = e.prev {
		before = append(before, e)
	}
	if len(before) <= keep {
		return nil
	}

	var dropped []*catalog.Title
	for _, e := range before[keep:] {
		e.Title.Flags &^= catalog.MARK
		dropped = append(dropped, e.Title)
		if e.prev != nil {
			e.prev.next = e.next
		} else {
			p.head = e.next
		}
		if e.next != nil {
			e.next.prev = e.prev
		}
		p.length--
	}
	return dropped
}

// RemoveMatching deletes every entry for which drop returns true,
// adjusting current per spec.md §4.3 plCheck("delete"): if the current
// entry is removed, current becomes the following entry, or the
// preceding one if there is no successor.
func (p *Playlist) RemoveMatching(drop func(*catalog.Title) bool) []*catalog.Title {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []*catalog.Title
	e := p.head
	for e != nil {
		nextEntry := e.next
		if drop(e.Title) {
			removed = append(removed, e.Title)
			p.removeLocked(e)
		}
		e = nextEntry
	}
	return removed
}
