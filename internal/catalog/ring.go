package catalog

import (
	"sort"
	"sync"
)

// Catalog is the in-memory title catalog: a dense arena of titles plus an
// index-based permutation (next/prev arrays keyed by stable arena id)
// forming the cyclic ring described in spec.md §3. This replaces the
// original's raw-pointer doubly linked ring per the re-architecture
// guidance in spec.md §9 ("represent the catalog as a dense indexed
// vector, use key−1 indices instead of raw pointers; the ring is a
// permutation").
type Catalog struct {
	mu sync.RWMutex

	arena []*Title // arena[i].id == i; entries are never removed from the slice, only tombstoned
	next  []int    // next[id] = arena id of the next title in ring order
	prev  []int    // prev[id] = arena id of the previous title in ring order
	head  int      // arena id of ring position 0, or -1 if the ring is empty
	count int      // number of live (non-removed) titles

	byPath map[string]int // path -> arena id, live entries only

	dirty int    // number of mutations since the last write()
	path  string // backing database file, set by Open/Load
}

// NewCatalog returns an empty catalog ready for Load or AddTitles.
func NewCatalog() *Catalog {
	return &Catalog{
		head:   -1,
		byPath: make(map[string]int),
	}
}

// Count returns the number of live titles in the ring.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// ByID returns the title with the given stable arena id, or nil if it has
// been removed or never existed.
func (c *Catalog) ByID(id int) *Title {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byIDLocked(id)
}

func (c *Catalog) byIDLocked(id int) *Title {
	if id < 0 || id >= len(c.arena) {
		return nil
	}
	t := c.arena[id]
	if t == nil || t.removed {
		return nil
	}
	return t
}

// ByPath returns the title at the given catalog-relative path, if present.
func (c *Catalog) ByPath(path string) *Title {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byPath[path]
	if !ok {
		return nil
	}
	return c.arena[id]
}

// ByKey returns the title whose Key (1-based position as of the last
// load/write) equals key.
func (c *Catalog) ByKey(key int) *Title {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.arena {
		if t != nil && !t.removed && t.Key == key {
			return t
		}
	}
	return nil
}

// Head returns the title at ring position 0, or nil if the catalog is
// empty.
func (c *Catalog) Head() *Title {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.head < 0 {
		return nil
	}
	return c.arena[c.head]
}

// Next returns the title following t in ring order (wrapping), or nil if
// the ring is empty.
func (c *Catalog) Next(t *Title) *Title {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.count == 0 || t == nil {
		return nil
	}
	return c.arena[c.next[t.id]]
}

// Prev returns the title preceding t in ring order (wrapping), or nil if
// the ring is empty.
func (c *Catalog) Prev(t *Title) *Title {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.count == 0 || t == nil {
		return nil
	}
	return c.arena[c.prev[t.id]]
}

// Each calls fn for every live title in ring order, starting from head.
// fn must not mutate the catalog.
func (c *Catalog) Each(fn func(*Title)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.eachLocked(fn)
}

func (c *Catalog) eachLocked(fn func(*Title)) {
	if c.head < 0 {
		return
	}
	id := c.head
	for i := 0; i < c.count; i++ {
		fn(c.arena[id])
		id = c.next[id]
	}
}

// All returns every live title, in ring order.
func (c *Catalog) All() []*Title {
	out := make([]*Title, 0)
	c.Each(func(t *Title) { out = append(out, t) })
	return out
}

// growRingArrays extends next/prev to cover a newly appended arena slot.
func (c *Catalog) growRingArrays() {
	c.next = append(c.next, 0)
	c.prev = append(c.prev, 0)
}

// insertTail appends id at the end of ring order (just before head),
// preserving insertion order as required by spec.md §3: "incremental
// additions append".
func (c *Catalog) insertTail(id int) {
	if c.count == 0 {
		c.head = id
		c.next[id] = id
		c.prev[id] = id
	} else {
		tail := c.prev[c.head]
		c.next[tail] = id
		c.prev[id] = tail
		c.next[id] = c.head
		c.prev[c.head] = id
	}
	c.count++
}

// add appends a new title to the arena and ring, in insertion order, with
// Key set to its 1-based position — grounded on the teacher's
// TrackLibrary.Add dual-indexing (checksum map + slice), generalised to
// the arena+permutation form the ring requires.
func (c *Catalog) add(t *Title) *Title {
	id := len(c.arena)
	t.id = id
	t.Key = c.count + 1
	c.arena = append(c.arena, t)
	c.growRingArrays()
	c.insertTail(id)
	c.byPath[t.Path] = id
	c.dirty++
	return t
}

// Insert adds a title to the catalog ring directly, bypassing disk
// scanning — used by the HTTP/admin surface for programmatic catalog
// edits and by tests that don't want to stage real MP3 files on disk.
func (c *Catalog) Insert(t *Title) *Title {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(t)
}

// remove unlinks a title from the ring. The title's data stays in the
// arena (tombstoned) so arena ids already captured elsewhere (e.g. a
// playlist entry's catalog reference) can still detect removal via
// ByID returning nil, rather than dangling.
func (c *Catalog) remove(t *Title) {
	if t == nil || t.removed {
		return
	}
	id := t.id
	if c.count == 1 {
		c.head = -1
	} else {
		p, n := c.prev[id], c.next[id]
		c.next[p] = n
		c.prev[n] = p
		if c.head == id {
			c.head = n
		}
	}
	c.count--
	delete(c.byPath, t.Path)
	t.removed = true
	c.dirty++
}

// reindexKeys walks the ring in order and reassigns Key = position+1,
// restoring invariant 1 of spec.md §8. Called by Write; Load assigns the
// same keys directly while it builds the ring.
func (c *Catalog) reindexKeysLocked() {
	pos := 1
	c.eachLocked(func(t *Title) {
		t.Key = pos
		pos++
	})
}

// sortScanEntries sorts file paths the way the original implementation's
// directory scan does: numerically if both entries begin with digits,
// otherwise case-insensitively — preserved from original_source/musicmgr.c
// per SPEC_FULL.md §4.
func sortScanEntries(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		return scanLess(paths[i], paths[j])
	})
}

func scanLess(a, b string) bool {
	an, aIsNum := leadingNumber(a)
	bn, bIsNum := leadingNumber(b)
	if aIsNum && bIsNum {
		if an != bn {
			return an < bn
		}
		return a < b
	}
	return foldLess(a, b)
}

func leadingNumber(s string) (int, bool) {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

func foldLess(a, b string) bool {
	la, lb := len(a), len(b)
	for i := 0; i < la && i < lb; i++ {
		ca, cb := foldByte(a[i]), foldByte(b[i])
		if ca != cb {
			return ca < cb
		}
	}
	return la < lb
}

func foldByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}
