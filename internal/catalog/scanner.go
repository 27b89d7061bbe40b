package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// scanDir recursively walks basedir and returns every regular file whose
// name ends in ".mp3" (case-insensitive), excluding hidden entries, with
// directory entries ordered the way the original scan does: numerically
// if both begin with digits, otherwise case-insensitively — spec.md §4.1.
func scanDir(basedir string) ([]string, error) {
	var out []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(entries))
		byName := make(map[string]os.DirEntry, len(entries))
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			names = append(names, e.Name())
			byName[e.Name()] = e
		}
		sortScanEntries(names)

		for _, name := range names {
			e := byName[name]
			full := filepath.Join(dir, name)
			if e.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			if strings.HasSuffix(strings.ToLower(name), ".mp3") {
				out = append(out, full)
			}
		}
		return nil
	}

	if err := walk(basedir); err != nil {
		return nil, err
	}
	return out, nil
}

// AddTitles scans basedir for music files not already in the catalog and
// inserts a record for each, with PlayCount seeded from the maximum
// PlayCount over non-DNP/non-DBL titles minus one (or 0 if the catalog is
// empty) so newly discovered titles surface quickly — spec.md §4.1
// addTitles(basedir).
func (c *Catalog) AddTitles(basedir string) (added int, err error) {
	paths, err := scanDir(basedir)
	if err != nil {
		return 0, fmt.Errorf("catalog: scan %s: %w", basedir, err)
	}

	c.mu.Lock()
	existing := make(map[string]bool, len(c.byPath))
	for p := range c.byPath {
		existing[p] = true
	}
	seedCount := c.seedPlayCountLocked()
	c.mu.Unlock()

	for _, full := range paths {
		rel, err := filepath.Rel(basedir, full)
		if err != nil {
			rel = full
		}
		if existing[rel] {
			continue
		}

		t, err := newTitleFromPath(full, rel)
		if err != nil {
			slog.Warn("catalog: skipping unreadable file", "path", full, "error", err)
			continue
		}
		t.PlayCount = seedCount

		c.mu.Lock()
		c.add(t)
		c.mu.Unlock()
		added++
	}

	if added > 0 {
		if err := c.Write(false); err != nil {
			return added, err
		}
	}
	return added, nil
}

// seedPlayCountLocked computes max(PlayCount) over titles that are
// neither DNP nor DBL, minus one, floored at 0. Caller must hold c.mu.
func (c *Catalog) seedPlayCountLocked() uint32 {
	var max uint32
	found := false
	c.eachLocked(func(t *Title) {
		if t.Flags.Has(DNP) || t.Flags.Has(DBL) {
			return
		}
		if !found || t.PlayCount > max {
			max = t.PlayCount
			found = true
		}
	})
	if !found || max == 0 {
		return 0
	}
	return max - 1
}

// CheckExist removes from the ring every title whose Path no longer
// resolves under basedir, returning the count removed — spec.md §4.1
// checkExist().
func (c *Catalog) CheckExist(basedir string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*Title
	c.eachLocked(func(t *Title) {
		full := filepath.Join(basedir, t.Path)
		if _, err := os.Stat(full); os.IsNotExist(err) {
			toRemove = append(toRemove, t)
		}
	})
	for _, t := range toRemove {
		c.remove(t)
	}
	return len(toRemove)
}

// DoubletPair describes an ambiguous same-Display pair that nameCheck
// could not confidently classify, written out for manual review.
type DoubletPair struct {
	A, B *Title
}

// NameCheck detects doublets (titles sharing the same Display) and
// classifies each pair by whether each title's Artist/Album also occurs
// in its own Path: the title whose metadata is *not* reflected in the
// path is marked DBL, persisting a "p=<path>" rule to dbl the same way
// HandleDBL does for any other doublet. Ambiguous pairs (both or
// neither reflect their metadata in the path) are returned for a human
// to resolve rather than guessed at — spec.md §4.1 nameCheck().
func (c *Catalog) NameCheck(dbl *MarkList) (marked int, ambiguous []DoubletPair) {
	var toMark []*Title

	c.mu.Lock()
	byDisplay := make(map[string][]*Title)
	c.eachLocked(func(t *Title) {
		byDisplay[t.Display] = append(byDisplay[t.Display], t)
	})

	for _, group := range byDisplay {
		if len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				aReflects := metadataInPath(a)
				bReflects := metadataInPath(b)
				switch {
				case aReflects && !bReflects:
					toMark = append(toMark, b)
				case bReflects && !aReflects:
					toMark = append(toMark, a)
				default:
					ambiguous = append(ambiguous, DoubletPair{A: a, B: b})
				}
			}
		}
	}
	c.mu.Unlock()

	// HandleDBL takes c.mu itself, so the persisting pass runs after the
	// detection scan above has released it.
	for _, t := range toMark {
		if _, added, err := c.HandleDBL(t, dbl); err == nil && added {
			marked++
		}
	}
	return marked, ambiguous
}

func metadataInPath(t *Title) bool {
	p := strings.ToLower(t.Path)
	if t.Artist != "" && strings.Contains(p, strings.ToLower(t.Artist)) {
		return true
	}
	if t.Album != "" && strings.Contains(p, strings.ToLower(t.Album)) {
		return true
	}
	return false
}

