package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Rule is one mark-list entry: "<range><op><pattern>" as described in
// spec.md §3 ("Mark list"). range selects which title field to compare
// (t=title, a=artist, l=album, g=genre, d=display, p=path); op selects
// exact ('=') or fuzzy ('*') matching.
type Rule struct {
	Range   byte
	Op      byte
	Pattern string
}

var validRanges = "talgdp"

// ParseRule parses a single "<range><op><pattern>" line.
func ParseRule(line string) (Rule, error) {
	if len(line) < 2 {
		return Rule{}, fmt.Errorf("catalog: rule %q too short", line)
	}
	rangeCode := line[0]
	if !strings.ContainsRune(validRanges, rune(rangeCode)) {
		return Rule{}, fmt.Errorf("catalog: unknown range code %q in rule %q", rangeCode, line)
	}
	op := line[1]
	if op != '=' && op != '*' {
		return Rule{}, fmt.Errorf("catalog: unknown operator %q in rule %q", op, line)
	}
	return Rule{Range: rangeCode, Op: op, Pattern: line[2:]}, nil
}

// String renders the rule back to its "<range><op><pattern>" form.
func (r Rule) String() string {
	return string(r.Range) + string(r.Op) + r.Pattern
}

// Matches reports whether title t satisfies rule r.
func (r Rule) Matches(t *Title) bool {
	field, err := t.Field(r.Range)
	if err != nil {
		return false
	}
	if r.Op == '=' {
		return exactMatch(r.Pattern, field)
	}
	return checkSim(r.Pattern, field)
}

// MarkList is an ordered, file-backed sequence of rules — spec.md §3's
// DNP/FAV/DBL lists. Persisted one rule per line, LF terminated.
type MarkList struct {
	mu    sync.Mutex
	path  string
	rules []Rule
}

// LoadMarkList reads a mark-list file, or returns an empty list if it does
// not exist yet.
func LoadMarkList(path string) (*MarkList, error) {
	m := &MarkList{path: path}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: open mark list %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		r, err := ParseRule(line)
		if err != nil {
			continue
		}
		m.rules = append(m.rules, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("catalog: read mark list %s: %w", path, err)
	}
	return m, nil
}

// Rules returns a copy of the list's rules, in order.
func (m *MarkList) Rules() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Add appends r to the list and persists it, rejecting an exact duplicate
// rule (range, op, and pattern all equal) while preserving existing rule
// order — spec.md §8 round-trip law: "Adding the same rule twice to a
// mark list is rejected; rule order is preserved."
func (m *MarkList) Add(r Rule) (added bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.rules {
		if existing == r {
			return false, nil
		}
	}
	m.rules = append(m.rules, r)
	if err := m.saveLocked(); err != nil {
		m.rules = m.rules[:len(m.rules)-1]
		return false, err
	}
	return true, nil
}

func (m *MarkList) saveLocked() error {
	var b strings.Builder
	for _, r := range m.rules {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}

	dir := dirOf(m.path)
	tmp, err := os.CreateTemp(dir, "marklist.tmp-*")
	if err != nil {
		return fmt.Errorf("catalog: create temp mark-list file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("catalog: write mark-list file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog: rename mark-list file into place: %w", err)
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// ClearFlags clears every bit in mask on every title — player.c's
// cleanTitles(1) clearing FAV/DNP before a database profile switch
// reloads and reapplies its own per-profile mark lists. DBL is never
// passed here; it is global across profiles and survives a switch.
func (c *Catalog) ClearFlags(mask Flags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eachLocked(func(t *Title) {
		t.Flags &^= mask
	})
}

// ApplyDNP sets DNP on every title (not already DNP) matching any rule in
// list, returning the newly-flagged titles so the caller can prune them
// from the current playlist (playlist mutation is outside this package,
// per spec.md §4.4) — spec.md §4.2 applyDNP(list).
func (c *Catalog) ApplyDNP(list []Rule) []*Title {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []*Title
	c.eachLocked(func(t *Title) {
		if t.Flags.Has(DNP) {
			return
		}
		for _, r := range list {
			if r.Matches(t) {
				t.Flags |= DNP
				changed = append(changed, t)
				c.dirty++
				return
			}
		}
	})
	return changed
}

// ApplyFAV applies the FAV mark list. If exclusive (favplay mode), every
// title is first forced to DNP, then FAV is set (clearing DNP) on
// matching titles — so only favourites remain eligible. Otherwise FAV is
// set only on titles not already DNP. In both modes PlayCount is copied
// into FavPCount whenever a title newly gains FAV, so the favplay fairness counter
// starts from the title's real play history — spec.md §4.2
// applyFAV(list, exclusive).
func (c *Catalog) ApplyFAV(list []Rule, exclusive bool) []*Title {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []*Title

	if exclusive {
		c.eachLocked(func(t *Title) {
			t.Flags = (t.Flags &^ FAV) | DNP
		})
	}

	c.eachLocked(func(t *Title) {
		matched := false
		for _, r := range list {
			if r.Matches(t) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}

		if exclusive {
			if !t.Flags.Has(FAV) {
				t.Flags = (t.Flags &^ DNP) | FAV
				t.FavPCount = t.PlayCount
				changed = append(changed, t)
				c.dirty++
			}
			return
		}

		if t.Flags.Has(DNP) {
			return
		}
		if !t.Flags.Has(FAV) {
			t.Flags |= FAV
			t.FavPCount = t.PlayCount
			changed = append(changed, t)
			c.dirty++
		}
	})

	return changed
}

// ApplyDBL sets DBL on every title (not already DBL) matching any rule in
// list — the startup-time counterpart to HandleDBL, which flags one
// title at a time as doublets are discovered; this reapplies the
// persisted global doublet list to a freshly loaded catalog.
func (c *Catalog) ApplyDBL(list []Rule) []*Title {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []*Title
	c.eachLocked(func(t *Title) {
		if t.Flags.Has(DBL) {
			return
		}
		for _, r := range list {
			if r.Matches(t) {
				t.Flags |= DBL
				changed = append(changed, t)
				c.dirty++
				return
			}
		}
	})
	return changed
}

// HandleRange derives a rule from title t's field named by rangeCode plus
// op, rejects it if it is already present in list, appends it to list
// (persisting to disk), and — on success — re-applies list to the whole
// catalog so the new rule takes effect immediately. Returns the resulting
// rule and the titles it newly flagged — spec.md §4.2 handleRange(title,
// cmd), where list is whichever of DNP/FAV the caller is editing.
func (c *Catalog) HandleRange(t *Title, rangeCode, op byte, list *MarkList, isFAV, exclusive bool) (Rule, []*Title, error) {
	field, err := t.Field(rangeCode)
	if err != nil {
		return Rule{}, nil, err
	}
	rule := Rule{Range: rangeCode, Op: op, Pattern: field}

	added, err := list.Add(rule)
	if err != nil {
		return rule, nil, err
	}
	if !added {
		return rule, nil, nil
	}

	if isFAV {
		return rule, c.ApplyFAV(list.Rules(), exclusive), nil
	}
	return rule, c.ApplyDNP(list.Rules()), nil
}

// HandleDBL derives the fixed "p=<path>" rule for t, appends it to dbl
// (persisting to disk, rejecting an exact duplicate the same way
// HandleRange does for DNP/FAV), and sets DBL on t so the scheduler
// treats it as a DNP-equivalent from now on — spec.md's GLOSSARY "DBL:
// doublet ... treated like DNP by the scheduler", grounded on
// original_source/src/musicmgr.c's handleDBL, which always builds a
// path rule, appends it to the global doublet list, and applies it.
func (c *Catalog) HandleDBL(t *Title, dbl *MarkList) (rule Rule, added bool, err error) {
	rule = Rule{Range: 'p', Op: '=', Pattern: t.Path}
	added, err = dbl.Add(rule)
	if err != nil || !added {
		return rule, false, err
	}

	c.mu.Lock()
	t.Flags |= DBL
	c.dirty++
	c.mu.Unlock()

	return rule, true, nil
}
