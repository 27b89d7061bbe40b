package catalog

import (
	"path/filepath"
	"testing"
)

func TestMarkListAddRejectsDuplicateAndPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMarkList(filepath.Join(dir, "profile.dnp"))
	if err != nil {
		t.Fatalf("LoadMarkList: %v", err)
	}

	r1 := Rule{Range: 'a', Op: '=', Pattern: "Artist One"}
	r2 := Rule{Range: 't', Op: '*', Pattern: "Some Song"}

	added, err := m.Add(r1)
	if err != nil || !added {
		t.Fatalf("Add(r1) = %v, %v", added, err)
	}
	added, err = m.Add(r2)
	if err != nil || !added {
		t.Fatalf("Add(r2) = %v, %v", added, err)
	}
	added, err = m.Add(r1)
	if err != nil {
		t.Fatalf("Add(r1 dup): %v", err)
	}
	if added {
		t.Error("duplicate rule should not be added")
	}

	rules := m.Rules()
	if len(rules) != 2 || rules[0] != r1 || rules[1] != r2 {
		t.Errorf("rule order not preserved: %+v", rules)
	}

	// Reload from disk and confirm persistence + order survive.
	m2, err := LoadMarkList(m.path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	reloaded := m2.Rules()
	if len(reloaded) != 2 || reloaded[0] != r1 || reloaded[1] != r2 {
		t.Errorf("reloaded rules = %+v, want [%v %v]", reloaded, r1, r2)
	}
}

func TestHandleRangeThenApplyDNPMarksAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog()
	target := c.add(&Title{Path: "a.mp3", Artist: "X", Title: "Song", Display: "X - Song"})
	c.add(&Title{Path: "b.mp3", Artist: "Y", Title: "Other", Display: "Y - Other"})

	list, err := LoadMarkList(filepath.Join(dir, "p.dnp"))
	if err != nil {
		t.Fatalf("LoadMarkList: %v", err)
	}

	_, changed, err := c.HandleRange(target, 'd', '=', list, false, false)
	if err != nil {
		t.Fatalf("HandleRange: %v", err)
	}
	if len(changed) != 1 || changed[0] != target {
		t.Fatalf("HandleRange changed = %+v, want [target]", changed)
	}
	if !target.Flags.Has(DNP) {
		t.Error("target should be DNP after HandleRange")
	}

	// Idempotent: handling the same rule again should be a no-op (rule
	// already present, so Add reports false and no titles are re-flagged).
	_, changed2, err := c.HandleRange(target, 'd', '=', list, false, false)
	if err != nil {
		t.Fatalf("HandleRange (repeat): %v", err)
	}
	if len(changed2) != 0 {
		t.Errorf("repeat HandleRange should change nothing, got %+v", changed2)
	}
}

func TestApplyFAVExclusiveRestrictsToFavourites(t *testing.T) {
	c := NewCatalog()
	fav := c.add(&Title{Path: "a.mp3", Artist: "Fav Artist", Display: "Fav Artist - Song"})
	other := c.add(&Title{Path: "b.mp3", Artist: "Other Artist", Display: "Other Artist - Song"})

	rule := Rule{Range: 'a', Op: '=', Pattern: "Fav Artist"}
	c.ApplyFAV([]Rule{rule}, true)

	if !fav.Flags.Has(FAV) {
		t.Error("matching title should be FAV under exclusive favplay")
	}
	if fav.Flags.Has(DNP) {
		t.Error("FAV title must not also be DNP")
	}
	if !other.Flags.Has(DNP) {
		t.Error("non-matching title must be forced DNP under exclusive favplay")
	}
	if other.Flags.Has(FAV) {
		t.Error("non-matching title must not be FAV")
	}
}

func TestHandleDBLPersistsPathRuleAndFlagsTitle(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog()
	target := c.add(&Title{Path: "dupes/b.mp3", Artist: "X", Title: "Song", Display: "X - Song"})

	dbl, err := LoadMarkList(filepath.Join(dir, "mixplay.dbl"))
	if err != nil {
		t.Fatalf("LoadMarkList: %v", err)
	}

	rule, added, err := c.HandleDBL(target, dbl)
	if err != nil {
		t.Fatalf("HandleDBL: %v", err)
	}
	if !added {
		t.Fatal("HandleDBL should add a new doublet rule")
	}
	if rule != (Rule{Range: 'p', Op: '=', Pattern: "dupes/b.mp3"}) {
		t.Errorf("rule = %+v, want path rule for dupes/b.mp3", rule)
	}
	if !target.Flags.Has(DBL) {
		t.Error("target should be DBL after HandleDBL")
	}

	rules := dbl.Rules()
	if len(rules) != 1 || rules[0] != rule {
		t.Errorf("dbl rules = %+v, want [%v]", rules, rule)
	}

	// Idempotent: same path again should be rejected, like DNP/FAV.
	_, added2, err := c.HandleDBL(target, dbl)
	if err != nil {
		t.Fatalf("HandleDBL (repeat): %v", err)
	}
	if added2 {
		t.Error("repeat HandleDBL should not re-add the rule")
	}
}

func TestApplyDBLReflagsFromPersistedList(t *testing.T) {
	c := NewCatalog()
	target := c.add(&Title{Path: "dupes/b.mp3", Artist: "X", Title: "Song", Display: "X - Song"})
	other := c.add(&Title{Path: "a.mp3", Artist: "Y", Title: "Other", Display: "Y - Other"})

	rule := Rule{Range: 'p', Op: '=', Pattern: "dupes/b.mp3"}
	changed := c.ApplyDBL([]Rule{rule})

	if len(changed) != 1 || changed[0] != target {
		t.Fatalf("ApplyDBL changed = %+v, want [target]", changed)
	}
	if !target.Flags.Has(DBL) {
		t.Error("target should be DBL after ApplyDBL")
	}
	if other.Flags.Has(DBL) {
		t.Error("non-matching title must not be DBL")
	}
}

func TestNameCheckMarksDoubletWhosePathDoesNotReflectMetadata(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog()
	// a's path encodes its own artist/album; b shares a's Display but its
	// path encodes neither, so b is the one NameCheck should flag.
	a := c.add(&Title{Path: "Artist One/Song.mp3", Artist: "Artist One",
		Display: "Artist One - Song"})
	b := c.add(&Title{Path: "misc/track7.mp3", Artist: "Artist One",
		Display: "Artist One - Song"})

	dbl, err := LoadMarkList(filepath.Join(dir, "mixplay.dbl"))
	if err != nil {
		t.Fatalf("LoadMarkList: %v", err)
	}

	marked, ambiguous := c.NameCheck(dbl)
	if marked != 1 {
		t.Fatalf("marked = %d, want 1", marked)
	}
	if len(ambiguous) != 0 {
		t.Errorf("ambiguous = %+v, want none", ambiguous)
	}
	if a.Flags.Has(DBL) {
		t.Error("a reflects its own metadata in its path, should not be DBL")
	}
	if !b.Flags.Has(DBL) {
		t.Error("b does not reflect its metadata in its path, should be DBL")
	}
	if rules := dbl.Rules(); len(rules) != 1 || rules[0].Pattern != b.Path {
		t.Errorf("dbl rules = %+v, want a single rule for %s", rules, b.Path)
	}
}
