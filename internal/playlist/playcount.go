package playlist

import "github.com/foxbow/mixplay/internal/catalog"

// PlayCount implements spec.md §4.5: on transition off a title, update
// its skip/play counters and, once its skip count exceeds
// skipDNPThreshold, DNP it.
//
//   - streamMode: no-op, stream titles carry no catalog accounting.
//   - t not MARK, or already DNP: no-op (search-played or out-of-band).
//   - skipped: increment skipcount; past skipDNPThreshold, reset it and
//     DNP the title (handleRange(display, DNP)).
//   - else: decrement skipcount down to 0.
//   - favplay, or (FAV and favpcount < playcount): increment favpcount;
//     otherwise increment playcount and mark the catalog dirty.
func PlayCount(cat *catalog.Catalog, dnp *catalog.MarkList, t *catalog.Title, skipped, streamMode, favplay bool, skipDNPThreshold uint32) error {
	if streamMode {
		return nil
	}
	if !t.Flags.Has(catalog.MARK) || t.Flags.Has(catalog.DNP) {
		return nil
	}

	if skipped {
		t.SkipCount++
		if t.SkipCount > skipDNPThreshold {
			t.SkipCount = 0
			_, _, err := cat.HandleRange(t, 'd', '=', dnp, false, false)
			return err
		}
	} else if t.SkipCount > 0 {
		t.SkipCount--
	}

	if favplay || (t.Flags.Has(catalog.FAV) && t.FavPCount < t.PlayCount) {
		t.FavPCount++
	} else {
		t.PlayCount++
		cat.MarkDirty()
	}
	return nil
}
