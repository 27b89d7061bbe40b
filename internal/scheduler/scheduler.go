// Package scheduler implements the probabilistic mix scheduler — spec.md
// §4.3, component C5. It picks the next title to append to a playlist
// under anti-repeat (artist similarity) and fairness (playcount) limits,
// and keeps the playlist's history/queue windows sized around current.
package scheduler

import (
	"errors"
	"math/rand/v2"

	"github.com/foxbow/mixplay/internal/catalog"
	"github.com/foxbow/mixplay/internal/playlist"
)

// ErrNoTitles is returned by AddNewTitle when the catalog has no title
// eligible to play (every title is DNP, DBL or already MARK-ed) — spec.md
// §4.3 step 3's "fail 'no titles to play'".
var ErrNoTitles = errors.New("scheduler: no titles to play")

const (
	historyWindow = 10
	queueWindow   = 10
	streamWindow  = 20
)

// Scheduler grows and prunes a playlist from a catalog ring. It holds no
// mutable play-mode state of its own — favplay and stream-vs-database
// mode are passed in by the caller (the reader, which owns that state) —
// per the REDESIGN FLAGS guidance, state lives with its single owner.
type Scheduler struct {
	cat *catalog.Catalog
}

// New returns a scheduler operating over cat.
func New(cat *catalog.Catalog) *Scheduler {
	return &Scheduler{cat: cat}
}

func eligible(t *catalog.Title) bool {
	return !t.Flags.Has(catalog.DNP) && !t.Flags.Has(catalog.MARK) && !t.Flags.Has(catalog.DBL)
}

// stepEligible walks forward from start, returning the (steps+1)-th
// eligible (non-DNP, non-MARK, non-DBL) title encountered — i.e. steps==0 returns
// the very next eligible title after start.
func (s *Scheduler) stepEligible(start *catalog.Title, steps int) *catalog.Title {
	cur := start
	count := -1
	for count < steps {
		cur = s.cat.Next(cur)
		if cur == start && count < 0 {
			// single-title ring or nothing eligible besides start itself;
			// avoid spinning forever.
			if eligible(cur) {
				count = 0
			}
			break
		}
		if eligible(cur) {
			count++
		}
	}
	return cur
}

func minPlaycount(cat *catalog.Catalog, favplay bool) uint32 {
	var min uint32
	first := true
	cat.Each(func(t *catalog.Title) {
		if t.Flags.Has(catalog.DNP) {
			return
		}
		v := t.PlayCount
		if favplay {
			v = t.FavPCount
		}
		if first || v < min {
			min = v
			first = false
		}
	})
	return min
}

func countEligible(cat *catalog.Catalog) int {
	n := 0
	cat.Each(func(t *catalog.Title) {
		if eligible(t) {
			n++
		}
	})
	return n
}

// AddNewTitle implements spec.md §4.3 addNewTitle(pl): pick a title under
// anti-repeat and fairness constraints, MARK it, and append it to the
// playlist tail.
func (s *Scheduler) AddNewTitle(pl *playlist.Playlist, favplay bool) (*catalog.Title, error) {
	var last string
	tail := pl.Tail()
	if tail != nil {
		last = tail.Title.Artist
	}

	num := countEligible(s.cat)
	if num == 0 {
		return nil, ErrNoTitles
	}

	start := s.cat.Head()
	if tail != nil {
		start = tail.Title
	}
	if start == nil {
		return nil, ErrNoTitles
	}

	candidate := s.stepEligible(start, rand.IntN(num))

	pcount := minPlaycount(s.cat, favplay)
	cycles := 0

	for {
		nameOK := last == ""
		if !nameOK {
			if !catalog.CheckSim(last, candidate.Artist) {
				nameOK = true
			} else {
				guard := candidate
				for catalog.CheckSim(last, candidate.Artist) {
					candidate = s.stepEligible(candidate, 0)
					if candidate == guard {
						// everything left is similar to last; accept
						// the name and relax the playcount limit.
						pcount++
						break
					}
				}
				nameOK = true
			}
		}

		countOK := false
		switch {
		case favplay:
			countOK = candidate.FavPCount <= pcount
		case candidate.Flags.Has(catalog.FAV):
			countOK = candidate.PlayCount+candidate.FavPCount <= 2*pcount
		default:
			countOK = candidate.PlayCount <= pcount
		}

		if nameOK && countOK {
			break
		}
		if !countOK {
			guard := candidate
			candidate = s.stepEligible(candidate, 0)
			if candidate == guard {
				pcount++
			}
		}

		cycles++
		if cycles >= 10 {
			cycles = 0
			pcount++
		}
	}

	entry := pl.AddTail(candidate, true)
	return entry.Title, nil
}

// PLCheck implements spec.md §4.3 plCheck(delete): prune stale entries,
// truncate history, and fill the queue back up to the target window.
// streamMode truncates stream-title history to 20 entries and performs no
// scheduling; database mode does the full delete/truncate/fill cycle.
// Returns true if the playlist was modified (the caller fires a
// title-change notification on true).
func (s *Scheduler) PLCheck(pl *playlist.Playlist, del, streamMode, favplay bool, musicDirExists func(path string) bool) bool {
	if streamMode {
		dropped := pl.TruncateHistory(streamWindow)
		return len(dropped) > 0
	}

	modified := false

	if del {
		removed := pl.RemoveMatching(func(t *catalog.Title) bool {
			if t.Flags.Has(catalog.DNP) {
				return true
			}
			if musicDirExists != nil && !musicDirExists(t.Path) {
				return true
			}
			return false
		})
		if len(removed) > 0 {
			modified = true
		}
	}

	if dropped := pl.TruncateHistory(historyWindow); len(dropped) > 0 {
		modified = true
	}

	for pl.QueueCount() < queueWindow {
		if _, err := s.AddNewTitle(pl, favplay); err != nil {
			break
		}
		modified = true
	}

	return modified
}
