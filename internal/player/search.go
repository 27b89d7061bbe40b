package player

import (
	"sync"
	"time"

	"github.com/foxbow/mixplay/internal/catalog"
)

// SearchState is the reader/handler rendezvous for an in-flight search
// — spec.md §4.10's "search synchronization contract". The REDESIGN
// FLAGS in spec.md §9 call for replacing the original's sleep-and-poll
// with a condition variable the search worker signals; Wait blocks on
// exactly that, with a bounded timeout so a handler never hangs
// forever on a reader that never finishes.
type SearchState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	done    bool
	Titles  []*catalog.Title
	Artists []string
}

func newSearchState() *SearchState {
	s := &SearchState{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// reset clears prior results and marks the next search not-done —
// called by the reader before it starts filling in new results.
func (s *SearchState) reset() {
	s.mu.Lock()
	s.done = false
	s.Titles = nil
	s.Artists = nil
	s.mu.Unlock()
}

// finish records results and wakes every waiter — called by the
// reader once a search completes.
func (s *SearchState) finish(titles []*catalog.Title, artists []string) {
	s.mu.Lock()
	s.Titles = titles
	s.Artists = artists
	s.done = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait blocks until the current search completes or timeout elapses,
// reporting which. Called by the HTTP handler in place of the
// original's 250 microsecond poll loop.
func (s *SearchState) Wait(timeout time.Duration) (titles []*catalog.Title, artists []string, ok bool) {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		for !s.done {
			s.cond.Wait()
		}
		titles, artists = s.Titles, s.Artists
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return titles, artists, true
	case <-time.After(timeout):
		return nil, nil, false
	}
}
