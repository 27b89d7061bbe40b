package player

import (
	"testing"
	"time"

	"github.com/foxbow/mixplay/internal/catalog"
)

func TestSearchStateWaitBlocksUntilFinish(t *testing.T) {
	s := newSearchState()
	s.reset()

	want := []*catalog.Title{{Display: "A - B"}}
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.finish(want, []string{"A"})
	}()

	titles, artists, ok := s.Wait(time.Second)
	if !ok {
		t.Fatal("Wait should report completion")
	}
	if len(titles) != 1 || titles[0] != want[0] {
		t.Errorf("titles = %v, want %v", titles, want)
	}
	if len(artists) != 1 || artists[0] != "A" {
		t.Errorf("artists = %v, want [A]", artists)
	}
}

func TestSearchStateWaitTimesOut(t *testing.T) {
	s := newSearchState()
	s.reset()

	_, _, ok := s.Wait(10 * time.Millisecond)
	if ok {
		t.Fatal("Wait should time out when no finish() ever arrives")
	}
	s.finish(nil, nil) // release the still-blocked goroutine
}
