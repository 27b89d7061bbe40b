package scheduler

import (
	"testing"

	"github.com/foxbow/mixplay/internal/catalog"
	"github.com/foxbow/mixplay/internal/playlist"
)

func buildCatalog(t *testing.T, n int) *catalog.Catalog {
	t.Helper()
	c := catalog.NewCatalog()
	if err := c.Open(t.TempDir() + "/mixplay.db"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < n; i++ {
		artist := "Artist" + string(rune('A'+i))
		title := "Song" + string(rune('A'+i))
		c.Insert(&catalog.Title{
			Path:    "dir/track" + string(rune('a'+i)) + ".mp3",
			Artist:  artist,
			Title:   title,
			Display: artist + " - " + title,
		})
	}
	return c
}

func TestAddNewTitleMarksAndAppends(t *testing.T) {
	cat := buildCatalog(t, 8)
	pl := playlist.New()
	s := New(cat)

	title, err := s.AddNewTitle(pl, false)
	if err != nil {
		t.Fatalf("AddNewTitle: %v", err)
	}
	if !title.Flags.Has(catalog.MARK) {
		t.Error("picked title must be MARK-ed")
	}
	if pl.Tail() == nil || pl.Tail().Title != title {
		t.Error("picked title must be appended at playlist tail")
	}
}

func TestAddNewTitleFailsWhenCatalogExhausted(t *testing.T) {
	cat := buildCatalog(t, 2)
	cat.Each(func(ti *catalog.Title) { ti.Flags |= catalog.DNP })

	pl := playlist.New()
	s := New(cat)
	if _, err := s.AddNewTitle(pl, false); err != ErrNoTitles {
		t.Fatalf("AddNewTitle err = %v, want ErrNoTitles", err)
	}
}

func TestAddNewTitleSkipsDoublets(t *testing.T) {
	cat := buildCatalog(t, 3)
	var dbl *catalog.Title
	cat.Each(func(ti *catalog.Title) {
		if dbl == nil {
			dbl = ti
		}
	})
	dbl.Flags |= catalog.DBL

	pl := playlist.New()
	s := New(cat)

	for i := 0; i < 2; i++ {
		title, err := s.AddNewTitle(pl, false)
		if err != nil {
			t.Fatalf("AddNewTitle %d: %v", i, err)
		}
		if title == dbl {
			t.Error("AddNewTitle must never pick a DBL-flagged title")
		}
	}
}

func TestAddNewTitleNeverPicksMarkedTitle(t *testing.T) {
	cat := buildCatalog(t, 4)
	s := New(cat)
	pl := playlist.New()

	for i := 0; i < 3; i++ {
		if _, err := s.AddNewTitle(pl, false); err != nil {
			t.Fatalf("AddNewTitle %d: %v", i, err)
		}
	}

	seen := map[*catalog.Title]int{}
	for e := pl.Head(); e != nil; e = e.Next() {
		seen[e.Title]++
	}
	for title, count := range seen {
		if count > 1 {
			t.Errorf("title %q appended %d times, playlist must not duplicate MARK-ed titles", title.Display, count)
		}
	}
}

func TestPLCheckFillsQueueToWindow(t *testing.T) {
	cat := buildCatalog(t, 30)
	s := New(cat)
	pl := playlist.New()
	pl.AddTail(cat.Head(), true)
	pl.SetCurrent(pl.Head())

	modified := s.PLCheck(pl, false, false, false, nil)
	if !modified {
		t.Error("PLCheck should report modification when filling the queue")
	}
	if pl.QueueCount() < 10 {
		t.Errorf("QueueCount() = %d, want >= 10", pl.QueueCount())
	}
}

func TestPLCheckStreamModeTruncatesHistoryOnly(t *testing.T) {
	cat := buildCatalog(t, 5)
	s := New(cat)
	pl := playlist.New()

	var last *playlist.Entry
	for i := 0; i < 25; i++ {
		last = pl.AddTail(&catalog.Title{Display: "stream dummy"}, false)
	}
	pl.SetCurrent(last)

	s.PLCheck(pl, false, true, false, nil)
	if pl.HistoryCount() > 20 {
		t.Errorf("HistoryCount() = %d, want <= 20 in stream mode", pl.HistoryCount())
	}
	if pl.QueueCount() != 0 {
		t.Error("stream mode must not schedule new titles")
	}
}

func TestPLCheckDeleteRemovesDNPEntries(t *testing.T) {
	cat := buildCatalog(t, 6)
	s := New(cat)
	pl := playlist.New()

	titles := cat.All()
	e1 := pl.AddTail(titles[0], true)
	e2 := pl.AddTail(titles[1], true)
	pl.AddTail(titles[2], true)
	pl.SetCurrent(e1)
	titles[1].Flags |= catalog.DNP

	s.PLCheck(pl, true, false, false, nil)

	for e := pl.Head(); e != nil; e = e.Next() {
		if e == e2 {
			t.Error("DNP entry should have been removed by plCheck(true)")
		}
	}
}
