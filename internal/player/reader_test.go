package player

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxbow/mixplay/internal/catalog"
	"github.com/foxbow/mixplay/internal/command"
	"github.com/foxbow/mixplay/internal/config"
	"github.com/foxbow/mixplay/internal/decoder"
	"github.com/foxbow/mixplay/internal/playlist"
	"github.com/foxbow/mixplay/internal/profile"
	"github.com/foxbow/mixplay/internal/scheduler"
)

// fakeDecoderScript mirrors internal/decoder's test double: a shell
// program standing in for mpg123, good enough to drive the reader's
// state transitions without a real MP3 decoder.
const fakeDecoderScript = `
echo "@R ready"
while read -r line; do
  case "$line" in
    load*) echo "@P 2" ;;
    loadlist*) echo "@P 2" ;;
    STOP) echo "@P 0" ;;
    PAUSE) echo "@P 1" ;;
    QUIT) exit 0 ;;
  esac
done
`

func startFakeDecoder(t *testing.T) *decoder.Decoder {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	d, err := decoder.Start(ctx, "test", "/bin/sh", "-c", fakeDecoderScript)
	if err != nil {
		t.Fatalf("decoder.Start: %v", err)
	}
	t.Cleanup(func() { d.Kill() })
	<-d.Events() // drain the @R ready line
	return d
}

func newTestReader(t *testing.T, n int) (*Reader, *catalog.Catalog) {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "mixplay.conf"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Fade = 4
	cfg.SkipDNP = 3

	cat := catalog.NewCatalog()
	if err := cat.Open(t.TempDir() + "/mixplay.db"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < n; i++ {
		artist := "Artist" + string(rune('A'+i))
		title := "Song" + string(rune('A'+i))
		cat.Insert(&catalog.Title{
			Path: "dir/track" + string(rune('a'+i)) + ".mp3", Artist: artist,
			Title: title, Display: artist + " - " + title,
		})
	}

	dnp, _ := catalog.LoadMarkList(t.TempDir() + "/p.dnp")
	fav, _ := catalog.LoadMarkList(t.TempDir() + "/p.fav")
	dbl, _ := catalog.LoadMarkList(t.TempDir() + "/p.dbl")

	pwgate, err := command.NewPasswordGate("secret")
	if err != nil {
		t.Fatalf("NewPasswordGate: %v", err)
	}

	r := New(cfg, cat, playlist.New(), scheduler.New(cat), dnp, fav, dbl,
		command.NewRegister(), command.NewAsyncLock(), command.NewClientLock(),
		command.NewMessageRing(), pwgate)
	return r, cat
}

func TestAdvancePlaylistGoesIdleWhenOrderExceedsQueue(t *testing.T) {
	r, cat := newTestReader(t, 3)
	var all []*catalog.Title
	cat.Each(func(t *catalog.Title) { all = append(all, t) })
	r.pl.AddTail(all[0], true)
	r.pl.AddTail(all[1], true)
	r.pl.SetCurrent(r.pl.Head())

	r.fg = startFakeDecoder(t)
	r.bg = startFakeDecoder(t)
	r.setStatus(command.StatusPlay)

	r.advancePlaylist(5)
	if r.Status() != command.StatusIdle {
		t.Errorf("Status() = %v, want StatusIdle after overrunning the queue", r.Status())
	}
}

func TestAdvancePlaylistClampsBackwardAtHistoryStart(t *testing.T) {
	r, cat := newTestReader(t, 3)
	var all []*catalog.Title
	cat.Each(func(t *catalog.Title) { all = append(all, t) })
	e1 := r.pl.AddTail(all[0], true)
	r.pl.AddTail(all[1], true)
	r.pl.SetCurrent(r.pl.Tail())

	r.fg = startFakeDecoder(t)
	r.bg = startFakeDecoder(t)
	r.setStatus(command.StatusPlay)

	r.advancePlaylist(-5)
	if r.pl.Current() != e1 {
		t.Error("backward overrun should clamp at the head, not go past it")
	}
}

func TestOnTrackEndIdleOnExplicitStop(t *testing.T) {
	r, _ := newTestReader(t, 1)
	r.setStatus(command.StatusStop)
	r.onTrackEnd()
	if r.Status() != command.StatusIdle {
		t.Errorf("Status() = %v, want StatusIdle", r.Status())
	}
}

func TestCmdPlayPauseDatabaseModePausesAndResumesInPlace(t *testing.T) {
	r, cat := newTestReader(t, 1)
	var all []*catalog.Title
	cat.Each(func(t *catalog.Title) { all = append(all, t) })
	r.pl.AddTail(all[0], true)
	r.pl.SetCurrent(r.pl.Head())

	r.fg = startFakeDecoder(t)
	r.bg = startFakeDecoder(t)
	r.setStatus(command.StatusPlay)

	r.cmdPlayPause()
	if r.Status() != command.StatusPause {
		t.Fatalf("Status() = %v, want StatusPause after pausing database playback", r.Status())
	}

	r.cmdPlayPause()
	if r.Status() != command.StatusPlay {
		t.Errorf("Status() = %v, want StatusPlay after resuming database playback", r.Status())
	}
}

func TestCmdPlayPauseStreamModeStopsAndReloadsInsteadOfPausing(t *testing.T) {
	r, _ := newTestReader(t, 1)
	r.cfg.Streams = []string{"http://example.invalid/stream"}
	r.cfg.SNames = []string{"Radio A"}
	r.cfg.Active = -1

	dec := profile.Decision{Kind: profile.KindStream, StreamName: "Radio A", Volume: 42}
	r.activateStream(dec)

	r.fg = startFakeDecoder(t)
	r.bg = startFakeDecoder(t)
	r.setStatus(command.StatusPlay)

	r.cmdPlayPause()
	if r.Status() != command.StatusPause {
		t.Fatalf("Status() = %v, want StatusPause after pausing a stream (decoder stopped, not paused)", r.Status())
	}

	r.cmdPlayPause()
	if r.Status() != command.StatusStart {
		t.Errorf("Status() = %v, want StatusStart after restartStream reconnects", r.Status())
	}
}

func TestCmdFavplayRequiresTwentyOneFavourites(t *testing.T) {
	r, cat := newTestReader(t, 5)
	cat.Each(func(t *catalog.Title) { t.Flags |= catalog.FAV })
	cursor := r.msgs.NewCursor()

	r.cmdFavplay(0)
	if r.favplayValue() {
		t.Error("favplay must not enable with fewer than 21 favourites")
	}

	msgs, _ := r.msgs.Read(cursor, 0, nil)
	if len(msgs) != 1 || msgs[0] != "ALERT: Need at least 21 Favourites to enable Favplay." {
		t.Errorf("messages = %v, want the favplay-threshold alert", msgs)
	}
}

func TestCmdFavplayEnablesWithEnoughFavourites(t *testing.T) {
	r, cat := newTestReader(t, 21)
	cat.Each(func(t *catalog.Title) { t.Flags |= catalog.FAV })

	r.cmdFavplay(0)
	if !r.favplayValue() {
		t.Error("favplay should enable with >= 21 favourites")
	}
}

func TestSetVolumeClipsAndPreservesSentinels(t *testing.T) {
	r, _ := newTestReader(t, 1)

	r.setVolume(150)
	if got := r.Snapshot().Volume; got != 100 {
		t.Errorf("volume = %d, want clipped to 100", got)
	}

	r.setVolume(-50)
	if got := r.Snapshot().Volume; got != 0 {
		t.Errorf("volume = %d, want clipped to 0", got)
	}

	r.setVolume(config.VolumeMuted)
	if got := r.Snapshot().Volume; got != config.VolumeMuted {
		t.Errorf("volume = %d, want sentinel MUTED preserved", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{65, "01:05"},
		{3661, "01:01:01"},
	}
	for _, c := range cases {
		if got := formatDuration(c.seconds); got != c.want {
			t.Errorf("formatDuration(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestPruneDNPAdvancesCurrentPastRemovedTitle(t *testing.T) {
	r, cat := newTestReader(t, 3)
	var all []*catalog.Title
	cat.Each(func(t *catalog.Title) { all = append(all, t) })
	r.pl.AddTail(all[0], true)
	e2 := r.pl.AddTail(all[1], true)
	r.pl.AddTail(all[2], true)
	r.pl.SetCurrent(r.pl.Head())

	r.fg = startFakeDecoder(t)
	r.bg = startFakeDecoder(t)

	r.pruneDNP([]*catalog.Title{all[0]})

	if r.pl.Current() != e2 {
		t.Errorf("current should advance to the surviving successor after its title is pruned")
	}
}

func TestActivateStreamInstallsDummyPlaylist(t *testing.T) {
	r, _ := newTestReader(t, 1)

	dec := profile.Decision{Kind: profile.KindStream, StreamName: "Radio A", Volume: 42}
	r.activateStream(dec)

	if r.pl.Len() != 2 {
		t.Fatalf("playlist length = %d, want 2 dummy entries", r.pl.Len())
	}
	if r.pl.Current() == nil || r.pl.Current().Title.Display != "Radio A" {
		t.Errorf("current title = %v, want the stream name placeholder", r.pl.Current())
	}
	if !r.modeValue().Has(ModeStream) {
		t.Error("mode should carry ModeStream after activateStream")
	}
	if got := r.Snapshot().Volume; got != 42 {
		t.Errorf("volume = %d, want 42 from the decision", got)
	}
}

func TestHandleInfoICYNameWritesPreviousEntryTitle(t *testing.T) {
	r, _ := newTestReader(t, 1)

	dec := profile.Decision{Kind: profile.KindStream, StreamName: "Radio A", Volume: 42}
	r.activateStream(dec)

	prev := r.pl.Current().Prev()
	if prev == nil {
		t.Fatal("activateStream should leave a previous entry in place")
	}

	r.handleInfo("ICY-NAME:Radio Foo\r\nICY-GENRE:Electronic")

	if prev.Title.Title != "Radio Foo" {
		t.Errorf("prev.Title.Title = %q, want %q", prev.Title.Title, "Radio Foo")
	}
	if r.pl.Current().Title.Display == "Radio Foo" {
		t.Error("ICY-NAME must not overwrite the current entry")
	}
}

func TestHandleInfoStreamTitleMintsNewEntryAndAdvances(t *testing.T) {
	r, _ := newTestReader(t, 1)

	dec := profile.Decision{Kind: profile.KindStream, StreamName: "Radio A", Volume: 42}
	r.activateStream(dec)

	before := r.pl.Len()
	beforeCurrent := r.pl.Current()

	r.handleInfo(`StreamTitle='Daft Punk - One More Time';`)

	if r.pl.Len() != before+1 {
		t.Fatalf("playlist length = %d, want %d (one new dummy entry)", r.pl.Len(), before+1)
	}
	cur := r.pl.Current()
	if cur == beforeCurrent {
		t.Fatal("current should advance to the newly minted entry")
	}
	if cur.Prev() != beforeCurrent {
		t.Error("new entry should be appended right after the previous current")
	}
	if cur.Title.Artist != "Daft Punk" || cur.Title.Title != "One More Time" {
		t.Errorf("title = %+v, want artist/title split from StreamTitle", cur.Title)
	}
	if cur.Title.Album != beforeCurrent.Title.Title {
		t.Errorf("new entry's Album = %q, want previous entry's title %q", cur.Title.Album, beforeCurrent.Title.Title)
	}

	// A repeat of the same StreamTitle must not mint another entry.
	r.handleInfo(`StreamTitle='Daft Punk - One More Time';`)
	if r.pl.Len() != before+1 {
		t.Errorf("playlist length after repeat = %d, want unchanged %d", r.pl.Len(), before+1)
	}
}

func TestActivateDatabaseReloadsMarkListsOnChangedProfile(t *testing.T) {
	r, cat := newTestReader(t, 2)
	r.cfg.Profiles = []string{"mixplay"}
	var all []*catalog.Title
	cat.Each(func(t *catalog.Title) { all = append(all, t) })
	r.pl.AddTail(all[0], true)

	profileDNP, err := catalog.LoadMarkList(r.cfg.DNPPath("mixplay"))
	if err != nil {
		t.Fatalf("LoadMarkList: %v", err)
	}
	if _, err := profileDNP.Add(catalog.Rule{Range: 't', Op: '=', Pattern: "none-such"}); err != nil {
		t.Fatalf("seed dnp: %v", err)
	}

	dec := profile.Decision{Kind: profile.KindDatabase, ProfileIdx: 1, Changed: true, Volume: -1}
	r.activateDatabase(dec)

	if !r.modeValue().Has(ModeDatabase) {
		t.Error("mode should carry ModeDatabase after activateDatabase")
	}
	if r.dnp.Rules()[0].Pattern != "none-such" {
		t.Error("changed-profile activation should reload the profile's own DNP list from disk, not keep the stale one")
	}
}

func TestCmdNewProfAndRemProf(t *testing.T) {
	r, _ := newTestReader(t, 1)
	r.cfg.Profiles = []string{"mixplay"}
	r.cfg.Active = 1
	cursor := r.msgs.NewCursor()

	r.handleCommand(command.Request{Cmd: command.CmdNewProf, Arg: "newprofile"})
	if len(r.cfg.Profiles) != 2 || r.cfg.Profiles[1] != "newprofile" {
		t.Fatalf("Profiles = %v, want a second profile added", r.cfg.Profiles)
	}
	if r.cfg.Active != 2 {
		t.Errorf("Active = %d, want the new profile activated", r.cfg.Active)
	}

	r.handleCommand(command.Request{Cmd: command.CmdRemProf, Arg: "2"})
	msgs, _ := r.msgs.Read(cursor, 0, nil)
	found := false
	for _, m := range msgs {
		if m != "" {
			found = true
		}
	}
	if !found {
		t.Error("removing the active profile should have produced a rejection message")
	}
}
