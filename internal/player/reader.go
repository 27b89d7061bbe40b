// Package player implements the reader state machine (C8) and its
// watchdog (C12) — spec.md §4.7, §4.9. The Reader is the single
// goroutine that owns the foreground/background decoders and every
// piece of mutable playback state; everything else reaches it only
// through the command register, never by touching fields directly.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foxbow/mixplay/internal/audio"
	"github.com/foxbow/mixplay/internal/catalog"
	"github.com/foxbow/mixplay/internal/command"
	"github.com/foxbow/mixplay/internal/config"
	"github.com/foxbow/mixplay/internal/decoder"
	"github.com/foxbow/mixplay/internal/metrics"
	"github.com/foxbow/mixplay/internal/playlist"
	"github.com/foxbow/mixplay/internal/profile"
	"github.com/foxbow/mixplay/internal/scheduler"
)

// tick is the reader loop's select timeout — spec.md §5: "select on
// decoder+stdin fds with 1 s timeout (reader)".
const tick = 1 * time.Second

// decoderBinary is the external process spec.md §6 names: "subprocess
// mpg123 -R --rva-mix".
const decoderBinary = "mpg123"

var decoderArgs = []string{"-R", "--rva-mix"}

// Snapshot is the subset of reader state the JSON status schema (§6)
// reports; internal/httpapi builds its response from this.
type Snapshot struct {
	Status    command.Status
	Mode      Mode
	Active    int
	Favplay   bool
	FPCurrent bool
	Volume    int
	Playtime  string
	Remtime   string
	Percent   float64
	Current   *catalog.Title
}

// Reader drives one active profile's playback: the decoder pair, the
// playlist cursor, and command dispatch — spec.md §4.7, §5 "Reader".
type Reader struct {
	cfg   *config.Config
	cat   *catalog.Catalog
	pl    *playlist.Playlist
	sched *scheduler.Scheduler
	dnp   *catalog.MarkList
	fav   *catalog.MarkList
	dbl   *catalog.MarkList

	reg      *command.Register
	asyncLk  *command.AsyncLock
	clientLk *command.ClientLock
	msgs     *command.MessageRing
	pwgate   *command.PasswordGate

	watchdog *Watchdog
	search   *SearchState
	mixer    *audio.Mixer
	profiles *profile.Manager

	mu        sync.Mutex
	status    command.Status
	mode      Mode
	favplay   bool
	fpcurrent bool
	order     int
	pendingSkip bool
	active    int
	oactive   int
	volume    int
	playtime  string
	remtime   string
	percent   float64

	fg, bg *decoder.Decoder
}

// New returns a Reader wired to the given collaborators. The reader
// owns none of their lifetimes except the two decoders, which it
// starts itself in Run.
func New(cfg *config.Config, cat *catalog.Catalog, pl *playlist.Playlist, sched *scheduler.Scheduler,
	dnp, fav, dbl *catalog.MarkList, reg *command.Register, asyncLk *command.AsyncLock,
	clientLk *command.ClientLock, msgs *command.MessageRing, pwgate *command.PasswordGate) *Reader {
	mixer := audio.New(cfg.Channel)
	r := &Reader{
		cfg: cfg, cat: cat, pl: pl, sched: sched, dnp: dnp, fav: fav, dbl: dbl,
		reg: reg, asyncLk: asyncLk, clientLk: clientLk, msgs: msgs, pwgate: pwgate,
		watchdog: &Watchdog{},
		search:   newSearchState(),
		mixer:    mixer,
		profiles: profile.New(cfg),
		status:   command.StatusIdle,
		order:    1,
		volume:   100,
		active:   cfg.Active,
		oactive:  cfg.Active,
	}

	// player.c's startup sequence: "control->volume = getVolume();" then
	// branch on the sentinel values before logging the hardware state.
	switch v := mixer.Get(); v {
	case config.VolumeMuted:
		slog.Info("player: hardware volume is muted")
		r.volume = v
	case config.VolumeNoAudio:
		slog.Info("player: hardware volume control is disabled")
		r.volume = v
	default:
		slog.Info("player: hardware volume level", "percent", v)
		r.volume = v
	}
	return r
}

func (r *Reader) Status() command.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Reader) setStatus(s command.Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// Snapshot returns a consistent copy of the status fields the HTTP
// layer serializes.
func (r *Reader) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		Status: r.status, Mode: r.mode, Active: r.active, Favplay: r.favplay,
		FPCurrent: r.fpcurrent, Volume: r.volume, Playtime: r.playtime,
		Remtime: r.remtime, Percent: r.percent,
	}
	if e := r.pl.Current(); e != nil {
		s.Current = e.Title
	}
	return s
}

// History returns every title strictly before the current one, nearest
// first — the full backward walk mpcomm.c's serializeStatus does over
// current->prev for the JSON status schema's "prev" array.
func (r *Reader) History() []*catalog.Title {
	cur := r.pl.Current()
	if cur == nil {
		return nil
	}
	var out []*catalog.Title
	for e := cur.Prev(); e != nil; e = e.Prev() {
		out = append(out, e.Title)
	}
	return out
}

// Queue returns every title strictly after the current one, nearest
// first — the forward counterpart of History, for the "next" array.
func (r *Reader) Queue() []*catalog.Title {
	cur := r.pl.Current()
	if cur == nil {
		return nil
	}
	var out []*catalog.Title
	for e := cur.Next(); e != nil; e = e.Next() {
		out = append(out, e.Title)
	}
	return out
}

// SearchState exposes the reader/handler search rendezvous to
// internal/httpapi — spec.md §4.10's search synchronization contract.
func (r *Reader) SearchState() *SearchState { return r.search }

// DNPRules and FAVRules return the active profile's mark-list rules for
// the JSON status schema's optional "dnplist"/"favlist" sections.
func (r *Reader) DNPRules() []catalog.Rule { return r.dnp.Rules() }
func (r *Reader) FAVRules() []catalog.Rule { return r.fav.Rules() }

// alert appends an ALERT: message visible to cid and unlocks cid's
// exclusive hold, per spec.md §4.8: "on mismatch, unlocks the current
// client to surface an alert."
func (r *Reader) alert(cid int, text string) {
	if !strings.HasPrefix(text, "ALERT:") {
		text = "ALERT: " + text
	}
	r.msgs.Write(cid, text)
	r.clientLk.UnlockClient(cid)
}

func (r *Reader) log(cid int, text string) {
	r.msgs.Write(cid, text)
}

// Run is the reader's single-threaded select loop — spec.md §4.7/§5.
// It returns when status reaches quit, or when the watchdog trips and
// the caller (main) should restart it.
func (r *Reader) Run(ctx context.Context) error {
	if err := r.startDecoders(ctx); err != nil {
		return fmt.Errorf("player: start decoders: %w", err)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.killPlayers(false)
			return ctx.Err()

		case req := <-r.reg.Chan():
			r.handleCommand(req)

		case ev, ok := <-r.fgChan():
			if ok {
				r.watchdog.Reset()
				r.handleDecoderEvent(true, ev)
			}

		case ev, ok := <-r.bgChan():
			if ok {
				r.watchdog.Reset()
				r.handleDecoderEvent(false, ev)
			}

		case <-ticker.C:
			if r.shouldCountWatchdog() && r.watchdog.Tick() {
				metrics.RecordWatchdogTrip()
				metrics.RecordDecoderRestart("watchdog")
				r.onWatchdogTrip()
				return fmt.Errorf("player: watchdog timeout, restarting")
			}
		}

		if r.Status() == command.StatusQuit {
			r.killPlayers(false)
			return nil
		}
	}
}

func (r *Reader) fgChan() <-chan decoder.Event {
	if r.fg == nil {
		return nil
	}
	return r.fg.Events()
}

func (r *Reader) bgChan() <-chan decoder.Event {
	if r.bg == nil {
		return nil
	}
	return r.bg.Events()
}

// shouldCountWatchdog implements spec.md §4.9: incremented only "while
// playing a stream and not idle".
func (r *Reader) shouldCountWatchdog() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode.Has(ModeStream) && r.status != command.StatusIdle && r.status != command.StatusQuit
}

func (r *Reader) startDecoders(ctx context.Context) error {
	fg, err := decoder.Start(ctx, "fg", decoderBinary, decoderArgs...)
	if err != nil {
		return err
	}
	bg, err := decoder.Start(ctx, "bg", decoderBinary, decoderArgs...)
	if err != nil {
		return err
	}
	r.fg, r.bg = fg, bg
	return nil
}

// swapDecoders promotes the background decoder to foreground — the
// crossfade pivot, spec.md §4.7 "Crossfade".
func (r *Reader) swapDecoders() {
	r.fg, r.bg = r.bg, r.fg
}

func (r *Reader) handleDecoderEvent(isFG bool, ev decoder.Event) {
	switch ev.Code {
	case decoder.EventPlay:
		if isFG {
			r.handleFGPlayState(ev.State)
		}
	case decoder.EventFrame:
		if isFG {
			r.handleFrameProgress(ev)
		}
	case decoder.EventInfo:
		if isFG {
			r.handleInfo(ev.Info)
		}
	case decoder.EventFatal:
		slog.Warn("player: decoder fatal", "fg", isFG, "error", ev.Err)
		if isFG {
			r.watchdog.ForceTrip()
		}
	}
}

// handleFrameProgress updates playtime/remtime/percent and, once
// remaining time drops to the configured fade window, initiates
// crossfade — spec.md §4.6/§4.7.
func (r *Reader) handleFrameProgress(ev decoder.Event) {
	r.mu.Lock()
	r.playtime = formatDuration(ev.In)
	r.remtime = formatDuration(ev.Remaining)
	r.percent = ev.Percent()
	fade := r.cfg.Fade
	status := r.status
	r.mu.Unlock()

	if fade <= 0 || status != command.StatusPlay {
		return
	}
	if ev.Remaining > float64(fade) {
		return
	}
	r.startCrossfade()
}

// startCrossfade implements spec.md §8 scenario 5: advance current,
// swap decoder roles, ramp volume on the outgoing decoder down while
// the new foreground ramps up, and load the next title into the new
// foreground.
func (r *Reader) startCrossfade() {
	entry := r.pl.Advance()
	if entry == nil {
		return
	}

	r.swapDecoders()

	if err := r.fg.Load(r.absolutePath(entry.Title)); err != nil {
		slog.Warn("player: load crossfade title failed", "error", err)
	}
	if err := r.fg.Volume(0); err != nil {
		slog.Warn("player: reset crossfade volume failed", "error", err)
	}
	go r.rampVolumes()
}

// rampVolumes steps the new foreground 0→100 and the new background
// (the outgoing decoder) 100→0 by ±1 every 100 ms on its own
// goroutine, so a full fade takes about 10 s. The steps are not tied to
// @F reports.
func (r *Reader) rampVolumes() {
	fg, bg := r.fg, r.bg
	for up, down := 0, 100; up < 100; up, down = up+1, down-1 {
		if err := fg.Volume(up); err != nil {
			return
		}
		if err := bg.Volume(down); err != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (r *Reader) absolutePath(t *catalog.Title) string {
	return r.cfg.MusicDir + "/" + t.Path
}

// handleInfo processes an @I line. Per spec.md §9's Open Question on
// "@I parsing paths mutate current without holding the playlist
// mutex", this is resolved by demoting the mutation into a message the
// reader (the sole mutator) applies itself, inline, under no
// additional lock beyond the playlist's own. Grounded on
// original_source/src/player.c's '@I' case (~lines 860-905): an
// ICY-NAME report names the *previous* entry (the stream title that
// just finished), while a StreamTitle report mints a fresh dummy entry
// for the title now starting rather than overwriting the one in place,
// so stream play history survives in the playlist the same way
// database playback's history does.
func (r *Reader) handleInfo(payload string) {
	r.mu.Lock()
	streamMode := r.mode.Has(ModeStream)
	r.mu.Unlock()
	if !streamMode {
		return
	}

	cur := r.pl.Current()
	if cur == nil {
		return
	}

	if name, ok := decoder.ParseICYName(payload); ok {
		if prev := cur.Prev(); prev != nil {
			prev.Title.Title = name
		}
		return
	}

	if artist, title, ok := decoder.ParseStreamTitle(payload); ok {
		display := computeStreamDisplay(artist, title)
		if display == cur.Title.Display {
			return
		}
		dummy := catalog.NewDummyTitle(display)
		dummy.Artist, dummy.Title = artist, title
		dummy.Album = cur.Title.Title
		next := r.pl.AddAfter(cur, dummy, false)
		r.pl.SetCurrent(next)
		r.log(-1, "titlesNotify")
	}
}

func computeStreamDisplay(artist, title string) string {
	if artist == "" {
		return title
	}
	return artist + " - " + title
}

// handleFGPlayState implements the transition table in spec.md §4.7.
func (r *Reader) handleFGPlayState(state decoder.PlayState) {
	switch state {
	case decoder.PlayPlaying:
		r.mu.Lock()
		wasStart := r.status == command.StatusStart
		switched := r.mode.Has(ModeSwitch)
		r.status = command.StatusPlay
		if wasStart && switched {
			r.mode &^= ModeSwitch
		}
		r.mu.Unlock()

		if wasStart && switched {
			if err := r.cfg.Save(); err != nil {
				slog.Warn("player: persist config after profile switch", "error", err)
			}
		}

	case decoder.PlayStopped:
		r.onTrackEnd()

	case decoder.PlayPaused:
		r.setStatus(command.StatusPause)
	}
}

// onTrackEnd implements spec.md §4.7's "@P 0" handling for both DB and
// stream modes, plus the play-count accounting of §4.5.
func (r *Reader) onTrackEnd() {
	r.mu.Lock()
	status := r.status
	streamMode := r.mode.Has(ModeStream)
	favplay := r.favplay
	order := r.order
	skipped := r.pendingSkip
	r.order = 1
	r.pendingSkip = false
	r.mu.Unlock()

	if status == command.StatusStop {
		r.setStatus(command.StatusIdle)
		return
	}

	if cur := r.pl.Current(); cur != nil {
		if err := playlist.PlayCount(r.cat, r.dnp, cur.Title, skipped, streamMode, favplay, uint32(r.cfg.SkipDNP)); err != nil {
			slog.Warn("player: play-count accounting failed", "error", err)
		}
	}

	if streamMode {
		if status == command.StatusPlay {
			r.restartStream()
		}
		return
	}

	r.advancePlaylist(order)
}

// advancePlaylist implements the order-displacement rules of spec.md
// §4.7: order==0 means the cursor was already repositioned elsewhere
// (a DNP prune); order>0/<0 step the cursor, going idle only when
// stepping forward runs past the end of the queue.
func (r *Reader) advancePlaylist(order int) {
	switch {
	case order == 0:
		// Already advanced by the DNP handler; nothing further to do.
	case order > 0:
		avail := r.pl.QueueCount()
		if order > avail {
			r.pl.Step(avail)
			r.setStatus(command.StatusIdle)
			return
		}
		r.pl.Step(order)
	default:
		avail := r.pl.HistoryCount()
		if -order > avail {
			r.pl.Step(-avail)
		} else {
			r.pl.Step(order)
		}
	}

	if modified := r.sched.PLCheck(r.pl, false, false, r.favplayValue(), r.musicDirExists); modified {
		r.log(-1, "titlesNotify")
	}
	r.startCurrent()
}

func (r *Reader) favplayValue() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.favplay
}

func (r *Reader) musicDirExists(relPath string) bool {
	_, err := os.Stat(r.cfg.MusicDir + "/" + relPath)
	return err == nil
}

// startCurrent loads the playlist's current entry into the foreground
// decoder and begins playback. In stream mode the playlist's current
// entry is a dummy placeholder (activateStream), not a filesystem path,
// so the decoder is pointed at the active stream URL instead.
func (r *Reader) startCurrent() {
	entry := r.pl.Current()
	if entry == nil {
		r.setStatus(command.StatusIdle)
		return
	}

	if r.modeValue().Has(ModeStream) {
		metrics.RecordTitlePlayed("stream")
		r.restartStream()
		return
	}

	r.mu.Lock()
	r.fpcurrent = entry.Title.Flags.Has(catalog.FAV)
	r.mu.Unlock()
	if err := r.fg.Load(r.absolutePath(entry.Title)); err != nil {
		slog.Warn("player: load next title failed", "error", err)
		return
	}
	if r.favplayValue() {
		metrics.RecordTitlePlayed("favplay")
	} else {
		metrics.RecordTitlePlayed("walk")
	}
	r.setStatus(command.StatusStart)
}

func (r *Reader) modeValue() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Reader) restartStream() {
	url, name, ok := r.cfg.ActiveStream()
	if !ok {
		r.setStatus(command.StatusIdle)
		return
	}
	if err := r.fg.LoadStream(url); err != nil {
		slog.Warn("player: restart stream failed", "url", url, "error", err)
		return
	}
	if e := r.pl.Current(); e != nil {
		e.Title.Display = name
	}
	r.setStatus(command.StatusStart)
}

func (r *Reader) oactiveValue() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.oactive
}

// activateStream implements setStream() (player.c): wipe the playlist,
// install a two-entry dummy placeholder ("<waiting for info>" then the
// stream's display name), and switch mode to stream.
func (r *Reader) activateStream(dec profile.Decision) {
	r.pl.Clear()
	r.pl.AddTail(catalog.NewDummyTitle("<waiting for info>"), true)
	nameEntry := r.pl.AddTail(catalog.NewDummyTitle(dec.StreamName), true)
	r.pl.SetCurrent(nameEntry)

	r.mu.Lock()
	r.mode = ModeStream | ModeSwitch
	r.mu.Unlock()

	if dec.Volume >= 0 {
		r.setVolume(dec.Volume)
	}
	r.log(-1, "titlesNotify")
}

// activateDatabase implements setProfile()'s database-profile branch:
// on a changed profile, reset flags and reload that profile's DNP/FAV
// lists before reapplying them; either way, wipe the playlist and run
// plCheck(0) to refill it.
func (r *Reader) activateDatabase(dec profile.Decision) {
	if dec.Changed && dec.ProfileIdx >= 1 && dec.ProfileIdx <= len(r.cfg.Profiles) {
		name := r.cfg.Profiles[dec.ProfileIdx-1]
		r.cat.ClearFlags(catalog.FAV | catalog.DNP)

		if dnp, err := catalog.LoadMarkList(r.cfg.DNPPath(name)); err != nil {
			slog.Warn("player: load DNP list failed", "profile", name, "error", err)
		} else {
			r.dnp = dnp
		}
		if fav, err := catalog.LoadMarkList(r.cfg.FAVPath(name)); err != nil {
			slog.Warn("player: load FAV list failed", "profile", name, "error", err)
		} else {
			r.fav = fav
		}

		r.cat.ApplyDNP(r.dnp.Rules())
		r.cat.ApplyFAV(r.fav.Rules(), dec.Favplay)
		r.profiles.Activated(dec.ProfileIdx)
	}

	r.pl.Clear()
	r.mu.Lock()
	r.mode = ModeDatabase | ModeSwitch
	r.favplay = dec.Favplay
	r.mu.Unlock()

	if dec.Volume >= 0 {
		r.setVolume(dec.Volume)
	}
	if modified := r.sched.PLCheck(r.pl, false, false, dec.Favplay, r.musicDirExists); modified {
		r.log(-1, "titlesNotify")
	}
}

// onWatchdogTrip implements spec.md §4.9's failure path.
func (r *Reader) onWatchdogTrip() {
	r.mu.Lock()
	failing := r.active
	oactive := r.oactive
	dbMode := !r.mode.Has(ModeStream)
	wasStart := r.status == command.StatusStart
	r.mu.Unlock()

	cur := r.pl.Current()
	failContext := "<unknown>"
	if cur != nil {
		failContext = cur.Title.Display
	}
	slog.Error("player: watchdog timeout", "context", failContext)

	fallback := oactive
	if failing == oactive {
		fallback = 1
	}
	r.mu.Lock()
	r.active = fallback
	if dbMode && wasStart {
		r.status = command.StatusQuit
	}
	r.mu.Unlock()

	r.killPlayers(true)
}

// killPlayers implements spec.md §4.9's killPlayers(restart):
// it sends QUIT to both decoders, waits 1s, then kills both with
// Decoder.Kill (SIGKILL); there is no SIGTERM step, and restart does not
// change what it does. It is also the shutdown path used on a quit
// command.
func (r *Reader) killPlayers(restart bool) {
	for _, d := range []*decoder.Decoder{r.fg, r.bg} {
		if d == nil {
			continue
		}
		_ = d.Quit()
	}
	time.Sleep(1 * time.Second)
	for _, d := range []*decoder.Decoder{r.fg, r.bg} {
		if d == nil {
			continue
		}
		_ = d.Kill()
	}
	_ = restart
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	h, total := total/3600, total%3600
	m, s := total/60, total%60
	if h > 0 {
		return pad2(h) + ":" + pad2(m) + ":" + pad2(s)
	}
	return pad2(m) + ":" + pad2(s)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
