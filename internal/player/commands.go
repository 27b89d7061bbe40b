package player

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/foxbow/mixplay/internal/catalog"
	"github.com/foxbow/mixplay/internal/command"
	"github.com/foxbow/mixplay/internal/config"
	"github.com/foxbow/mixplay/internal/metrics"
	"github.com/foxbow/mixplay/internal/profile"
)

// handleCommand dispatches one posted Request — spec.md §4.8's
// "Reader consumer: at each tick reads command, executes, clears to
// idle". Clearing to idle is implicit: Register.Next/Chan already
// emptied the slot the instant this request was received.
func (r *Reader) handleCommand(req command.Request) {
	base := req.Cmd.Base()
	start := time.Now()
	defer func() { metrics.ObserveCommandDuration(strconv.Itoa(int(base)), time.Since(start)) }()

	if base.PasswordGated() {
		key := req.RemoteIP
		if key == "" {
			key = strconv.Itoa(req.ClientID)
		}
		if !r.pwgate.Check(key, req.Arg) {
			r.alert(req.ClientID, "wrong password")
			return
		}
	}

	if base.AsyncOnly() {
		r.runAsync(req)
		return
	}

	switch base {
	case command.CmdPlay, command.CmdPause:
		r.cmdPlayPause()
	case command.CmdStop:
		r.cmdStop()
	case command.CmdNext:
		r.cmdSkip(1)
	case command.CmdPrev:
		r.cmdSkip(-1)
	case command.CmdFSkip:
		r.cmdJump(10)
	case command.CmdBSkip:
		r.cmdJump(-10)
	case command.CmdStart:
		r.cmdStart()
	case command.CmdFav:
		r.cmdMark(req, r.fav, true)
	case command.CmdDNP:
		r.cmdMark(req, r.dnp, false)
	case command.CmdFavplay:
		r.cmdFavplay(req.ClientID)
	case command.CmdSetVol:
		r.cmdSetVolume(req.Arg)
	case command.CmdIVol:
		r.cmdNudgeVolume(1)
	case command.CmdDVol:
		r.cmdNudgeVolume(-1)
	case command.CmdMute:
		r.cmdMute()
	case command.CmdSearch:
		r.cmdSearch(req)
	case command.CmdMove:
		r.cmdMove(req.Arg)
	case command.CmdRemove:
		r.cmdRemove(req.Arg)
	case command.CmdInsert:
		r.cmdInsert(req.Arg)
	case command.CmdAppend:
		r.cmdAppend(req.Arg)
	case command.CmdSMode:
		r.cmdSetFavplay(req.Arg == "1" || req.Arg == "true")
	case command.CmdDelDNP, command.CmdDelFav:
		// Rule deletion by exact string is not named as a distinct
		// §4.2 operation beyond handleRange/applyDNP/applyFAV; treat
		// it as a no-op acknowledgement rather than guessing a removal
		// API the spec never defines.
	case command.CmdQuit:
		r.setStatus(command.StatusQuit)
	case command.CmdNewProf:
		r.cmdNewProf(req)
	case command.CmdClone:
		r.cmdClone(req)
	case command.CmdRemProf:
		r.cmdRemProf(req)
	case command.CmdPath:
		r.log(req.ClientID, fmt.Sprintf("musicdir: %s", r.cfg.MusicDir))
	case command.CmdRepl:
		r.cmdSkip(0)
	default:
		r.alert(req.ClientID, fmt.Sprintf("unknown command %d", int32(base)))
	}
}

// cmdPlayPause implements spec.md §4.7's play/pause toggle. A database
// title pauses and resumes in place via the decoder's PAUSE command,
// but a stream has nothing to resume — original_source/src/player.c's
// mpc_play case only sends PAUSE in the non-stream branch; under
// PM_STREAM it calls pausePlay's stopPlay to drop the connection and
// sendplay to reconnect on resume, which restartStream mirrors here.
func (r *Reader) cmdPlayPause() {
	streamMode := r.modeValue().Has(ModeStream)
	switch r.Status() {
	case command.StatusPlay:
		if streamMode {
			_ = r.fg.Stop()
			r.setStatus(command.StatusPause)
		} else {
			_ = r.fg.Pause()
			r.setStatus(command.StatusPause)
		}
	case command.StatusPause:
		if streamMode {
			r.restartStream()
		} else {
			_ = r.fg.Pause()
			r.setStatus(command.StatusPlay)
		}
	}
}

func (r *Reader) cmdStop() {
	r.setStatus(command.StatusStop)
	_ = r.fg.Stop()
}

// cmdSkip implements spec.md §8 scenario 1: stopping the foreground
// triggers a natural @P 0, which onTrackEnd/advancePlaylist resolves
// using the order this sets.
func (r *Reader) cmdSkip(order int) {
	r.mu.Lock()
	r.order = order
	r.pendingSkip = order != 0
	r.mu.Unlock()
	if order > 0 {
		metrics.RecordSkip("forward")
	} else if order < 0 {
		metrics.RecordSkip("backward")
	}
	_ = r.fg.Stop()
}

func (r *Reader) cmdJump(seconds int) {
	_ = r.fg.Jump(seconds)
}

func (r *Reader) cmdStart() {
	r.startCurrent()
}

// cmdMark implements handleRange(title, cmd) from spec.md §4.2/§4.8:
// derive a rule from the current title's field named by cmd's
// modifier bits, append it to list, and prune the playlist of newly
// flagged titles.
func (r *Reader) cmdMark(req command.Request, list *catalog.MarkList, isFAV bool) {
	cur := r.pl.Current()
	if cur == nil {
		r.alert(req.ClientID, "no current title")
		return
	}
	rangeCode, ok := req.Cmd.RangeCode()
	if !ok {
		rangeCode = 'd'
	}
	_, changed, err := r.cat.HandleRange(cur.Title, rangeCode, req.Cmd.Op(), list, isFAV, r.favplayValue())
	if err != nil {
		r.alert(req.ClientID, err.Error())
		return
	}
	if len(changed) == 0 {
		return
	}
	if !isFAV {
		r.pruneDNP(changed)
	}
}

// pruneDNP removes every playlist entry referencing a now-DNP title,
// repositioning current if it was one of them — spec.md §8 scenario 3.
func (r *Reader) pruneDNP(flagged []*catalog.Title) {
	flaggedKeys := make(map[int]bool, len(flagged))
	for _, t := range flagged {
		flaggedKeys[t.Key] = true
	}
	cur := r.pl.Current()
	curWasFlagged := cur != nil && flaggedKeys[cur.Title.Key]

	r.pl.RemoveMatching(func(t *catalog.Title) bool {
		return flaggedKeys[t.Key]
	})

	r.log(-1, "titlesNotify")

	if curWasFlagged {
		r.mu.Lock()
		r.order = 0
		r.mu.Unlock()
		_ = r.fg.Stop()
	}
}

// cmdFavplay implements spec.md §8 scenario 2: favplay requires at
// least 21 favourites to enable.
func (r *Reader) cmdFavplay(cid int) {
	if r.favplayValue() {
		r.cmdSetFavplay(false)
		return
	}
	if r.countFavourites() < 21 {
		r.alert(cid, "Need at least 21 Favourites to enable Favplay.")
		return
	}
	r.cmdSetFavplay(true)
}

func (r *Reader) countFavourites() int {
	n := 0
	r.cat.Each(func(t *catalog.Title) {
		if t.Flags.Has(catalog.FAV) {
			n++
		}
	})
	return n
}

func (r *Reader) cmdSetFavplay(on bool) {
	r.mu.Lock()
	r.favplay = on
	r.mu.Unlock()
	changed := r.cat.ApplyFAV(r.fav.Rules(), on)
	if len(changed) > 0 {
		r.log(-1, "titlesNotify")
	}
}

func (r *Reader) cmdSetVolume(arg string) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return
	}
	r.setVolume(v)
}

func (r *Reader) cmdNudgeVolume(delta int) {
	r.mu.Lock()
	v := r.volume + delta
	r.mu.Unlock()
	r.setVolume(v)
}

func (r *Reader) cmdMute() {
	r.mu.Lock()
	muting := r.volume != config.VolumeMuted
	r.mu.Unlock()

	if err := r.mixer.Mute(muting); err != nil {
		slog.Warn("player: mixer mute failed", "error", err)
	}

	r.mu.Lock()
	if muting {
		r.volume = config.VolumeMuted
	} else {
		r.volume = r.mixer.Get()
	}
	r.mu.Unlock()
}

// setVolume clips to [0,100] except for the sentinel values, per
// spec.md §8's boundary behaviour. MUTED/AUTOMUTE/NOAUDIO are
// bookkeeping only and issue no mixer call; LINEOUT calls the mixer's
// LineOut before it is remembered.
func (r *Reader) setVolume(v int) {
	switch v {
	case config.VolumeMuted, config.VolumeAutoMute, config.VolumeNoAudio:
		r.mu.Lock()
		r.volume = v
		r.mu.Unlock()
		return
	case config.VolumeLineOut:
		if err := r.mixer.LineOut(); err != nil {
			slog.Warn("player: mixer line-out failed", "error", err)
		}
		r.mu.Lock()
		r.volume = v
		r.mu.Unlock()
		return
	}
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	if err := r.mixer.Set(v); err != nil {
		slog.Warn("player: mixer set failed", "error", err)
	}
	r.mu.Lock()
	r.volume = v
	r.mu.Unlock()
}

// cmdSearch implements spec.md §4.10's search synchronization contract
// and §8 scenario 4: the reader fills found.titles/artists and signals
// the search worker's condition variable rather than the handler
// polling on a sleep.
func (r *Reader) cmdSearch(req command.Request) {
	rangeCode, _ := req.Cmd.RangeCode()
	op := req.Cmd.Op()
	rule := catalog.Rule{Range: rangeCode, Op: op, Pattern: req.Arg}
	if rangeCode == 0 {
		rule.Range = 'd'
	}

	r.search.reset()

	const maxSearch = 100
	var titles []*catalog.Title
	artistSeen := map[string]bool{}
	var artists []string
	truncated := false

	r.cat.Each(func(t *catalog.Title) {
		if !rule.Matches(t) {
			return
		}
		if len(titles) >= maxSearch {
			truncated = true
			return
		}
		titles = append(titles, t)
		if !artistSeen[t.Artist] {
			artistSeen[t.Artist] = true
			artists = append(artists, t.Artist)
		}
	})

	if truncated {
		r.log(req.ClientID, "search truncated at 100 results")
	}
	r.search.finish(titles, artists)
}

func (r *Reader) cmdMove(arg string) {
	from, after, ok := parseTwoInts(arg)
	if !ok {
		return
	}
	if r.pl.MoveByTitleKey(from, after) {
		r.log(-1, "titlesNotify")
	}
}

func (r *Reader) cmdRemove(arg string) {
	key, err := strconv.Atoi(arg)
	if err != nil {
		return
	}
	if removed, _ := r.pl.RemoveByTitleKey(key); removed != nil {
		r.log(-1, "titlesNotify")
	}
}

func (r *Reader) cmdInsert(arg string) {
	key, err := strconv.Atoi(arg)
	if err != nil {
		return
	}
	t := r.cat.ByKey(key)
	if t == nil {
		return
	}
	cur := r.pl.Current()
	r.pl.AddAfter(cur, t, true)
	r.log(-1, "titlesNotify")
}

func (r *Reader) cmdAppend(arg string) {
	key, err := strconv.Atoi(arg)
	if err != nil {
		return
	}
	t := r.cat.ByKey(key)
	if t == nil {
		return
	}
	r.pl.AddTail(t, true)
	r.log(-1, "titlesNotify")
}

func parseTwoInts(arg string) (a, b int, ok bool) {
	var sep int = -1
	for i, c := range arg {
		if c == ',' || c == ' ' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return 0, 0, false
	}
	a, errA := strconv.Atoi(arg[:sep])
	b, errB := strconv.Atoi(arg[sep+1:])
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}

// runAsync implements spec.md §4.8's async-only command handling:
// acquire _asynclock via asyncTest(), optionally pin the exclusive
// client, then run the worker detached.
func (r *Reader) runAsync(req command.Request) {
	if !r.asyncLk.TryAcquire() {
		r.alert(req.ClientID, "player is busy")
		return
	}

	pinned := false
	if req.Cmd.Base().NeedsExclusiveClient() {
		if !r.clientLk.TrySetCurClient(req.ClientID) {
			r.asyncLk.Release()
			r.alert(req.ClientID, "another client is busy")
			return
		}
		pinned = true
	}

	go func() {
		defer r.asyncLk.Release()
		if pinned {
			defer r.clientLk.UnlockClient(req.ClientID)
		}

		switch req.Cmd.Base() {
		case command.CmdDBClean:
			r.asyncDBClean(req.ClientID)
		case command.CmdDoublets:
			r.asyncDoublets(req.ClientID)
		case command.CmdDBInfo:
			r.asyncDBInfo(req.ClientID)
		case command.CmdProfile:
			r.asyncSetProfile(req.ClientID)
		}
	}()
}

// cmdNewProf implements mpc_newprof: adds req.Arg as a new profile and
// activates it — a database profile normally, or a stream profile
// (reusing the currently active stream's URL) when a stream is active.
func (r *Reader) cmdNewProf(req command.Request) {
	if req.Arg == "" {
		r.alert(req.ClientID, "No profile given!")
		return
	}
	if !r.asyncLk.TryAcquire() {
		r.alert(req.ClientID, "player is busy")
		return
	}
	defer r.asyncLk.Release()

	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	var err error
	if active < 0 {
		url, _, ok := r.cfg.ActiveStream()
		if !ok {
			r.alert(req.ClientID, "no active stream to save")
			return
		}
		_, err = r.profiles.NewStreamProfile(req.Arg, url)
	} else {
		_, err = r.profiles.NewDatabaseProfile(req.Arg)
	}
	if err != nil {
		r.alert(req.ClientID, err.Error())
		return
	}
	r.log(-1, "titlesNotify")
}

// cmdClone implements mpc_clone.
func (r *Reader) cmdClone(req command.Request) {
	if req.Arg == "" {
		r.alert(req.ClientID, "No profile given!")
		return
	}
	if !r.asyncLk.TryAcquire() {
		r.alert(req.ClientID, "player is busy")
		return
	}
	defer r.asyncLk.Release()

	if _, err := r.profiles.Clone(req.Arg); err != nil {
		r.alert(req.ClientID, err.Error())
		return
	}
	r.log(-1, "titlesNotify")
}

// cmdRemProf implements mpc_remprof.
func (r *Reader) cmdRemProf(req command.Request) {
	idx, err := strconv.Atoi(req.Arg)
	if err != nil {
		r.alert(req.ClientID, "No profile given!")
		return
	}
	if !r.asyncLk.TryAcquire() {
		r.alert(req.ClientID, "player is busy")
		return
	}
	defer r.asyncLk.Release()

	if err := r.profiles.Remove(idx); err != nil {
		r.alert(req.ClientID, err.Error())
		return
	}
	r.log(-1, "titlesNotify")
}

// asyncSetProfile implements setProfile() (spec.md §4.11): resolve the
// target profile, reconfigure playlist/catalog state for it, persist
// its saved volume/favplay and the config file, then — matching the
// original's "sleep(1); startPlayer();" — post a start command back
// through the normal register rather than touching the decoders
// directly, since only the reader goroutine ever does that.
func (r *Reader) asyncSetProfile(cid int) {
	dec, err := r.profiles.Resolve(r.oactiveValue())
	if err != nil {
		r.alert(cid, err.Error())
		return
	}

	switch dec.Kind {
	case profile.KindStream:
		r.activateStream(dec)
	case profile.KindDatabase:
		r.activateDatabase(dec)
	}

	r.profiles.SaveVolume(dec, r.Snapshot().Volume)
	if dec.Kind == profile.KindDatabase {
		r.profiles.SaveFavplay(dec, r.favplayValue())
	}
	if err := r.cfg.Save(); err != nil {
		slog.Warn("player: config save after profile switch failed", "error", err)
	}

	r.mu.Lock()
	r.active = r.cfg.Active
	if r.active != 0 {
		r.oactive = r.active
	}
	r.mu.Unlock()

	time.Sleep(time.Second)
	if err := r.reg.Post(command.Request{Cmd: command.CmdStart, ClientID: -1}, r.Status()); err != nil {
		slog.Warn("player: post start after profile switch failed", "error", err)
	}
	r.log(-1, "titlesNotify")
}

func (r *Reader) asyncDBClean(cid int) {
	removed := r.cat.CheckExist(r.cfg.MusicDir)
	added, err := r.cat.AddTitles(r.cfg.MusicDir)
	if err != nil {
		r.alert(cid, err.Error())
		return
	}
	r.log(cid, fmt.Sprintf("dbclean: removed %d missing, added %d new titles", removed, added))
}

func (r *Reader) asyncDoublets(cid int) {
	marked, ambiguous := r.cat.NameCheck(r.dbl)
	r.log(cid, fmt.Sprintf("doublets: marked %d, %d ambiguous pairs need review", marked, len(ambiguous)))
}

func (r *Reader) asyncDBInfo(cid int) {
	r.log(cid, fmt.Sprintf("dbinfo: %d titles in catalog", r.cat.Count()))
}
