package httpapi

import (
	"github.com/foxbow/mixplay/internal/catalog"
	"github.com/foxbow/mixplay/internal/command"
	"github.com/foxbow/mixplay/internal/player"
)

// Status section flags carried in the "cmd" query/body field of
// GET /mpctrl/status — spec.md §4.10, grounded on original_source's
// mpcomm.c serializeStatus()/config.h's MPCOMM_* constants but rescaled
// to the bit values spec.md §4.10 specifies directly.
const (
	flagStatus       = 1
	flagTitles       = 2
	flagSearchResult = 4
	flagLists        = 8
	flagConfig       = 16
	flagConfigTitles = 32
)

// titleDTO is the wire representation of a catalog title. catalog.Title
// itself carries no JSON tags — it doubles as the fixed-width on-disk
// database record — so the status codec mints its own shape, grounded
// on mpcomm.c's jsonAddTitle helper.
type titleDTO struct {
	Key       int    `json:"key"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	Title     string `json:"title"`
	Display   string `json:"display"`
	Genre     string `json:"genre"`
	Flags     int    `json:"flags"`
	PlayCount uint32 `json:"playcount"`
	SkipCount uint32 `json:"skipcount"`
}

// placeholderTitle mirrors jsonAddTitle's "title == NULL" branch: a
// synthetic record describing what mixplay is doing instead of playing
// a catalog title.
func placeholderTitle(status command.Status) *titleDTO {
	return &titleDTO{
		Artist: "Mixplay",
		Title:  activityLabel(status),
	}
}

func activityLabel(status command.Status) string {
	switch status {
	case command.StatusPlay:
		return "playing"
	case command.StatusPause:
		return "paused"
	case command.StatusStart:
		return "starting"
	case command.StatusStop:
		return "stopped"
	case command.StatusReset:
		return "resetting"
	case command.StatusQuit:
		return "quitting"
	default:
		return "idle"
	}
}

func newTitleDTO(t *catalog.Title) *titleDTO {
	if t == nil {
		return nil
	}
	return &titleDTO{
		Key:       t.Key,
		Artist:    t.Artist,
		Album:     t.Album,
		Title:     t.Title,
		Display:   t.Display,
		Genre:     t.Genre,
		Flags:     int(t.Flags),
		PlayCount: t.PlayCount,
		SkipCount: t.SkipCount,
	}
}

func newTitleDTOs(ts []*catalog.Title) []*titleDTO {
	out := make([]*titleDTO, len(ts))
	for i, t := range ts {
		out[i] = newTitleDTO(t)
	}
	return out
}

// statusResponse is the JSON status schema of spec.md §6. Top-level
// fields are always present; the rest are gated by the requesting
// flags and simply omitted (the Go zero-value/omitempty idiom standing
// in for the original's "only add the key if the flag bit is set").
type statusResponse struct {
	Type      int     `json:"type"`
	Active    int     `json:"active"`
	Playtime  string  `json:"playtime"`
	Remtime   string  `json:"remtime"`
	Percent   float64 `json:"percent"`
	Volume    int     `json:"volume"`
	Status    int     `json:"status"`
	MPMode    int     `json:"mpmode"`
	MPFavplay bool    `json:"mpfavplay"`
	FPCurrent bool    `json:"fpcurrent"`
	Msg       string  `json:"msg"`

	Prev    []*titleDTO `json:"prev,omitempty"`
	Current *titleDTO   `json:"current,omitempty"`
	Next    []*titleDTO `json:"next,omitempty"`

	Titles  []*titleDTO `json:"titles,omitempty"`
	Artists []string    `json:"artists,omitempty"`
	Albums  []string    `json:"albums,omitempty"`
	Albart  []string    `json:"albart,omitempty"`

	DNPList []string `json:"dnplist,omitempty"`
	FAVList []string `json:"favlist,omitempty"`

	MusicDir string   `json:"musicdir,omitempty"`
	Profile  []string `json:"profile,omitempty"`
	Stream   []string `json:"stream,omitempty"`
	SName    []string `json:"sname,omitempty"`
	SkipDNP  int      `json:"skipdnp,omitempty"`
	Fade     int      `json:"fade,omitempty"`
}

// buildStatus assembles the response for the given section flags —
// mpcomm.c serializeStatus's single pass over the requested sections.
func (s *Server) buildStatus(flags int, snap player.Snapshot, msg string) *statusResponse {
	resp := &statusResponse{
		Type:      flags,
		Active:    snap.Active,
		Playtime:  snap.Playtime,
		Remtime:   snap.Remtime,
		Percent:   snap.Percent,
		Volume:    snap.Volume,
		Status:    int(snap.Status),
		MPMode:    int(snap.Mode),
		MPFavplay: snap.Favplay,
		FPCurrent: snap.FPCurrent,
		Msg:       msg,
	}

	if flags&(flagTitles|flagConfigTitles) != 0 {
		resp.Prev = newTitleDTOs(s.player.History())
		if snap.Current != nil {
			resp.Current = newTitleDTO(snap.Current)
		} else {
			resp.Current = placeholderTitle(snap.Status)
		}
		resp.Next = newTitleDTOs(s.player.Queue())
	}

	if flags&flagSearchResult != 0 {
		titles, artists, ok := s.player.SearchState().Wait(searchTimeout)
		if ok {
			resp.Titles = newTitleDTOs(titles)
			resp.Artists = artists
			resp.Albums, resp.Albart = albumsAndAlbart(titles)
		}
	}

	if flags&flagLists != 0 {
		resp.DNPList = ruleStrings(s.player.DNPRules())
		resp.FAVList = ruleStrings(s.player.FAVRules())
	}

	if flags&(flagConfig|flagConfigTitles) != 0 {
		resp.MusicDir = s.cfg.MusicDir
		resp.Profile = s.cfg.Profiles
		resp.Stream = s.cfg.Streams
		resp.SName = s.cfg.SNames
		resp.SkipDNP = s.cfg.SkipDNP
		resp.Fade = s.cfg.Fade
	}

	return resp
}

func ruleStrings(rules []catalog.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.String()
	}
	return out
}

// albumsAndAlbart derives the unique album list and its parallel
// "artist - album" label, the same seen-map dedup idiom cmdSearch uses
// for artists.
func albumsAndAlbart(titles []*catalog.Title) (albums, albart []string) {
	seen := map[string]bool{}
	for _, t := range titles {
		if seen[t.Album] {
			continue
		}
		seen[t.Album] = true
		albums = append(albums, t.Album)
		albart = append(albart, t.Artist+" - "+t.Album)
	}
	return albums, albart
}
