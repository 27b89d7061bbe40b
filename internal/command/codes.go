// Package command implements the single-slot command register, the
// async/client-exclusive locks, and the message ring — spec.md §4.8
// (C9) and §3 "Message ring" (C1).
package command

// Code is a command as sent by an HTTP client, mirroring the numeric
// command set from the original mixplay protocol (spec.md §8 scenario
// walkthroughs reference these exact values: 3=next, 10=dnp, 19=search,
// 30=favplay).
type Code int32

const (
	CmdPlay Code = iota
	CmdStop
	CmdPrev
	CmdNext
	CmdStart
	CmdRepl
	CmdProfile
	CmdQuit
	CmdDBClean
	CmdFav
	CmdDNP // 10
	CmdDoublets
	CmdInsert
	CmdIVol
	CmdDVol
	CmdFSkip
	CmdBSkip // 0x10 == 16
	CmdMove
	CmdDBInfo
	CmdSearch
	CmdAppend // 20
	CmdSetVol
	CmdNewProf
	CmdPath
	CmdRemProf
	CmdSMode
	CmdDelDNP
	CmdDelFav
	CmdRemove
	CmdMute
	CmdFavplay // 30
	CmdReset
	CmdPause // 0x20 == 32
	CmdClone
	CmdIdle
)

// Modifier bits stack onto a Code to select the mark-list range and
// match mode — spec.md §4.2/§4.8: "by order of strength — fav-title
// beats dnp-album".
const (
	ModGenre   Code = 1 << 8
	ModArtist  Code = 1 << 9
	ModAlbum   Code = 1 << 10
	ModTitle   Code = 1 << 11
	ModDisplay Code = 1 << 12
	ModSubstr  Code = 1 << 13
	ModFuzzy   Code = 1 << 14
	ModMix     Code = 1 << 14
)

const modifierMask = ModGenre | ModArtist | ModAlbum | ModTitle | ModDisplay | ModSubstr | ModFuzzy

// Base strips modifier bits, returning the plain command.
func (c Code) Base() Code { return c &^ modifierMask }

// RangeCode maps the set range modifier bit to a catalog.Rule range
// byte ('t'=title, 'a'=artist, 'l'=album, 'g'=genre, 'd'=display), in
// the spec's stated priority order: fav-title beats dnp-album.
func (c Code) RangeCode() (byte, bool) {
	switch {
	case c&ModTitle != 0:
		return 't', true
	case c&ModArtist != 0:
		return 'a', true
	case c&ModAlbum != 0:
		return 'l', true
	case c&ModGenre != 0:
		return 'g', true
	case c&ModDisplay != 0:
		return 'd', true
	default:
		return 0, false
	}
}

// Op returns the match operator implied by the fuzzy modifier: '*' for
// fuzzy, '=' for exact. ModSubstr does not affect the result.
func (c Code) Op() byte {
	if c&ModFuzzy != 0 {
		return '*'
	}
	return '='
}

// passwordGated lists the commands spec.md §4.8 names as gated by
// checkPasswd(): "quit, dbclean, doublets, dbinfo-fix".
var passwordGated = map[Code]bool{
	CmdQuit:     true,
	CmdDBClean:  true,
	CmdDoublets: true,
	CmdDBInfo:   true,
}

// PasswordGated reports whether cmd's base command requires a password
// match before it is allowed to run.
func (c Code) PasswordGated() bool {
	return passwordGated[c.Base()]
}

// asyncOnly lists the commands spec.md §4.8 names as async-only:
// "dbclean, doublets, dbinfo, profile" — these acquire the async lock
// and run on a detached worker rather than inline in the reader tick.
var asyncOnly = map[Code]bool{
	CmdDBClean:  true,
	CmdDoublets: true,
	CmdDBInfo:   true,
	CmdProfile:  true,
}

// AsyncOnly reports whether cmd's base command must run as a detached
// async worker rather than inline.
func (c Code) AsyncOnly() bool {
	return asyncOnly[c.Base()]
}

// exclusiveClient lists commands whose output must be pinned to the
// requesting client — spec.md §4.8's exclusive-client model.
var exclusiveClient = map[Code]bool{
	CmdDBInfo:   true,
	CmdDBClean:  true,
	CmdDoublets: true,
	CmdSearch:   true,
}

// NeedsExclusiveClient reports whether cmd's base command produces
// output that must be pinned to a single requesting client.
func (c Code) NeedsExclusiveClient() bool {
	return exclusiveClient[c.Base()]
}
