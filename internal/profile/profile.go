// Package profile implements setProfile() — spec.md §4.11, C13 — the
// switch between database-mix and stream profiles, with per-profile
// volume/favplay persistence.
package profile

import (
	"fmt"

	"github.com/foxbow/mixplay/internal/config"
)

// Kind distinguishes a database-mix profile from a stream profile —
// spec.md §3's "Profiles with stream_url == nil are database-mix
// profiles; otherwise stream profiles."
type Kind int

const (
	KindDatabase Kind = iota
	KindStream
)

// Decision is what Resolve works out from cfg.Active: which profile to
// activate and how.
type Decision struct {
	Kind       Kind
	ProfileIdx int // 1-based into cfg.Profiles (KindDatabase) or cfg.Streams (KindStream)
	StreamURL  string
	StreamName string
	Volume     int  // saved per-profile volume, or -1 if unset
	Favplay    bool // KindDatabase only
	// Changed reports whether this activation is a different database
	// profile than the last one actually activated — player.c's
	// `lastact == control->active` comparison, which decides between
	// "just wipe playlist" and "clean up all" (reload DNP/FAV).
	Changed bool
}

// Manager resolves and tracks profile-switch decisions against a
// *config.Config. It holds no playlist/catalog/decoder state itself —
// internal/player.Reader performs the actual playlist/decoder mutation,
// using Resolve's Decision to drive it, the same division of labour
// spec.md §5 draws between the reader (owns playback state) and
// everything else (reads/requests through it).
type Manager struct {
	cfg    *config.Config
	lastDB int // 1-based index of the last database profile activated, 0 = none yet
}

// New returns a Manager bound to cfg.
func New(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg}
}

// Resolve implements setProfile()'s profile-selection logic. oactive is
// the last successfully activated profile, used as the fallback when
// cfg.Active == 0 — "If active == 0, revert to oactive."
func (m *Manager) Resolve(oactive int) (Decision, error) {
	active := m.cfg.Active
	if active == 0 {
		active = oactive
	}

	switch {
	case active < 0:
		idx := -active
		if idx < 1 || idx > len(m.cfg.Streams) {
			return Decision{}, fmt.Errorf("profile: stream #%d does not exist", idx)
		}
		name := ""
		if idx-1 < len(m.cfg.SNames) {
			name = m.cfg.SNames[idx-1]
		}
		return Decision{
			Kind: KindStream, ProfileIdx: idx,
			StreamURL: m.cfg.Streams[idx-1], StreamName: name,
			Volume: m.cfg.StreamVolume(idx),
		}, nil

	case active > 0:
		if active > len(m.cfg.Profiles) {
			return Decision{}, fmt.Errorf("profile: profile #%d does not exist", active)
		}
		return Decision{
			Kind: KindDatabase, ProfileIdx: active,
			Volume: m.cfg.ProfileVolume(active), Favplay: m.cfg.ProfileFavplayFlag(active),
			Changed: m.lastDB != active,
		}, nil

	default:
		return Decision{}, fmt.Errorf("profile: no valid profile selected")
	}
}

// Activated records idx as the last database profile to finish
// activating — player.c's `lastact = control->active` assignment, made
// only once the "different profile" branch has finished its reload.
func (m *Manager) Activated(idx int) {
	m.lastDB = idx
}

// SaveVolume persists dec's activated profile's current volume back to
// cfg, the per-profile bookkeeping `setProfile()` does before
// `writeConfig(NULL)`.
func (m *Manager) SaveVolume(dec Decision, volume int) {
	switch dec.Kind {
	case KindDatabase:
		m.cfg.SetProfileVolume(dec.ProfileIdx, volume)
	case KindStream:
		m.cfg.SetStreamVolume(dec.ProfileIdx, volume)
	}
}

// SaveFavplay persists a database profile's favplay flag.
func (m *Manager) SaveFavplay(dec Decision, on bool) {
	if dec.Kind == KindDatabase {
		m.cfg.SetProfileFavplay(dec.ProfileIdx, on)
	}
}

// NewDatabaseProfile implements mpc_newprof's "just add argument as new
// profile" branch and activates it.
func (m *Manager) NewDatabaseProfile(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("profile: no profile name given")
	}
	idx := m.cfg.AddProfile(name)
	m.cfg.Active = idx
	return idx, m.cfg.Save()
}

// NewStreamProfile implements mpc_newprof's "save the current stream"
// branch and activates it.
func (m *Manager) NewStreamProfile(name, url string) (int, error) {
	if name == "" || url == "" {
		return 0, fmt.Errorf("profile: no stream name or URL given")
	}
	active := m.cfg.AddStream(name, url)
	m.cfg.Active = active
	return active, m.cfg.Save()
}

// Clone duplicates the active database profile under a new name and
// activates the clone — mpc_clone.
func (m *Manager) Clone(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("profile: no profile name given")
	}
	idx, ok := m.cfg.CloneProfile(name)
	if !ok {
		return 0, fmt.Errorf("profile: can only clone a database profile")
	}
	m.cfg.Active = idx
	return idx, m.cfg.Save()
}

// Remove implements mpc_remprof.
func (m *Manager) Remove(idx int) error {
	if err := m.cfg.RemoveProfile(idx); err != nil {
		return err
	}
	return m.cfg.Save()
}
