// Package config loads and persists the mixplay configuration file and
// hands out a single immutable-by-convention handle shared by every
// component, instead of a package-level mutable singleton.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sentinel volume values, alongside the normal 0..100 range.
const (
	VolumeMuted    = -1
	VolumeAutoMute = -2
	VolumeNoAudio  = -3
	VolumeLineOut  = -4
)

const defaultPort = 2347

// Config holds everything read from (or destined for) mixplay.conf, plus
// the derived on-disk paths that live alongside it. A *Config is passed
// explicitly to every component constructor; nothing reads it through a
// global.
type Config struct {
	MusicDir string
	Channel  string

	Profiles []string
	Streams  []string
	SNames   []string

	// ProfileVolumes and ProfileFavplay hold setProfile()'s per-profile
	// saved volume/favplay flag (spec.md §4.11, "Apply per-profile saved
	// volume"), parallel to Profiles. StreamVolumes is the same for
	// Streams; streams have no favplay flag of their own. -1 in
	// ProfileVolumes/StreamVolumes means "use the current volume
	// unchanged", matching player.c's "if (profile->volume == -1)
	// profile->volume = control->volume;".
	ProfileVolumes []int
	ProfileFavplay []bool
	StreamVolumes  []int

	// Active selects the profile: positive is a 1-based index into
	// Profiles, negative is a 1-based index (negated) into Streams, 0
	// means "transient" (an explicit path/URL was given on the command
	// line and no profile is persisted).
	Active int

	SkipDNP int
	Fade    int

	Host string
	Port int

	// Password is the shared password gating destructive commands
	// (§4.8). It is hashed once at startup by command.NewPasswordGate and
	// is never written by Save. No config-file key sets it.
	Password string

	// home is the directory holding mixplay.conf and its siblings
	// (mixplay.db, <profile>.dnp/.fav, mixplay.dbl). Not itself a config
	// key — derived from where the config file was loaded from.
	home string

	// path is the file mixplay.conf was loaded from / will be saved to.
	path string
}

// keyOrder is the fixed key order the original C `config.c` writes in;
// preserved so that Load → Save round-trips to a byte-stable file when
// nothing has changed.
var keyOrder = []string{
	"musicdir", "channel", "profiles", "streams", "snames",
	"profilevolumes", "profilefavplay", "streamvolumes",
	"active", "skipdnp", "fade", "host", "port",
}

// Default returns a Config with the original implementation's defaults,
// rooted at $HOME/.mixplay.
func Default() *Config {
	home := defaultHome()
	return &Config{
		MusicDir: filepath.Join(home, "music"),
		Channel:  "Master",
		SkipDNP:  5,
		Fade:     4,
		Host:     "",
		Port:     defaultPort,
		home:     home,
		path:     filepath.Join(home, "mixplay.conf"),
	}
}

func defaultHome() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, ".mixplay")
	}
	return ".mixplay"
}

// Home returns the directory holding the config file and its siblings.
func (c *Config) Home() string { return c.home }

// DBPath returns the path to the title-catalog database file.
func (c *Config) DBPath() string { return filepath.Join(c.home, "mixplay.db") }

// DNPPath returns the per-profile DNP mark-list path.
func (c *Config) DNPPath(profile string) string {
	return filepath.Join(c.home, profile+".dnp")
}

// FAVPath returns the per-profile FAV mark-list path.
func (c *Config) FAVPath(profile string) string {
	return filepath.Join(c.home, profile+".fav")
}

// DBLPath returns the global doublet mark-list path.
func (c *Config) DBLPath() string {
	return filepath.Join(c.home, "mixplay.dbl")
}

// Load reads the config file at path, creating a default one if it does
// not exist yet — mirroring the "opens, creates if absent" semantics the
// title catalog's open() uses (§4.1).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		cfg.path = path
		cfg.home = filepath.Dir(path)
	}

	if err := os.MkdirAll(cfg.home, 0o755); err != nil {
		return nil, fmt.Errorf("config: could not create home dir %s: %w", cfg.home, err)
	}

	f, err := os.Open(cfg.path)
	if os.IsNotExist(err) {
		slog.Info("config file absent, writing defaults", "path", cfg.path)
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", cfg.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			slog.Warn("config: ignoring malformed line", "line", line)
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if err := cfg.apply(key, val); err != nil {
			slog.Warn("config: ignoring bad value", "key", key, "value", val, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", cfg.path, err)
	}

	return cfg, nil
}

func (c *Config) apply(key, val string) error {
	switch key {
	case "musicdir":
		c.MusicDir = val
	case "channel":
		c.Channel = val
	case "profiles":
		c.Profiles = splitList(val)
	case "streams":
		c.Streams = splitList(val)
	case "snames":
		c.SNames = splitList(val)
	case "profilevolumes":
		c.ProfileVolumes = splitIntList(val)
	case "profilefavplay":
		c.ProfileFavplay = splitBoolList(val)
	case "streamvolumes":
		c.StreamVolumes = splitIntList(val)
	case "active":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		c.Active = n
	case "skipdnp":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		c.SkipDNP = n
	case "fade":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		c.Fade = n
	case "host":
		c.Host = val
	case "port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		c.Port = n
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

// splitList parses the `a;b;c;` semicolon list format used for profiles,
// streams, and snames, dropping empty trailing entries.
func splitList(val string) []string {
	parts := strings.Split(val, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitIntList(val string) []int {
	strs := splitList(val)
	out := make([]int, 0, len(strs))
	for _, s := range strs {
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func splitBoolList(val string) []bool {
	strs := splitList(val)
	out := make([]bool, 0, len(strs))
	for _, s := range strs {
		out = append(out, s == "1")
	}
	return out
}

func (c *Config) render(key string) string {
	switch key {
	case "musicdir":
		return c.MusicDir
	case "channel":
		return c.Channel
	case "profiles":
		return joinList(c.Profiles)
	case "streams":
		return joinList(c.Streams)
	case "snames":
		return joinList(c.SNames)
	case "profilevolumes":
		return joinIntList(c.ProfileVolumes)
	case "profilefavplay":
		return joinBoolList(c.ProfileFavplay)
	case "streamvolumes":
		return joinIntList(c.StreamVolumes)
	case "active":
		return strconv.Itoa(c.Active)
	case "skipdnp":
		return strconv.Itoa(c.SkipDNP)
	case "fade":
		return strconv.Itoa(c.Fade)
	case "host":
		return c.Host
	case "port":
		return strconv.Itoa(c.Port)
	}
	return ""
}

func joinList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return strings.Join(items, ";") + ";"
}

func joinIntList(items []int) string {
	if len(items) == 0 {
		return ""
	}
	strs := make([]string, len(items))
	for i, n := range items {
		strs[i] = strconv.Itoa(n)
	}
	return strings.Join(strs, ";") + ";"
}

func joinBoolList(items []bool) string {
	if len(items) == 0 {
		return ""
	}
	strs := make([]string, len(items))
	for i, b := range items {
		if b {
			strs[i] = "1"
		} else {
			strs[i] = "0"
		}
	}
	return strings.Join(strs, ";") + ";"
}

// Save atomically rewrites the config file: write to a temp file in the
// same directory, then rename over the target, the same atomic-write
// idiom the teacher uses for its playlist JSON store (internal/playlist
// store.go Save()).
func (c *Config) Save() error {
	if err := os.MkdirAll(c.home, 0o755); err != nil {
		return fmt.Errorf("config: could not create home dir %s: %w", c.home, err)
	}

	var b strings.Builder
	for _, key := range keyOrder {
		fmt.Fprintf(&b, "%s=%s\n", key, c.render(key))
	}

	tmp, err := os.CreateTemp(c.home, "mixplay.conf.tmp-*")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: rename temp file into place: %w", err)
	}
	return nil
}

// ActiveProfileName returns the name of the currently active database
// profile, or "" if Active does not select one (stream mode or transient).
func (c *Config) ActiveProfileName() string {
	if c.Active <= 0 || c.Active > len(c.Profiles) {
		return ""
	}
	return c.Profiles[c.Active-1]
}

// ActiveStream returns the URL and display name of the currently active
// stream profile, or ("", "", false) if Active does not select one.
func (c *Config) ActiveStream() (url, name string, ok bool) {
	if c.Active >= 0 {
		return "", "", false
	}
	idx := -c.Active - 1
	if idx < 0 || idx >= len(c.Streams) {
		return "", "", false
	}
	url = c.Streams[idx]
	if idx < len(c.SNames) {
		name = c.SNames[idx]
	}
	return url, name, true
}

// ProfileVolume returns the saved volume for database profile idx
// (1-based, as Active encodes it), or VolumeMuted's sibling -1 sentinel
// meaning "unset, use the current volume" if idx is out of range or the
// slice hasn't grown to cover it yet — player.c's "profile->volume == -1"
// check.
func (c *Config) ProfileVolume(idx int) int {
	if idx < 1 || idx > len(c.ProfileVolumes) {
		return -1
	}
	return c.ProfileVolumes[idx-1]
}

// SetProfileVolume grows ProfileVolumes as needed and records idx's
// volume, mirroring the original writing profile->volume back before
// writeConfig().
func (c *Config) SetProfileVolume(idx, volume int) {
	c.ProfileVolumes = growInts(c.ProfileVolumes, idx, -1)
	c.ProfileVolumes[idx-1] = volume
}

// ProfileFavplayFlag returns whether database profile idx has favplay
// enabled.
func (c *Config) ProfileFavplayFlag(idx int) bool {
	if idx < 1 || idx > len(c.ProfileFavplay) {
		return false
	}
	return c.ProfileFavplay[idx-1]
}

// SetProfileFavplay records idx's favplay flag.
func (c *Config) SetProfileFavplay(idx int, on bool) {
	c.ProfileFavplay = growBools(c.ProfileFavplay, idx)
	c.ProfileFavplay[idx-1] = on
}

// StreamVolume mirrors ProfileVolume for stream profiles (1-based index
// into Streams, i.e. -Active).
func (c *Config) StreamVolume(idx int) int {
	if idx < 1 || idx > len(c.StreamVolumes) {
		return -1
	}
	return c.StreamVolumes[idx-1]
}

// SetStreamVolume mirrors SetProfileVolume for stream profiles.
func (c *Config) SetStreamVolume(idx, volume int) {
	c.StreamVolumes = growInts(c.StreamVolumes, idx, -1)
	c.StreamVolumes[idx-1] = volume
}

func growInts(s []int, n int, fill int) []int {
	for len(s) < n {
		s = append(s, fill)
	}
	return s
}

func growBools(s []bool, n int) []bool {
	for len(s) < n {
		s = append(s, false)
	}
	return s
}

// AddProfile appends a new database-mix profile named name (mpc_newprof,
// the "just add argument as new profile" branch) and returns its 1-based
// index.
func (c *Config) AddProfile(name string) int {
	c.Profiles = append(c.Profiles, name)
	c.ProfileVolumes = growInts(c.ProfileVolumes, len(c.Profiles), -1)
	c.ProfileFavplay = growBools(c.ProfileFavplay, len(c.Profiles))
	return len(c.Profiles)
}

// AddStream appends a new stream profile (mpc_newprof's "save the
// current stream" branch) and returns its negative Active encoding.
func (c *Config) AddStream(name, url string) int {
	c.Streams = append(c.Streams, url)
	c.SNames = append(c.SNames, name)
	c.StreamVolumes = growInts(c.StreamVolumes, len(c.Streams), -1)
	return -len(c.Streams)
}

// CloneProfile duplicates the currently active database profile under a
// new name, carrying over its saved volume — mpc_clone. Returns the new
// profile's 1-based index, or false if Active does not select a database
// profile (mpc_clone only clones database profiles).
func (c *Config) CloneProfile(name string) (int, bool) {
	if c.Active <= 0 {
		return 0, false
	}
	vol := c.ProfileVolume(c.Active)
	idx := c.AddProfile(name)
	c.SetProfileVolume(idx, vol)
	return idx, true
}

// RemoveProfile deletes database profile idx (1-based), shifting later
// profiles down and adjusting Active the same way mpc_remprof does.
// Profile 1 ("mixplay") and the currently active profile can't be
// removed.
func (c *Config) RemoveProfile(idx int) error {
	if idx == 1 {
		return fmt.Errorf("config: the first profile cannot be removed")
	}
	if idx == c.Active {
		return fmt.Errorf("config: cannot remove the active profile")
	}
	if idx < 1 || idx > len(c.Profiles) {
		return fmt.Errorf("config: profile #%d does not exist", idx)
	}
	c.Profiles = append(c.Profiles[:idx-1], c.Profiles[idx:]...)
	if idx-1 < len(c.ProfileVolumes) {
		c.ProfileVolumes = append(c.ProfileVolumes[:idx-1], c.ProfileVolumes[idx:]...)
	}
	if idx-1 < len(c.ProfileFavplay) {
		c.ProfileFavplay = append(c.ProfileFavplay[:idx-1], c.ProfileFavplay[idx:]...)
	}
	if c.Active > idx {
		c.Active--
	}
	return nil
}
