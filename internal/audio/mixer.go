// Package audio controls the system mixer as the black-box
// get/set/mute-over-a-named-channel collaborator named in spec.md §1 —
// C10. mixplay never links against ALSA directly (the original's
// mpalsa.c does, via libasound); instead it shells out to the `amixer`
// CLI, in the same child-process idiom internal/ffmpeg uses for its
// encoder, so the mixer stays an external black box rather than a cgo
// dependency.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/foxbow/mixplay/internal/config"
)

const mixerTimeout = 2 * time.Second

var percentPattern = regexp.MustCompile(`\[(\d+)%\]`)
var switchPattern = regexp.MustCompile(`\[(on|off)\]`)

// Mixer adjusts a single named playback channel (e.g. "Master") through
// amixer. A zero Mixer is unusable; construct with New.
type Mixer struct {
	channel string
}

// New returns a Mixer bound to the given ALSA simple-mixer channel name,
// mirroring mpalsa.c's per-profile config->channel.
func New(channel string) *Mixer {
	return &Mixer{channel: channel}
}

// run shells out to amixer exactly as ffmpeg.Encoder shells out to
// ffmpeg: CommandContext, captured stdout, logged stderr.
func (m *Mixer) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mixerTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "amixer", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		slog.Debug("amixer", "args", args, "stderr", errBuf.String())
		return "", fmt.Errorf("audio: amixer %v: %w", args, err)
	}
	return out.String(), nil
}

// Get returns the channel's current volume as 0..100, or
// config.VolumeNoAudio if the mixer can't be reached — mpalsa.c's
// openAudio failure path returns NOAUDIO rather than aborting playback.
// A hardware mute switch reports config.VolumeMuted, matching
// controlVolume's "if audio is muted, don't change a thing" branch.
func (m *Mixer) Get() int {
	out, err := m.run("sget", m.channel)
	if err != nil {
		return config.VolumeNoAudio
	}
	if sw := switchPattern.FindStringSubmatch(out); sw != nil && sw[1] == "off" {
		return config.VolumeMuted
	}
	match := percentPattern.FindStringSubmatch(out)
	if match == nil {
		return config.VolumeNoAudio
	}
	v, err := strconv.Atoi(match[1])
	if err != nil {
		return config.VolumeNoAudio
	}
	return v
}

// Set adjusts the channel to an absolute 0..100 value. Sentinel values
// (VolumeMuted, VolumeAutoMute, VolumeNoAudio, VolumeLineOut) are never
// passed here — internal/player clips to the real range before calling
// Set and handles sentinels itself, the same split mpalsa.c's
// controlVolume makes between its own MUTED/LINEOUT bookkeeping and the
// ALSA calls.
func (m *Mixer) Set(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("audio: volume %d out of range", v)
	}
	_, err := m.run("sset", m.channel, fmt.Sprintf("%d%%", v))
	return err
}

// Mute toggles the channel's hardware playback switch rather than
// driving the level to zero, matching the original's distinction
// between MUTED (software sentinel remembering the prior level) and an
// actual ALSA mute switch.
func (m *Mixer) Mute(on bool) error {
	state := "unmute"
	if on {
		state = "mute"
	}
	_, err := m.run("sset", m.channel, state)
	return err
}

// LineOut drives the channel to maximum, matching controlVolume's
// lineout branch (snd_mixer_selem_set_playback_volume_all(_elem, max)):
// a line-out connection ignores the configured volume entirely.
func (m *Mixer) LineOut() error {
	return m.Set(100)
}
