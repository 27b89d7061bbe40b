package audio

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/foxbow/mixplay/internal/config"
)

// installFakeAmixer drops a shell script named amixer on PATH, standing
// in for the real binary the same way decoder_test.go's fakeDecoderScript
// stands in for mpg123.
func installFakeAmixer(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("amixer fake requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "amixer")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func TestMixerGetParsesPercent(t *testing.T) {
	installFakeAmixer(t, `echo "Simple mixer control 'Master',0"
echo "  Playback channels: Front Left - Front Right"
echo "  Limits: Playback 0 - 65536"
echo "  Front Left: Playback 45000 [68%] [on]"
`)
	m := New("Master")
	if got := m.Get(); got != 68 {
		t.Errorf("Get() = %d, want 68", got)
	}
}

func TestMixerGetReportsMutedFromHardwareSwitch(t *testing.T) {
	installFakeAmixer(t, `echo "Front Left: Playback 0 [0%] [off]"`)
	m := New("Master")
	if got := m.Get(); got != config.VolumeMuted {
		t.Errorf("Get() = %d, want config.VolumeMuted", got)
	}
}

func TestMixerGetReportsNoAudioWhenAmixerFails(t *testing.T) {
	installFakeAmixer(t, `echo "no such control" >&2
exit 1
`)
	m := New("Master")
	if got := m.Get(); got != config.VolumeNoAudio {
		t.Errorf("Get() = %d, want config.VolumeNoAudio", got)
	}
}

func TestMixerSetRejectsOutOfRange(t *testing.T) {
	m := New("Master")
	if err := m.Set(150); err == nil {
		t.Error("Set(150) should reject an out-of-range value")
	}
	if err := m.Set(-1); err == nil {
		t.Error("Set(-1) should reject an out-of-range value")
	}
}

func TestMixerSetAndMuteInvokeAmixer(t *testing.T) {
	installFakeAmixer(t, `exit 0`)
	m := New("Master")
	if err := m.Set(50); err != nil {
		t.Errorf("Set: %v", err)
	}
	if err := m.Mute(true); err != nil {
		t.Errorf("Mute(true): %v", err)
	}
	if err := m.LineOut(); err != nil {
		t.Errorf("LineOut: %v", err)
	}
}
