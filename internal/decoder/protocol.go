package decoder

import (
	"fmt"
	"strconv"
	"strings"
)

// EventCode identifies which status line a decoder emitted — spec.md
// §4.6's status-line table.
type EventCode byte

const (
	EventReady    EventCode = 'R' // decoder ready
	EventInfo     EventCode = 'I' // ID3 or ICY info
	EventFrame    EventCode = 'F' // frame progress
	EventPlay     EventCode = 'P' // stopped/paused/playing
	EventSeek     EventCode = 'S' // ignored or logged
	EventJump     EventCode = 'J'
	EventVolume   EventCode = 'V'
	EventTime     EventCode = 'T'
	EventFatal    EventCode = 'E' // fatal — force reader restart
)

// PlayState is the @P payload: stopped/paused/playing.
type PlayState int

const (
	PlayStopped PlayState = 0
	PlayPaused  PlayState = 1
	PlayPlaying PlayState = 2
)

// Event is a single parsed decoder status line — the tagged-event
// representation the §9 REDESIGN FLAGS calls for in place of ad hoc
// string scanning of "@I"/"@F"/"@P" at each call site.
type Event struct {
	Code EventCode
	Raw  string

	// @F frame progress
	In, Remaining float64

	// @P play state
	State PlayState

	// @I info line — raw payload, split by caller into ICY-NAME / StreamTitle
	Info string

	// @E fatal error text
	Err string
}

// ParseLine parses one newline-stripped decoder status line of the form
// "@<code> <payload>". Lines not starting with '@' are treated as plain
// log chatter and rejected.
func ParseLine(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 2 || line[0] != '@' {
		return Event{}, fmt.Errorf("decoder: not a status line: %q", line)
	}
	code := EventCode(line[1])
	rest := strings.TrimSpace(line[2:])
	ev := Event{Code: code, Raw: rest}

	switch code {
	case EventFrame:
		in, rem, err := parseFrameProgress(rest)
		if err != nil {
			return Event{}, fmt.Errorf("decoder: bad @F line %q: %w", line, err)
		}
		ev.In, ev.Remaining = in, rem

	case EventPlay:
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return Event{}, fmt.Errorf("decoder: bad @P line %q: %w", line, err)
		}
		ev.State = PlayState(n)

	case EventInfo:
		ev.Info = rest

	case EventFatal:
		ev.Err = rest
	}

	return ev, nil
}

// parseFrameProgress parses "<in> rem <rem>" or "in=<in> rem=<rem>" style
// @F payloads into (in, remaining) seconds. The decoder driver is
// tolerant of either a bare "<in> <rem>" or a "key=value" rendering,
// since the upstream decoder's exact field separators are not itself
// part of this module's scope — only the two numbers matter.
func parseFrameProgress(payload string) (in, rem float64, err error) {
	fields := strings.Fields(payload)
	var nums []float64
	for _, f := range fields {
		f = strings.TrimPrefix(f, "in=")
		f = strings.TrimPrefix(f, "rem=")
		v, convErr := strconv.ParseFloat(f, 64)
		if convErr != nil {
			continue
		}
		nums = append(nums, v)
	}
	if len(nums) < 2 {
		return 0, 0, fmt.Errorf("expected 2 numeric fields, got %d in %q", len(nums), payload)
	}
	return nums[0], nums[1], nil
}

// Percent computes the §4.6 "percent = 100·in/(in+rem)" progress value.
func (e Event) Percent() float64 {
	total := e.In + e.Remaining
	if total <= 0 {
		return 0
	}
	return 100 * e.In / total
}

// ParseStreamTitle splits an ICY "StreamTitle='Artist - Title'" payload
// on " - " into artist/title, per spec.md §4.6.
func ParseStreamTitle(payload string) (artist, title string, ok bool) {
	const prefix = "StreamTitle='"
	i := strings.Index(payload, prefix)
	if i < 0 {
		return "", "", false
	}
	rest := payload[i+len(prefix):]
	end := strings.IndexByte(rest, '\'')
	if end < 0 {
		return "", "", false
	}
	value := rest[:end]
	if parts := strings.SplitN(value, " - ", 2); len(parts) == 2 {
		return parts[0], parts[1], true
	}
	return "", value, true
}

// ParseICYName extracts the "ICY-NAME:" field from an @I payload.
func ParseICYName(payload string) (name string, ok bool) {
	const prefix = "ICY-NAME:"
	i := strings.Index(payload, prefix)
	if i < 0 {
		return "", false
	}
	name = strings.TrimSpace(payload[i+len(prefix):])
	if end := strings.IndexAny(name, "\r\n"); end >= 0 {
		name = name[:end]
	}
	return name, name != ""
}
