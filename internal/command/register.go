package command

import (
	"errors"
)

// Status mirrors the reader's state machine values that gate command
// acceptance — spec.md §4.7's status set plus the command-plane's own
// idle/reset/quit checks.
type Status int

const (
	StatusIdle Status = iota
	StatusStart
	StatusPlay
	StatusPause
	StatusStop
	StatusReset
	StatusQuit
)

// Request is one posted command, carrying an optional string argument
// (a search term, a password, a profile name) and the requesting
// client's id for exclusive-client pinning. RemoteIP, when set by an
// HTTP handler, is the rate-limiting key PasswordGate.Check expects;
// callers without a real network peer (tests, internal posts) leave it
// empty and the gate falls back to the client id.
type Request struct {
	Cmd      Code
	Arg      string
	HasArg   bool
	ClientID int
	RemoteIP string
}

// ErrBusy is returned by Post when the single-slot register already
// holds a pending command — the caller (an HTTP handler) should retry
// or report "player is busy", per spec.md §4.8.
var ErrBusy = errors.New("command: register busy")

// Register is the command plane's single-slot register. spec.md §9's
// REDESIGN FLAGS calls for replacing the original mutex + condition
// variable pair with a channel of capacity 1: Post is a non-blocking
// send (full channel means "busy", mirroring the original's "wait on
// _pcmdcond while pending" but made explicit rather than blocking
// indefinitely), and the reader's Next() is the sole consumer.
type Register struct {
	ch chan Request
}

// NewRegister returns an empty command register.
func NewRegister() *Register {
	return &Register{ch: make(chan Request, 1)}
}

// Post implements spec.md §4.8 setCommand(cmd, arg):
//  1. cmd == idle, or status is quit/reset, is dropped silently.
//  2. cmd == reset is never queued and is dropped like idle; nothing
//     bumps the watchdog in response to it.
//  3. Otherwise the command is enqueued, or ErrBusy if one is already
//     pending.
func (r *Register) Post(req Request, status Status) error {
	if req.Cmd.Base() == CmdIdle {
		return nil
	}
	if status == StatusQuit || status == StatusReset {
		return nil
	}
	if req.Cmd.Base() == CmdReset {
		return nil
	}
	select {
	case r.ch <- req:
		return nil
	default:
		return ErrBusy
	}
}

// Next blocks until a command is posted, returning it to the reader —
// spec.md §4.8's "reader consumer: at each tick reads command, executes,
// clears to idle". Channel receive is itself the "clear to idle" step:
// the slot is empty again the instant Next returns.
func (r *Register) Next() Request {
	return <-r.ch
}

// TryNext returns the pending command without blocking, or
// (Request{}, false) if none is queued — used by the reader's
// select-driven tick loop (spec.md §5's "select ... with 1 s timeout").
func (r *Register) TryNext() (Request, bool) {
	select {
	case req := <-r.ch:
		return req, true
	default:
		return Request{}, false
	}
}

// Chan exposes the underlying channel for direct use in a select
// statement alongside decoder events and ticks.
func (r *Register) Chan() <-chan Request {
	return r.ch
}
