package command

import "testing"

func TestPostThenNextRoundTrips(t *testing.T) {
	r := NewRegister()
	req := Request{Cmd: CmdNext, ClientID: 3}
	if err := r.Post(req, StatusPlay); err != nil {
		t.Fatalf("Post: %v", err)
	}
	got := r.Next()
	if got != req {
		t.Errorf("Next() = %+v, want %+v", got, req)
	}
}

func TestPostReturnsErrBusyWhenSlotOccupied(t *testing.T) {
	r := NewRegister()
	if err := r.Post(Request{Cmd: CmdNext}, StatusPlay); err != nil {
		t.Fatalf("first Post: %v", err)
	}
	if err := r.Post(Request{Cmd: CmdStop}, StatusPlay); err != ErrBusy {
		t.Fatalf("second Post = %v, want ErrBusy", err)
	}
}

func TestPostDropsIdleCommand(t *testing.T) {
	r := NewRegister()
	if err := r.Post(Request{Cmd: CmdIdle}, StatusPlay); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if _, ok := r.TryNext(); ok {
		t.Error("idle command should never reach the register")
	}
}

func TestPostDropsWhenStatusQuitOrReset(t *testing.T) {
	r := NewRegister()
	if err := r.Post(Request{Cmd: CmdNext}, StatusQuit); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if _, ok := r.TryNext(); ok {
		t.Error("command posted while quitting should be dropped")
	}

	if err := r.Post(Request{Cmd: CmdNext}, StatusReset); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if _, ok := r.TryNext(); ok {
		t.Error("command posted while resetting should be dropped")
	}
}

func TestPostDropsResetCommandItself(t *testing.T) {
	r := NewRegister()
	if err := r.Post(Request{Cmd: CmdReset}, StatusPlay); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if _, ok := r.TryNext(); ok {
		t.Error("reset is handled out-of-band, never queued")
	}
}

func TestCodeModifiers(t *testing.T) {
	c := CmdDNP | ModArtist
	if c.Base() != CmdDNP {
		t.Errorf("Base() = %v, want CmdDNP", c.Base())
	}
	rc, ok := c.RangeCode()
	if !ok || rc != 'a' {
		t.Errorf("RangeCode() = %q, %v, want 'a', true", rc, ok)
	}
	if c.Op() != '=' {
		t.Errorf("Op() = %q, want '='", c.Op())
	}

	search := CmdSearch | ModTitle | ModDisplay | ModFuzzy
	if search.Base() != CmdSearch {
		t.Errorf("Base() = %v, want CmdSearch", search.Base())
	}
	if search.Op() != '*' {
		t.Error("fuzzy modifier should select '*' operator")
	}
}

func TestPasswordGatedAndAsyncOnlyCommands(t *testing.T) {
	if !CmdQuit.PasswordGated() || !CmdDBClean.PasswordGated() || !CmdDoublets.PasswordGated() || !CmdDBInfo.PasswordGated() {
		t.Error("quit/dbclean/doublets/dbinfo must be password-gated")
	}
	if CmdNext.PasswordGated() {
		t.Error("next must not be password-gated")
	}
	if !CmdProfile.AsyncOnly() || !CmdDBClean.AsyncOnly() {
		t.Error("profile/dbclean must be async-only")
	}
	if CmdNext.AsyncOnly() {
		t.Error("next must not be async-only")
	}
}
