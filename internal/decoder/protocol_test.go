package decoder

import "testing"

func TestParseLineFrameProgress(t *testing.T) {
	ev, err := ParseLine("@F in=236.2 rem=3.8")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if ev.Code != EventFrame {
		t.Fatalf("Code = %v, want EventFrame", ev.Code)
	}
	if ev.In != 236.2 || ev.Remaining != 3.8 {
		t.Errorf("In/Remaining = %v/%v, want 236.2/3.8", ev.In, ev.Remaining)
	}
	if pct := ev.Percent(); pct <= 0 || pct >= 100 {
		t.Errorf("Percent() = %v, want in (0,100)", pct)
	}
}

func TestParseLinePlayState(t *testing.T) {
	ev, err := ParseLine("@P 2")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if ev.State != PlayPlaying {
		t.Errorf("State = %v, want PlayPlaying", ev.State)
	}
}

func TestParseLineRejectsNonStatusLine(t *testing.T) {
	if _, err := ParseLine("just some log chatter"); err == nil {
		t.Error("expected error for a non-'@' line")
	}
}

func TestParseStreamTitleSplitsArtistAndTitle(t *testing.T) {
	artist, title, ok := ParseStreamTitle(`StreamTitle='Daft Punk - One More Time'`)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if artist != "Daft Punk" || title != "One More Time" {
		t.Errorf("got %q / %q", artist, title)
	}
}

func TestParseStreamTitleNoSeparatorKeepsWholeAsTitle(t *testing.T) {
	_, title, ok := ParseStreamTitle(`StreamTitle='Just A Title'`)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if title != "Just A Title" {
		t.Errorf("title = %q", title)
	}
}

func TestParseICYName(t *testing.T) {
	name, ok := ParseICYName("ICY-NAME:Radio Foo\r\nICY-GENRE:Electronic")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if name != "Radio Foo" {
		t.Errorf("name = %q, want %q", name, "Radio Foo")
	}
}

func TestParseLineFatal(t *testing.T) {
	ev, err := ParseLine("@E decoder crashed")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if ev.Code != EventFatal || ev.Err != "decoder crashed" {
		t.Errorf("got %+v", ev)
	}
}
