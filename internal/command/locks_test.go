package command

import "testing"

func TestAsyncLockTryAcquireExcludesSecondCaller(t *testing.T) {
	l := NewAsyncLock()
	if !l.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if l.TryAcquire() {
		t.Fatal("second TryAcquire should fail while held")
	}
	l.Release()
	if !l.TryAcquire() {
		t.Fatal("TryAcquire should succeed after Release")
	}
}

func TestClientLockPinsAndReleases(t *testing.T) {
	l := NewClientLock()
	if !l.TrySetCurClient(7) {
		t.Fatal("TrySetCurClient should succeed when unheld")
	}
	if l.TrySetCurClient(8) {
		t.Fatal("TrySetCurClient should fail while another client holds it")
	}
	if !l.VisibleTo(7) {
		t.Error("holder should see output")
	}
	if l.VisibleTo(8) {
		t.Error("non-holder should not see output while pinned")
	}
	l.UnlockClient(7)
	if l.CurClient() != -1 {
		t.Errorf("CurClient() = %d, want -1 after unlock", l.CurClient())
	}
	if !l.VisibleTo(8) {
		t.Error("everyone should see output once unpinned")
	}
}

func TestClientLockUnlockIgnoresNonHolder(t *testing.T) {
	l := NewClientLock()
	l.TrySetCurClient(1)
	l.UnlockClient(2)
	if l.CurClient() != 1 {
		t.Error("UnlockClient from a non-holder must not release the lock")
	}
}

func TestMessageRingReadOnlyNewMessages(t *testing.T) {
	m := NewMessageRing()
	m.Write(-1, "first")
	cursor := m.NewCursor()
	m.Write(-1, "second")
	m.Write(-1, "third")

	msgs, _ := m.Read(cursor, -1, nil)
	if len(msgs) != 2 || msgs[0] != "second" || msgs[1] != "third" {
		t.Errorf("Read() = %v, want [second third]", msgs)
	}
}

func TestMessageRingOverflowSkipsToOldestRetained(t *testing.T) {
	m := NewMessageRing()
	cursor := m.NewCursor()
	for i := 0; i < messageRingCapacity+10; i++ {
		m.Write(-1, "msg")
	}
	msgs, _ := m.Read(cursor, -1, nil)
	if len(msgs) != messageRingCapacity {
		t.Errorf("len(msgs) = %d, want %d", len(msgs), messageRingCapacity)
	}
}

func TestPasswordGateChecksBcryptHash(t *testing.T) {
	g, err := NewPasswordGate("s3cret")
	if err != nil {
		t.Fatalf("NewPasswordGate: %v", err)
	}
	if !g.Check("127.0.0.1", "s3cret") {
		t.Error("correct password should match")
	}
	if g.Check("127.0.0.2", "wrong") {
		t.Error("wrong password should not match")
	}
}
