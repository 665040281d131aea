package web

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func receiveEvent(t *testing.T, ch <-chan string) StatusEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal %q: %v", msg, err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return StatusEvent{}
	}
}

func TestBroadcaster_SubscribeAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "hello")

	evt := receiveEvent(t, ch)
	if evt.Msg != "hello" || evt.Level != "info" {
		t.Errorf("event = %+v, want info/hello", evt)
	}
	if evt.Time == "" {
		t.Error("event should carry a timestamp")
	}
}

func TestBroadcaster_FixedClock(t *testing.T) {
	b := NewStatusBroadcaster()
	b.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Broadcast("info", "x")
	if got := receiveEvent(t, ch).Time; got != "2026-10-18T12:00:00Z" {
		t.Errorf("time = %q", got)
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStatusBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	if b.Clients() != 2 {
		t.Fatalf("clients = %d, want 2", b.Clients())
	}

	b.Publish(StatusEvent{Kind: "saved", Seq: 4, Msg: "multi"})

	for i, ch := range []<-chan string{ch1, ch2} {
		evt := receiveEvent(t, ch)
		if evt.Kind != "saved" || evt.Seq != 4 {
			t.Errorf("subscriber %d: event = %+v", i, evt)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()
	unsub() // second call is a no-op

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if b.Clients() != 0 {
		t.Errorf("clients = %d, want 0", b.Clients())
	}

	// Publishing with no subscribers must not panic.
	b.Broadcast("info", "after unsub")
}

func TestBroadcaster_FullChannelDropsMessage(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer; i++ {
		b.Broadcast("info", "fill")
	}
	b.Broadcast("info", "overflow") // dropped, must not block

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}
	if count != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", count, subscriberBuffer)
	}
}

func TestBroadcastWriter_Write(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	in := "  [lifelog] trimmed message  \n"
	n, err := BroadcastWriter(b).Write([]byte(in))
	if err != nil || n != len(in) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if evt := receiveEvent(t, ch); evt.Msg != "[lifelog] trimmed message" {
		t.Errorf("msg = %q", evt.Msg)
	}
}

func TestBroadcastWriter_EmptyWriteIgnored(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	BroadcastWriter(b).Write([]byte("   \n"))

	select {
	case <-ch:
		t.Error("expected no message for whitespace-only write")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventReporter(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()
	r := EventReporter{B: b}

	r.CaptureFailed(1, errors.New("capture: lens cap"))
	r.SaveSkipped(2)
	r.SaveFailed(3, errors.New("save write: disk full"))
	r.Saved(4, "/snap/2026-10-18/120000.000_abcd1234.jpg")

	want := []struct {
		kind  string
		level string
		seq   uint64
	}{
		{"capture_failed", "error", 1},
		{"save_skipped", "info", 2},
		{"save_failed", "error", 3},
		{"saved", "info", 4},
	}
	for _, w := range want {
		evt := receiveEvent(t, ch)
		if evt.Kind != w.kind || evt.Level != w.level || evt.Seq != w.seq {
			t.Errorf("event = %+v, want %s/%s/#%d", evt, w.kind, w.level, w.seq)
		}
		if w.kind == "saved" && evt.Path == "" {
			t.Error("saved event should carry the path")
		}
	}
}
