package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/1broseidon/overlayshell/internal/events"
)

type goneSink struct{}

func (goneSink) Deliver(Message) error { return ErrGone }

type recordingSink struct{ got []Message }

func (s *recordingSink) Deliver(m Message) error {
	s.got = append(s.got, m)
	return nil
}

func receive(t *testing.T, ch <-chan events.Broadcast) events.Broadcast {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return events.Broadcast{}
	}
}

func TestBus_EmitReachesSelfAndPeersOnce(t *testing.T) {
	hub := NewHub(nil)

	var chans []chan events.Broadcast
	var buses []*Bus
	for _, id := range []string{"main", "overlay-1"} {
		tr := NewLocalTransport(hub, id, nil)
		t.Cleanup(tr.Close)
		bus := NewBus(BusConfig{Transport: tr, Origin: id})
		t.Cleanup(bus.Close)
		ch := make(chan events.Broadcast, 8)
		bus.On("theme.changed", func(b events.Broadcast) { ch <- b })
		chans = append(chans, ch)
		buses = append(buses, bus)
	}

	if err := buses[0].Emit("theme.changed", map[string]string{"mode": "dark"}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	for i, ch := range chans {
		b := receive(t, ch)
		if b.Origin != "main" {
			t.Fatalf("surface %d: Origin = %q, want main", i, b.Origin)
		}
		var data map[string]string
		if err := json.Unmarshal(b.Data, &data); err != nil || data["mode"] != "dark" {
			t.Fatalf("surface %d: Data = %s", i, b.Data)
		}
		select {
		case extra := <-ch:
			t.Fatalf("surface %d received a duplicate: %+v", i, extra)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestHub_SkipsGoneSurfaces(t *testing.T) {
	hub := NewHub(nil)
	live := &recordingSink{}
	hub.Attach("live", live)
	hub.Attach("dead", goneSink{})

	if n := hub.Broadcast(Message{Name: "ping"}); n != 1 {
		t.Fatalf("Broadcast() delivered %d, want 1", n)
	}
	if len(live.got) != 1 || live.got[0].Name != "ping" {
		t.Fatalf("live sink got %+v", live.got)
	}
}

func TestHub_DetachOnlyRemovesOwnSink(t *testing.T) {
	hub := NewHub(nil)
	first := &recordingSink{}
	second := &recordingSink{}

	detachFirst := hub.Attach("overlay-1", first)
	hub.Attach("overlay-1", second)
	detachFirst()

	if got := hub.Surfaces(); len(got) != 1 || got[0] != "overlay-1" {
		t.Fatalf("Surfaces() = %v, want [overlay-1]", got)
	}
	hub.Broadcast(Message{Name: "x"})
	if len(first.got) != 0 || len(second.got) != 1 {
		t.Fatalf("first got %d, second got %d, want 0 and 1", len(first.got), len(second.got))
	}
}

type evictingSink struct {
	recordingSink
	evicted int
}

func (s *evictingSink) Evict() { s.evicted++ }

func TestHub_DetachEvictsConnectionSinks(t *testing.T) {
	hub := NewHub(nil)
	conn := &evictingSink{}
	plain := &recordingSink{}
	hub.Attach("overlay-1", conn)
	hub.Attach("overlay-2", plain)

	hub.Detach("overlay-1")
	hub.Detach("overlay-2")
	hub.Detach("missing")

	if conn.evicted != 1 {
		t.Fatalf("evicted = %d, want 1", conn.evicted)
	}
	if got := hub.Surfaces(); len(got) != 0 {
		t.Fatalf("Surfaces() = %v, want none", got)
	}
}

func TestLocalTransport_ClosedIsGone(t *testing.T) {
	hub := NewHub(nil)
	tr := NewLocalTransport(hub, "overlay-2", nil)
	tr.Close()
	tr.Close()

	if err := tr.Deliver(Message{Name: "x"}); err != ErrGone {
		t.Fatalf("Deliver() after Close = %v, want ErrGone", err)
	}
	if n := hub.Broadcast(Message{Name: "x"}); n != 0 {
		t.Fatalf("Broadcast() delivered %d to a closed surface", n)
	}
}

func TestLocalTransport_FullQueueIsSkipped(t *testing.T) {
	hub := NewHub(nil)
	tr := NewLocalTransport(hub, "slow", nil)
	defer tr.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	tr.Listen(func(Message) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	if err := tr.Deliver(Message{Name: "first"}); err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}
	<-started
	for i := 0; i < LocalQueueSize; i++ {
		if err := tr.Deliver(Message{Name: "fill"}); err != nil {
			t.Fatalf("Deliver(%d) error: %v", i, err)
		}
	}
	if err := tr.Deliver(Message{Name: "overflow"}); err != ErrQueueFull {
		t.Fatalf("Deliver() on full queue = %v, want ErrQueueFull", err)
	}
	close(release)
}

func TestNewMessage(t *testing.T) {
	if _, err := NewMessage("", nil, ""); err == nil {
		t.Fatal("NewMessage accepted an empty name")
	}
	msg, err := NewMessage("n", json.RawMessage(`{"a":1}`), "main")
	if err != nil || string(msg.Data) != `{"a":1}` {
		t.Fatalf("NewMessage() = %+v, %v", msg, err)
	}
	msg, err = NewMessage("n", nil, "")
	if err != nil || msg.Data != nil {
		t.Fatalf("NewMessage(nil) = %+v, %v", msg, err)
	}
}
