package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/overlayshell/internal/broadcast"
	"github.com/1broseidon/overlayshell/internal/clock"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeController) SetSurfaceInputTransparent(id string, transparent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s=%v", id, transparent))
	return nil
}

func (f *fakeController) BringSurfaceToFront(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id+":front")
	return nil
}

func (f *fakeController) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// syncBuffer is an io.Writer safe for the transport goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) outputs(t *testing.T) []Output {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Output
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var o Output
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			t.Fatalf("bad output line %q: %v", line, err)
		}
		out = append(out, o)
	}
	return out
}

type fixture struct {
	s    *Sidecar
	out  *syncBuffer
	ctrl *fakeController
	clk  *clock.FakeClock
	hub  *broadcast.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		out:  &syncBuffer{},
		ctrl: &fakeController{},
		clk:  clock.Fake(time.Unix(0, 0)),
		hub:  broadcast.NewHub(nil),
	}
	tr := broadcast.NewLocalTransport(f.hub, "overlay-1", nil)
	t.Cleanup(tr.Close)
	f.s = New(Config{
		SurfaceID:  "overlay-1",
		Transport:  tr,
		Controller: f.ctrl,
		Clock:      f.clk,
	}, f.out)
	t.Cleanup(f.s.Close)
	return f
}

func (f *fixture) handle(t *testing.T, line string) {
	t.Helper()
	if err := f.s.Handle(json.RawMessage(line)); err != nil {
		t.Fatalf("Handle(%s): %v", line, err)
	}
}

func TestSidecar_HoverDrivesTransparency(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `{"op":"register","id":"menu"}`)
	f.handle(t, `{"op":"hover","id":"menu","inside":true}`)
	f.handle(t, `{"op":"move","id":"menu"}`)
	f.handle(t, `{"op":"hover","id":"menu","inside":false}`)

	if got := f.ctrl.snapshot(); !reflect.DeepEqual(got, []string{"overlay-1=false"}) {
		t.Fatalf("calls before debounce = %v", got)
	}
	f.clk.Advance(50 * time.Millisecond)
	if got := f.ctrl.snapshot(); !reflect.DeepEqual(got, []string{"overlay-1=false", "overlay-1=true"}) {
		t.Fatalf("calls after debounce = %v", got)
	}

	var kinds []string
	for _, o := range f.out.outputs(t) {
		kinds = append(kinds, o.Event+":"+o.ID)
	}
	want := []string{"enter:menu", "move:menu", "leave:menu"}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("outputs = %v, want %v", kinds, want)
	}
}

func TestSidecar_ManualCapturerLeavesTransparencyAlone(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `{"op":"register","id":"menu","manual":true}`)
	f.handle(t, `{"op":"hover","id":"menu","inside":true}`)
	f.handle(t, `{"op":"unregister","id":"menu"}`)

	if got := f.ctrl.snapshot(); len(got) != 0 {
		t.Fatalf("calls = %v, want none for a manual capturer", got)
	}
	outs := f.out.outputs(t)
	if len(outs) != 2 || outs[0].Event != EventEnter || outs[1].Event != EventLeave {
		t.Fatalf("outputs = %+v, want enter then immediate leave on unregister", outs)
	}
}

func TestSidecar_EmitAndSubscribe(t *testing.T) {
	f := newFixture(t)
	peer := broadcast.NewLocalTransport(f.hub, "peer", nil)
	t.Cleanup(peer.Close)
	peerGot := make(chan broadcast.Message, 4)
	peer.Listen(func(m broadcast.Message) { peerGot <- m })

	f.handle(t, `{"op":"subscribe","name":"theme"}`)
	f.handle(t, `{"op":"emit","name":"theme","data":{"dark":true}}`)

	select {
	case m := <-peerGot:
		if m.Name != "theme" || m.Origin != "overlay-1" || string(m.Data) != `{"dark":true}` {
			t.Fatalf("peer got %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive the emitted broadcast")
	}

	// The sender hears its own broadcast.
	deadline := time.Now().Add(2 * time.Second)
	for {
		outs := f.out.outputs(t)
		if len(outs) == 1 {
			if outs[0].Event != EventBroadcast || outs[0].Name != "theme" || outs[0].Origin != "overlay-1" {
				t.Fatalf("output = %+v", outs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("outputs = %+v, want the echoed broadcast", outs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSidecar_ControlCommands(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `{"op":"set_transparent","value":false}`)
	f.handle(t, `{"op":"front"}`)
	want := []string{"overlay-1=false", "overlay-1:front"}
	if got := f.ctrl.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestSidecar_HandleRejects(t *testing.T) {
	f := newFixture(t)
	tests := []string{
		`{"op":"teleport"}`,
		`{"op":"register"}`,
		`{"op":"emit"}`,
		`{"op":"subscribe"}`,
		`{"op":"set_transparent"}`,
		`[1,2]`,
	}
	for _, line := range tests {
		if err := f.s.Handle(json.RawMessage(line)); err == nil {
			t.Errorf("Handle(%s) = nil, want error", line)
		}
	}
}

func TestSidecar_RunReportsErrorsAndStopsAtEOF(t *testing.T) {
	f := newFixture(t)
	in := strings.NewReader("{\"op\":\"front\"}\nnot json\n{\"op\":\"teleport\"}\n{\"op\":\"fr")

	if err := f.s.Run(context.Background(), in); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := f.ctrl.snapshot(); !reflect.DeepEqual(got, []string{"overlay-1:front"}) {
		t.Fatalf("calls = %v", got)
	}
	var errs int
	for _, o := range f.out.outputs(t) {
		if o.Event == EventError {
			errs++
		}
	}
	// malformed line, unknown op, truncated tail
	if errs != 3 {
		t.Fatalf("error outputs = %d, want 3", errs)
	}
}
