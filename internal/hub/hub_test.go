package hub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"bonvoyage/internal/queue"
)

type gaugeMetrics struct{ last chan int }

func (m gaugeMetrics) SetWSClients(n int) { m.last <- n }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.Send:
		return data
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return nil
	}
}

func TestHubRoutesEventsByRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := gaugeMetrics{last: make(chan int, 8)}
	h := NewHub(m, testLogger())
	go h.Run(ctx)

	a := NewClient("a", "req-1", 4)
	b := NewClient("b", "req-2", 4)
	h.Register(a)
	h.Register(b)
	<-m.last
	if n := <-m.last; n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}

	q := queue.NewLocal(1, time.Millisecond, nil, testLogger())
	defer q.Close()
	unsubscribe, err := h.Attach(q)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	q.Broadcast(queue.SubjectEvents("req-1"), []byte(`{"type":"partial"}`))
	if got := string(receive(t, a)); got != `{"type":"partial"}` {
		t.Errorf("unexpected event %s", got)
	}

	q.Broadcast(queue.SubjectEvents("req-2"), []byte(`{"type":"final"}`))
	if got := string(receive(t, b)); got != `{"type":"final"}` {
		t.Errorf("unexpected event %s", got)
	}
	select {
	case data := <-a.Send:
		t.Errorf("client a received another request's event %s", data)
	default:
	}

	h.Unregister(a)
	if n := <-m.last; n != 1 {
		t.Errorf("expected 1 client after unregister, got %d", n)
	}
	if _, ok := <-a.Send; ok {
		t.Error("expected send channel closed after unregister")
	}
}

func TestHubIgnoresForeignSubjects(t *testing.T) {
	h := NewHub(nil, testLogger())
	h.OnEvent("journey.tasks.join", []byte("{}"))
	if len(h.broadcast) != 0 {
		t.Error("expected non-event subject to be ignored")
	}
}

func TestHubCallsReturnAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil, testLogger())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	live := NewClient("live", "req-1", 1)
	h.Register(live)
	cancel()
	<-stopped

	// more callers than the register and unregister buffers hold
	finished := make(chan struct{})
	late := make([]*Client, 40)
	go func() {
		defer close(finished)
		h.Unregister(live)
		for i := range late {
			late[i] = NewClient("late", "req-1", 1)
			h.Register(late[i])
			h.Unregister(late[i])
		}
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("register and unregister blocked after the hub stopped")
	}
	for _, c := range append(late, live) {
		if _, ok := <-c.Send; ok {
			t.Errorf("expected send channel of %s closed", c.ID)
		}
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("expected no clients after stop, got %d", n)
	}
}
