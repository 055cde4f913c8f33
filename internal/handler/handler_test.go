package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"bonvoyage/internal/broker"
	"bonvoyage/internal/dispatch"
	"bonvoyage/internal/domain"
	"bonvoyage/internal/hub"
	"bonvoyage/internal/queue"
	"bonvoyage/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type unavailableStore struct{ *store.MemoryStore }

func (unavailableStore) SaveRequestContext(context.Context, domain.RequestContext) error {
	return errors.New("connection refused")
}

func (unavailableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

type testServer struct {
	*httptest.Server
	store *store.MemoryStore
	hub   *hub.Hub
}

func newTestServer(t *testing.T, st store.Store) *testServer {
	t.Helper()
	logger := testLogger()

	q := queue.NewLocal(1, time.Millisecond, nil, logger)
	t.Cleanup(q.Close)

	d := dispatch.New(st, q, dispatch.Options{Providers: []string{"car", "ferry"}, JoinTimeout: time.Minute}, logger)
	results := broker.NewResults(st, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(nil, logger)
	go h.Run(ctx)

	mux := NewMux(Routes{
		HTTP:   NewHTTPHandler(d, results, logger),
		WS:     NewWSHandler(h, results, logger),
		Health: NewHealthHandler(st),
	}, logger)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ts := &testServer{Server: srv, hub: h}
	if mem, ok := st.(*store.MemoryStore); ok {
		ts.store = mem
	}
	return ts
}

func (ts *testServer) post(t *testing.T, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/journeys", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp, decodeBody(t, resp)
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return out
}

const validBody = `{"origin":"48.85,2.35","destination":"45.76,4.83","start_time":1700000000,"passenger_count":2}`

func TestJourneyLifecycle(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore())

	resp, body := ts.post(t, validBody)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", resp.StatusCode, body)
	}
	id, _ := body["request_id"].(string)
	if id == "" || resp.Header.Get("Location") != "/v1/journeys/"+id {
		t.Fatalf("unexpected dispatch response %v, location %q", body, resp.Header.Get("Location"))
	}

	resp, body = ts.get(t, "/v1/journeys/"+id)
	if resp.StatusCode != http.StatusAccepted || body["status"] != "pending" {
		t.Errorf("expected pending, got %d %v", resp.StatusCode, body)
	}

	resp, body = ts.get(t, "/v1/journeys/"+id+"/partial")
	if resp.StatusCode != http.StatusOK || body["complete"] != false {
		t.Errorf("expected incomplete partial result, got %d %v", resp.StatusCode, body)
	}

	ts.store.PublishFinal(context.Background(), id, []domain.Journey{})
	resp, body = ts.get(t, "/v1/journeys/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	journeys, ok := body["journeys"].([]any)
	if !ok || len(journeys) != 0 {
		t.Errorf("expected empty journey list, got %v", body["journeys"])
	}
	params, _ := body["params"].(map[string]any)
	if params["passenger_count"] != float64(2) {
		t.Errorf("expected request params echoed, got %v", params)
	}
}

func TestCreateJourneyRejectsInvalidInput(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore())

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"garbage", `{`, "invalid request body"},
		{"bad origin", `{"origin":"north","destination":"45.76,4.83","start_time":1}`, "origin"},
		{"latitude out of range", `{"origin":"48.85,2.35","destination":"95,4.83","start_time":1}`, "destination"},
		{"missing start", `{"origin":"48.85,2.35","destination":"45.76,4.83"}`, "start_time"},
		{"negative passenger count", `{"origin":"48.85,2.35","destination":"45.76,4.83","start_time":1,"passenger_count":-1}`, "passenger_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.post(t, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			msg, _ := body["error"].(string)
			if !strings.Contains(msg, tt.field) {
				t.Errorf("expected error to mention %q, got %q", tt.field, msg)
			}
		})
	}
}

func TestUnknownAndUnavailable(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore())
	for _, path := range []string{"/v1/journeys/nope", "/v1/journeys/nope/partial", "/v1/journeys/nope/ws"} {
		if resp, _ := ts.get(t, path); resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}

	down := newTestServer(t, unavailableStore{store.NewMemoryStore()})
	if resp, _ := down.post(t, validBody); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when the store is down, got %d", resp.StatusCode)
	}
	if resp, body := down.get(t, "/readyz"); resp.StatusCode != http.StatusServiceUnavailable || body["ready"] != false {
		t.Errorf("expected not ready, got %d %v", resp.StatusCode, body)
	}
}

func TestProvidersAndHealth(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore())

	resp, body := ts.get(t, "/v1/providers")
	providers, _ := body["providers"].([]any)
	if resp.StatusCode != http.StatusOK || len(providers) != 2 || providers[0] != "car" {
		t.Errorf("unexpected providers %d %v", resp.StatusCode, body)
	}

	if resp, body := ts.get(t, "/readyz"); resp.StatusCode != http.StatusOK || body["ready"] != true {
		t.Errorf("expected ready, got %d %v", resp.StatusCode, body)
	}

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from healthz, got %d", resp.StatusCode)
	}
}

func TestWebsocketStreamsUntilFinal(t *testing.T) {
	ts := newTestServer(t, store.NewMemoryStore())
	_, body := ts.post(t, validBody)
	id := body["request_id"].(string)
	ts.store.Append(context.Background(), id, domain.NewErrorEntry("ferry", errors.New("no port"), time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/journeys/" + id + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap SnapshotMessage
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Type != "snapshot" || len(snap.Payload.Partial) != 1 || snap.Payload.Complete {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	for ts.hub.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	final, _ := json.Marshal(domain.Event{Type: domain.EventFinal, RequestID: id, Journeys: 0, At: time.Now()})
	ts.hub.OnEvent(queue.SubjectEvents(id), final)

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if !isFinal(data) {
		t.Errorf("expected final event, got %s", data)
	}

	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("expected normal closure after final, got %v", err)
	}
}
