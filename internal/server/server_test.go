package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jpalmerr/pulsecalc/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sseStream reads channel values from an open SSE response.
type sseStream struct {
	t       *testing.T
	scanner *bufio.Scanner
}

func openSSE(t *testing.T, url string) *sseStream {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/api/sse", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	return &sseStream{t: t, scanner: bufio.NewScanner(resp.Body)}
}

func (s *sseStream) next() store.ChannelValue {
	s.t.Helper()
	for s.scanner.Scan() {
		data, ok := strings.CutPrefix(s.scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var v store.ChannelValue
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			s.t.Fatalf("invalid event %q: %v", data, err)
		}
		return v
	}
	s.t.Fatalf("stream ended: %v", s.scanner.Err())
	return store.ChannelValue{}
}

func TestSSE_SendsSnapshotThenUpdates(t *testing.T) {
	st := store.NewMemoryStore()
	st.Update(store.ChannelValue{Name: "sum", Expression: "a+b", Connected: true, Value: 5.0})
	st.Update(store.ChannelValue{Name: "ratio", Expression: "a/b"})

	ts := httptest.NewServer(NewServer(st, 0, nil, "", nil, testLogger()).Handler())
	defer ts.Close()

	stream := openSSE(t, ts.URL)

	first := stream.next()
	if first.Name != "ratio" || first.Value != nil || first.Connected {
		t.Errorf("first event = %+v, want disconnected ratio without value", first)
	}
	second := stream.next()
	if second.Name != "sum" || second.Expression != "a+b" || second.Value != 5.0 {
		t.Errorf("second event = %+v, want sum = 5", second)
	}

	st.Update(store.ChannelValue{Name: "sum", Expression: "a+b", Connected: true, Value: 7.0})
	if got := stream.next(); got.Name != "sum" || got.Value != 7.0 {
		t.Errorf("update = %+v, want sum = 7", got)
	}
}

func TestSSE_ConnectionTransitionsKeepLastValue(t *testing.T) {
	st := store.NewMemoryStore()
	st.Update(store.ChannelValue{Name: "power", Expression: "i*en", Connected: true, Value: 12.5})

	ts := httptest.NewServer(NewServer(st, 0, nil, "", nil, testLogger()).Handler())
	defer ts.Close()

	stream := openSSE(t, ts.URL)
	stream.next()

	// an input drops: the channel goes stale but keeps its value
	st.Update(store.ChannelValue{Name: "power", Expression: "i*en", Connected: false, Value: 12.5})
	got := stream.next()
	if got.Connected || got.Value != 12.5 {
		t.Errorf("after disconnect = %+v, want stale 12.5", got)
	}

	st.Update(store.ChannelValue{Name: "power", Expression: "i*en", Connected: true, Value: 12.5})
	st.Update(store.ChannelValue{Name: "power", Expression: "i*en", Connected: true, Value: 13.0})

	if got := stream.next(); !got.Connected {
		t.Errorf("after reconnect = %+v, want connected", got)
	}
	if got := stream.next(); got.Value != 13.0 {
		t.Errorf("after recompute = %+v, want 13", got)
	}
}

func TestSSE_ReturnsWhenRequestEnds(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, "", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SSE handler did not return after the request context ended")
	}
}

// plainWriter is a ResponseWriter without http.Flusher.
type plainWriter struct {
	header http.Header
	code   int
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(code int)        { p.code = code }

func TestSSE_RequiresFlusher(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, "", nil, testLogger())
	w := &plainWriter{header: http.Header{}}

	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.code)
	}
}

// freePort reserves and releases a local TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestStart_ServesUntilCancelled(t *testing.T) {
	st := store.NewMemoryStore()
	st.Update(store.ChannelValue{Name: "sum", Connected: true, Value: 5.0})

	port := freePort(t)
	srv := NewServer(st, port, nil, "", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/api/channels", port)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET /api/channels: %v", err)
	}
	var got []store.ChannelValue
	err = json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if err != nil || len(got) != 1 || got[0].Value != 5.0 {
		t.Fatalf("channels = %+v (err %v), want sum = 5", got, err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := http.Get(url); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("server still answering after cancel")
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	srv := NewServer(store.NewMemoryStore(), ln.Addr().(*net.TCPAddr).Port, nil, "", nil, testLogger())
	err = srv.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("Start() error = %v, want bind failure", err)
	}
}

func TestHandleDashboard(t *testing.T) {
	page := fstest.MapFS{
		"assets/index.html": {Data: []byte("<title>{{.Title}}</title><h1>{{.Title}}</h1>")},
	}

	tests := []struct {
		name       string
		assets     fstest.MapFS
		title      string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"custom title", page, "Beamline 7", "/", http.StatusOK, "<title>Beamline 7</title><h1>Beamline 7</h1>"},
		{"default title", page, "", "/", http.StatusOK, "<title>PulseCalc</title>"},
		{"escaped title", page, "<b>&</b>", "/", http.StatusOK, "&lt;b&gt;&amp;&lt;/b&gt;"},
		{"other path", page, "", "/missing", http.StatusNotFound, ""},
		{"no index", fstest.MapFS{}, "", "/", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(store.NewMemoryStore(), 0, tt.assets, tt.title, nil, testLogger())
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_WithoutAssetsHasNoDashboard(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, "", nil, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
