package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSerialMux(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if mux == nil {
		t.Fatal("NewSerialMux returned nil")
	}
	if mux.port != port {
		t.Error("SerialMux port not set correctly")
	}
	if mux.subs == nil {
		t.Error("SerialMux subscriber map not initialised")
	}
}

func TestSerialMux_Subscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	if id1 == "" || id2 == "" {
		t.Error("Subscribe returned an empty ID")
	}
	if id1 == id2 {
		t.Error("Subscription IDs should be unique")
	}
	if cap(ch1) != SubscriberBuffer || cap(ch2) != SubscriberBuffer {
		t.Errorf("subscriber channels should be buffered to %d", SubscriberBuffer)
	}

	if n := mux.Stats().Subscribers; n != 2 {
		t.Errorf("Expected 2 subscribers, got %d", n)
	}
}

func TestSerialMux_Unsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	id, ch := mux.Subscribe()

	mux.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed")
	}

	// unknown ids are ignored
	mux.Unsubscribe("non-existent-id")

	if n := mux.Stats().Subscribers; n != 0 {
		t.Errorf("Expected 0 subscribers, got %d", n)
	}
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	tests := []struct {
		name    string
		command string
	}{
		{"command without newline", "reset"},
		{"command with newline", "start\n"},
		{"command with crlf", "stop\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mux.SendCommand(tt.command); err != nil {
				t.Errorf("SendCommand returned error: %v", err)
			}
		})
	}

	if got, want := port.GetWrittenData(), "reset\nstart\nstop\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestSerialMux_SendCommand_Errors(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	boom := errors.New("boom")
	port.WriteError = boom
	if err := mux.SendCommand("stop"); !errors.Is(err, boom) {
		t.Errorf("expected write error, got %v", err)
	}

	port.ShortWrite = true
	if err := mux.SendCommand("stop"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed on short write, got %v", err)
	}
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData("500\r\n501\n{\"cmd\":\"stop\"}\n")
	mux := NewSerialMux(port)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor returned error at EOF: %v", err)
	}

	want := []string{"500", "501", `{"cmd":"stop"}`}
	for _, ch := range []chan string{ch1, ch2} {
		for _, w := range want {
			select {
			case got := <-ch:
				if got != w {
					t.Errorf("line = %q, want %q", got, w)
				}
			default:
				t.Fatalf("missing line %q", w)
			}
		}
	}
}

func TestSerialMux_SlowSubscriberDrops(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData(strings.Repeat("500\n", SubscriberBuffer+5))
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor returned error: %v", err)
	}
	if len(ch) != SubscriberBuffer {
		t.Errorf("buffered %d lines, want %d", len(ch), SubscriberBuffer)
	}
	want := Stats{Lines: SubscriberBuffer + 5, Dropped: 5, Subscribers: 1}
	if got := mux.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestSerialMux_MonitorCancel(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	_ = mux.Close()
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.Closed {
		t.Error("port should be closed")
	}
	if err := mux.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
	if _, ok := <-func() chan string { _, c := mux.Subscribe(); return c }(); ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
}

func TestSendHandler(t *testing.T) {
	port := NewTestableSerialPort()
	h := sendHandler(NewSerialMux(port))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/?command=reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := port.GetWrittenData(); got != "reset\n" {
		t.Errorf("written = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing command status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?command=reset", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestTailHandler(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	srv := httptest.NewServer(tailHandler(mux))
	defer srv.Close()
	defer mux.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET tail: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	ping, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(ping, ": ping") {
		t.Fatalf("expected ping, got %q (%v)", ping, err)
	}
	_, _ = r.ReadString('\n')

	port.AddReadData("512.5\n")
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if line != "data: 512.5\n" {
		t.Errorf("event = %q", line)
	}
}

func TestTailHandler_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	tailHandler(NewDisabledSerialMux()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
