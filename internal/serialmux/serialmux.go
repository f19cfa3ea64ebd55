// Package serialmux fans the lines of one serial device out to any number of
// readers and serialises the commands written back to it. The jump server
// reads per-frame tracker samples through it.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/jump.report/internal/httputil"
)

// ErrWriteFailed is returned when the device accepts only part of a command.
var ErrWriteFailed = errors.New("short write to serial port")

// SubscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind loses lines instead of stalling the device.
const SubscriberBuffer = 256

// maxLineBytes bounds one line read from the device.
const maxLineBytes = 64 * 1024

// SerialMuxInterface is what the server needs from a sample source.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel receiving every line read after
	// the call. The channel is closed by Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline-terminated command to the device.
	SendCommand(string) error
	// Monitor reads the device until ctx is done, EOF or a read error.
	Monitor(context.Context) error
	Close() error
	// AttachAdminRoutes registers debug endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Stats counts the traffic seen by a SerialMux.
type Stats struct {
	Lines       int `json:"lines"`
	Dropped     int `json:"dropped"`
	Subscribers int `json:"subscribers"`
}

type subscriber struct {
	ch      chan string
	dropped int
}

// SerialMux multiplexes one SerialPorter.
type SerialMux[T SerialPorter] struct {
	port    T
	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*subscriber
	closed  bool
	lines   int
	dropped int
}

func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: make(map[string]*subscriber)}
}

func newSubscriberID() string {
	var b [8]byte
	_, _ = crand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Subscribe registers a reader. After Close it returns a closed channel.
func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := newSubscriberID()
	ch := make(chan string, SubscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subs[id] = &subscriber{ch: ch}
	return id, ch
}

// Unsubscribe closes and forgets the channel for id. Unknown ids are ignored.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		close(sub.ch)
		delete(s.subs, id)
	}
}

func (s *SerialMux[T]) SendCommand(command string) error {
	line := strings.TrimRight(command, "\r\n") + "\n"

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("write %q: %w", strings.TrimSpace(line), err)
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor hands every line read from the port to the subscribers. Trailing
// carriage returns are stripped. EOF ends Monitor without an error.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go s.readLines(ctx, lines, readErr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if !s.broadcast(line) {
				return nil
			}
		}
	}
}

// readLines scans the port into out. It reports exactly one result on errc
// (nil at EOF) before closing out.
func (s *SerialMux[T]) readLines(ctx context.Context, out chan<- string, errc chan<- error) {
	defer close(out)
	sc := bufio.NewScanner(s.port)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		select {
		case out <- strings.TrimRight(sc.Text(), "\r"):
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
	}
	errc <- sc.Err()
}

// broadcast offers line to every subscriber without blocking. It reports
// false once the mux is closed.
func (s *SerialMux[T]) broadcast(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.lines++
	for _, sub := range s.subs {
		select {
		case sub.ch <- line:
		default:
			sub.dropped++
			s.dropped++
		}
	}
	return true
}

// Stats returns the line and drop counters.
func (s *SerialMux[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Lines: s.lines, Dropped: s.dropped, Subscribers: len(s.subs)}
}

// Close ends every subscription and closes the port. Later calls are no-ops.
func (s *SerialMux[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleSilentFunc("serial-send", sendHandler(s))
	debug.HandleSilentFunc("serial-tail", tailHandler(s))
	debug.HandleSilentFunc("serial-stats", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Stats())
	})
}

// sendHandler writes the "command" form value to the device.
func sendHandler(m SerialMuxInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			httputil.BadRequest(w, "missing command")
			return
		}
		if err := m.SendCommand(command); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{"success": true, "command": command})
	}
}

// tailHandler streams the device lines to the client as server-sent events,
// one "data:" event per line, until the client goes away or the
// subscription closes.
func tailHandler(m SerialMuxInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "streaming unsupported")
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")

		id, lines := m.Subscribe()
		defer m.Unsubscribe(id)

		fmt.Fprint(w, ": ping\n\n")
		flusher.Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
