package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter over an in-memory pipe. Commands
// written to it are kept in Written.
type MockSerialPort struct {
	reader *io.PipeReader

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.reader.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("serial port closed")
	}
	return m.written.Write(p)
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.reader.Close()
}

// Written returns everything written to the port so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

// NewMockSerialMux creates a SerialMux whose port replays lines, one every
// interval, for development without a tracker. After the last line a reset
// command is emitted and the replay starts again. Closing the mux stops the
// replay.
func NewMockSerialMux(lines []string, interval time.Duration) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	port := &MockSerialPort{reader: r}
	replay := append(append([]string(nil), lines...), `{"cmd":"reset"}`)

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			for _, line := range replay {
				<-ticker.C
				if _, err := io.WriteString(w, line+"\n"); err != nil {
					return
				}
			}
		}
	}()

	return NewSerialMux(port)
}

// TestableSerialPort is a scripted SerialPorter for tests. Reads drain the
// data queued by AddReadData and writes are captured for GetWrittenData.
type TestableSerialPort struct {
	// WriteError fails the next Write.
	WriteError error
	// ShortWrite makes Write report one byte fewer than it accepted.
	ShortWrite bool
	// BlockReads makes Read wait for more data instead of returning io.EOF.
	BlockReads bool
	// Closed is set by Close.
	Closed bool

	mu      sync.Mutex
	pending bytes.Buffer
	written bytes.Buffer
	wake    chan struct{}
}

func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{wake: make(chan struct{}, 1)}
}

func (t *TestableSerialPort) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	for {
		t.mu.Lock()
		switch {
		case t.Closed:
			t.mu.Unlock()
			return 0, io.EOF
		case t.pending.Len() > 0 || !t.BlockReads:
			defer t.mu.Unlock()
			return t.pending.Read(p)
		}
		t.mu.Unlock()
		<-t.wake
	}
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if err := t.WriteError; err != nil {
		t.WriteError = nil
		return 0, err
	}
	n, err := t.written.Write(p)
	if t.ShortWrite && n > 0 {
		n--
	}
	return n, err
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	t.Closed = true
	t.mu.Unlock()
	t.notify()
	return nil
}

// AddReadData queues data for Read.
func (t *TestableSerialPort) AddReadData(data string) {
	t.mu.Lock()
	t.pending.WriteString(data)
	t.mu.Unlock()
	t.notify()
}

// GetWrittenData returns everything written so far.
func (t *TestableSerialPort) GetWrittenData() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}
