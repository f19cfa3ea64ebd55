package serialmux

import (
	"io"
	"net/http"
	"sync"
)

// DisabledSerialMux stands in when no sample port is configured. It is a
// SerialMux over a device that never sends a line and discards commands, so
// subscribers block until Unsubscribe or Close like they would on a quiet
// tracker.
type DisabledSerialMux struct {
	*SerialMux[*nullPort]
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{SerialMux: NewSerialMux(newNullPort())}
}

// SendCommand discards the command.
func (d *DisabledSerialMux) SendCommand(string) error { return nil }

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "serial disabled")
	})
}

// nullPort blocks reads until it is closed, then reports EOF.
type nullPort struct {
	once   sync.Once
	closed chan struct{}
}

func newNullPort() *nullPort { return &nullPort{closed: make(chan struct{})} }

func (p *nullPort) Read([]byte) (int, error) {
	<-p.closed
	return 0, io.EOF
}

func (p *nullPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *nullPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
