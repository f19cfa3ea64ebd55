package serialmux

import "io"

// SerialPorter is what a SerialMux reads samples from and writes commands to.
// go.bug.st/serial ports satisfy it, as do the in-memory ports in mock.go.
type SerialPorter interface {
	io.ReadWriteCloser
}
