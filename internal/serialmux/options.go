package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate suits USB-serial trackers streaming at camera frame rate.
	DefaultBaudRate = 115200
	DefaultFraming  = "8N1"
)

// PortOptions are the line settings used to open a real device.
type PortOptions struct {
	BaudRate int `json:"baud_rate,omitempty"`
	// Framing is data bits, parity and stop bits in the usual notation, such
	// as "8N1" or "7E2". Empty means DefaultFraming.
	Framing string `json:"framing,omitempty"`
}

var parities = map[byte]serial.Parity{
	'N': serial.NoParity,
	'E': serial.EvenParity,
	'O': serial.OddParity,
	'M': serial.MarkParity,
	'S': serial.SpaceParity,
}

// SerialMode translates o into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	baud := o.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	if baud < 0 {
		return nil, fmt.Errorf("invalid baud rate %d", baud)
	}

	framing := strings.ToUpper(strings.TrimSpace(o.Framing))
	if framing == "" {
		framing = DefaultFraming
	}
	if len(framing) != 3 {
		return nil, fmt.Errorf("invalid framing %q, expected data bits, parity and stop bits like 8N1", o.Framing)
	}

	dataBits := int(framing[0] - '0')
	if dataBits < 5 || dataBits > 8 {
		return nil, fmt.Errorf("invalid framing %q: data bits must be 5 to 8", o.Framing)
	}
	parity, ok := parities[framing[1]]
	if !ok {
		return nil, fmt.Errorf("invalid framing %q: parity must be one of N, E, O, M, S", o.Framing)
	}
	var stopBits serial.StopBits
	switch framing[2] {
	case '1':
		stopBits = serial.OneStopBit
	case '2':
		stopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid framing %q: stop bits must be 1 or 2", o.Framing)
	}

	return &serial.Mode{BaudRate: baud, DataBits: dataBits, Parity: parity, StopBits: stopBits}, nil
}

// NewRealSerialMux opens the device at path with opts.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewSerialMux[serial.Port](port), nil
}
