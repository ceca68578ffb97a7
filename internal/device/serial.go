// Package device wraps go.bug.st/serial for the hardware telemetry link.
// It opens ports with explicit framing parameters and reads raw byte chunks;
// message boundaries are the decoder's problem, not the link's.
package device

import (
	"errors"
	"fmt"
	"io"

	serial "go.bug.st/serial"

	"mavbridge/internal/model"
)

// ErrLinkClosed is returned by ReadChunk after Close has released the port.
var ErrLinkClosed = errors.New("hardware link closed")

// Link is one open serial connection to an autopilot radio.
type Link struct {
	port serial.Port
	path string
	buf  []byte
}

// Open opens the serial device described by cfg. Failure reasons that matter
// operationally (missing device, permission, port busy) are spelled out in
// the returned error.
func Open(cfg model.BridgeConfig) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parityOf(cfg.Parity),
		StopBits: stopBitsOf(cfg.StopBits),
	}
	port, err := serial.Open(cfg.LinkPath, mode)
	if err != nil {
		return nil, openError(cfg.LinkPath, err)
	}
	return &Link{
		port: port,
		path: cfg.LinkPath,
		buf:  make([]byte, cfg.BufferSize),
	}, nil
}

func parityOf(p string) serial.Parity {
	switch p {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}

func stopBitsOf(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// openError maps the library's port error codes to descriptive causes.
func openError(path string, err error) error {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("open link %s: device not found: %w", path, err)
		case serial.PermissionDenied:
			return fmt.Errorf("open link %s: access denied: %w", path, err)
		case serial.PortBusy:
			return fmt.Errorf("open link %s: already open elsewhere: %w", path, err)
		}
	}
	return fmt.Errorf("open link %s: %w", path, err)
}

// Path returns the device path the link was opened with.
func (l *Link) Path() string {
	return l.path
}

// ReadChunk blocks until at least one byte arrives and returns a copy of what
// was read. A closed port surfaces as ErrLinkClosed.
func (l *Link) ReadChunk() ([]byte, error) {
	n, err := l.port.Read(l.buf)
	if err != nil {
		if errors.Is(err, io.EOF) || isClosedError(err) {
			return nil, ErrLinkClosed
		}
		return nil, fmt.Errorf("read link %s: %w", l.path, err)
	}
	if n == 0 {
		return nil, ErrLinkClosed
	}
	chunk := make([]byte, n)
	copy(chunk, l.buf[:n])
	return chunk, nil
}

func isClosedError(err error) bool {
	var pe *serial.PortError
	return errors.As(err, &pe) && pe.Code() == serial.PortClosed
}

// Write sends raw bytes out the link.
func (l *Link) Write(p []byte) (int, error) {
	n, err := l.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("write link %s: %w", l.path, err)
	}
	return n, nil
}

// Close releases the port. Any blocked ReadChunk returns ErrLinkClosed.
func (l *Link) Close() error {
	return l.port.Close()
}

// ListPorts enumerates serial devices present on the host, for the relay's
// diagnostic mode.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return ports, nil
}
