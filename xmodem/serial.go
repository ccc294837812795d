package xmodem

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// DefaultPortReadTimeout is the read timeout given to ports so that a read
// returns promptly when no input is pending.
const DefaultPortReadTimeout = 10 * time.Millisecond

// Port is the part of a serial port a PortTransport needs.
// go.bug.st/serial.Port satisfies it.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// PortTransport adapts a serial port to Transport. The port's short read
// timeout makes every read return as soon as the driver has nothing queued.
type PortTransport struct {
	port Port
	buf  []byte
}

// NewPortTransport wraps an open port. A zero readTimeout selects
// DefaultPortReadTimeout.
func NewPortTransport(port Port, readTimeout time.Duration) (*PortTransport, error) {
	if readTimeout <= 0 {
		readTimeout = DefaultPortReadTimeout
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, err
	}
	return &PortTransport{
		port: port,
		buf:  make([]byte, 256),
	}, nil
}

// OpenSerial opens a serial device at baud (8N1) and wraps it. The returned
// port must be closed by the caller.
func OpenSerial(device string, baud int) (serial.Port, *PortTransport, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, nil, err
	}

	t, err := NewPortTransport(port, 0)
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	return port, t, nil
}

// ReadAvailable drains whatever the port has queued.
func (t *PortTransport) ReadAvailable() ([]byte, error) {
	var out []byte
	for {
		n, err := t.port.Read(t.buf)
		if n > 0 {
			out = append(out, t.buf[:n]...)
		}
		if err != nil {
			return out, err
		}
		if n < len(t.buf) {
			return out, nil
		}
	}
}

// Write writes p to the port.
func (t *PortTransport) Write(p []byte) (int, error) {
	n, err := t.port.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// WriteByte writes a single byte.
func (t *PortTransport) WriteByte(b byte) error {
	_, err := t.Write([]byte{b})
	return err
}
