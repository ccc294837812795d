package xmodem

import (
	"io"
	"sync"
)

// Transport is the byte channel a transfer runs over. The channel is
// expected to be open and configured already.
//
// Write must send the whole buffer or fail. ReadAvailable returns the bytes
// that have arrived since the previous call and must not block waiting for
// more; an empty result means nothing is pending.
type Transport interface {
	io.Writer
	io.ByteWriter
	ReadAvailable() ([]byte, error)
}

// StreamTransport adapts a blocking reader and a writer (pipes, stdio,
// network connections) to Transport. A background goroutine drains the
// reader into a buffer that ReadAvailable hands out.
type StreamTransport struct {
	reader io.Reader
	writer io.Writer

	mu      sync.Mutex
	pending []byte
	err     error
	start   sync.Once
}

// NewStreamTransport creates a transport over reader and writer. Reading
// starts on the first call to ReadAvailable.
func NewStreamTransport(reader io.Reader, writer io.Writer) *StreamTransport {
	return &StreamTransport{
		reader: reader,
		writer: writer,
	}
}

func (t *StreamTransport) pump() {
	buf := make([]byte, 512)
	for {
		n, err := t.reader.Read(buf)

		t.mu.Lock()
		if n > 0 {
			t.pending = append(t.pending, buf[:n]...)
		}
		if err != nil {
			t.err = err
		}
		t.mu.Unlock()

		if err != nil {
			return
		}
	}
}

// ReadAvailable returns buffered input. A read error from the underlying
// reader is reported once the bytes received before it have been consumed.
func (t *StreamTransport) ReadAvailable() ([]byte, error) {
	t.start.Do(func() { go t.pump() })

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) > 0 {
		out := t.pending
		t.pending = nil
		return out, nil
	}
	return nil, t.err
}

// Write writes p and flushes the writer if it buffers.
func (t *StreamTransport) Write(p []byte) (int, error) {
	n, err := t.writer.Write(p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, t.Flush()
}

// WriteByte writes a single byte.
func (t *StreamTransport) WriteByte(b byte) error {
	_, err := t.Write([]byte{b})
	return err
}

// Flush flushes the writer if it supports it.
func (t *StreamTransport) Flush() error {
	if f, ok := t.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close closes the reader and writer where they are closers.
func (t *StreamTransport) Close() error {
	var firstErr error
	if c, ok := t.writer.(io.Closer); ok {
		firstErr = c.Close()
	}
	if c, ok := t.reader.(io.Closer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
