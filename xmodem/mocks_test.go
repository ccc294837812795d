package xmodem

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// fakeClock advances only when the engine sleeps.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept += d
	return nil
}

func (c *fakeClock) elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// fakeReceiver plays the receiving side. Every write is recorded and the
// reply chosen by onBlock or onEOT is returned by the next ReadAvailable.
type fakeReceiver struct {
	writes  [][]byte
	pending []byte
	// later holds replies released one per ReadAvailable once pending is
	// empty, e.g. the NAK that starts the next file.
	later [][]byte

	// onBlock answers the n-th transmitted frame (0-based, retries included).
	onBlock func(n int, frame []byte) []byte
	// onEOT answers the n-th EOT (0-based).
	onEOT func(n int) []byte

	frames int
	eots   int

	readErr  error
	writeErr error
}

// newFakeReceiver returns a receiver that has sent its start NAK and
// acknowledges everything.
func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{
		pending: []byte{NAK},
		onBlock: func(int, []byte) []byte { return []byte{ACK} },
		onEOT:   func(int) []byte { return []byte{ACK} },
	}
}

func (r *fakeReceiver) ReadAvailable() ([]byte, error) {
	if r.readErr != nil {
		return nil, r.readErr
	}
	if len(r.pending) == 0 && len(r.later) > 0 {
		r.pending, r.later = r.later[0], r.later[1:]
	}
	out := r.pending
	r.pending = nil
	return out, nil
}

func (r *fakeReceiver) Write(p []byte) (int, error) {
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	r.writes = append(r.writes, append([]byte(nil), p...))
	r.pending = append(r.pending, r.onBlock(r.frames, p)...)
	r.frames++
	return len(p), nil
}

func (r *fakeReceiver) WriteByte(b byte) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.writes = append(r.writes, []byte{b})
	if b == EOT {
		r.pending = append(r.pending, r.onEOT(r.eots)...)
		r.eots++
	}
	return nil
}

// blocks returns the transmitted 132-byte frames in order.
func (r *fakeReceiver) blocks() []Block {
	var out []Block
	for _, w := range r.writes {
		if len(w) == BlockSize {
			var b Block
			copy(b[:], w)
			out = append(out, b)
		}
	}
	return out
}

// payload reassembles the data of the transmitted frames, skipping
// retransmissions of the same block.
func (r *fakeReceiver) payload() []byte {
	var buf bytes.Buffer
	var last *Block
	for _, b := range r.blocks() {
		b := b
		if last != nil && *last == b {
			continue
		}
		buf.Write(b.Data())
		last = &b
	}
	return buf.Bytes()
}

// closeCounter counts Close calls on a source.
type closeCounter struct {
	io.Reader
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func newSource(data []byte) *closeCounter {
	return &closeCounter{Reader: bytes.NewReader(data)}
}

func sequence(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}

func newTestSender(t Transport, clock Clock) *Sender {
	return NewSender(t, &SenderConfig{Clock: clock, MaxRetries: MaxRetries})
}

// serveBlocks plays a checksum receiver over a byte stream: NAK to start,
// ACK for valid blocks, NAK for corrupt ones and ACK for EOT. It returns
// the received data, filler included.
func serveBlocks(in io.Reader, out io.Writer) ([]byte, error) {
	var got []byte
	if _, err := out.Write([]byte{NAK}); err != nil {
		return nil, err
	}
	buf := make([]byte, BlockSize)
	for {
		if _, err := io.ReadFull(in, buf[:1]); err != nil {
			return got, err
		}
		if buf[0] == EOT {
			_, err := out.Write([]byte{ACK})
			return got, err
		}
		if _, err := io.ReadFull(in, buf[1:]); err != nil {
			return got, err
		}
		var b Block
		copy(b[:], buf)
		reply := byte(ACK)
		if b.Valid() {
			got = append(got, b.Data()...)
		} else {
			reply = NAK
		}
		if _, err := out.Write([]byte{reply}); err != nil {
			return got, err
		}
	}
}
