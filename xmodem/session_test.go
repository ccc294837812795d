package xmodem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestSession_SendFile(t *testing.T) {
	data := sequence(1000)
	path := writeTempFile(t, "fw.bin", data)
	rx := newFakeReceiver()

	var started, completed string
	var startSize, completedBytes int64
	session := NewSession(rx,
		WithClock(newFakeClock()),
		WithCallbacks(&Callbacks{
			OnFileStart: func(name string, size int64) {
				started, startSize = name, size
			},
			OnFileComplete: func(name string, n int64, _ time.Duration) {
				completed, completedBytes = name, n
			},
		}),
	)

	require.NoError(t, session.SendFile(context.Background(), path))

	assert.Equal(t, "fw.bin", started)
	assert.Equal(t, int64(1000), startSize)
	assert.Equal(t, "fw.bin", completed)
	assert.Equal(t, int64(1000), completedBytes)

	assert.Len(t, rx.blocks(), 8)
	assert.Equal(t, data, rx.payload()[:len(data)])
}

func TestSession_SendFileMissing(t *testing.T) {
	var errContext string
	session := NewSession(newFakeReceiver(),
		WithClock(newFakeClock()),
		WithCallbacks(&Callbacks{
			OnError: func(err error, context string) bool {
				errContext = context
				return false
			},
		}),
	)

	err := session.SendFile(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, "send file", errContext)
}

func TestSession_SendReader(t *testing.T) {
	rx := newFakeReceiver()
	session := NewSession(rx, WithClock(newFakeClock()))

	err := session.SendReader(context.Background(), "notes.txt", strings.NewReader("hello"), 5)
	require.NoError(t, err)

	blocks := rx.blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, []byte("hello"), blocks[0].Data()[:5])
}

func TestSession_SendReaderClosesCloser(t *testing.T) {
	src := newSource([]byte("x"))
	session := NewSession(newFakeReceiver(), WithClock(newFakeClock()))

	require.NoError(t, session.SendReader(context.Background(), "x", src, 1))
	assert.Equal(t, 1, src.closed)
}

func TestSession_OnFileOpen(t *testing.T) {
	src := newSource([]byte("from callback"))
	var opened string
	rx := newFakeReceiver()
	session := NewSession(rx,
		WithClock(newFakeClock()),
		WithCallbacks(&Callbacks{
			OnFileOpen: func(filename string) (io.ReadCloser, os.FileInfo, error) {
				opened = filename
				return src, nil, nil
			},
		}),
	)

	require.NoError(t, session.SendFile(context.Background(), "/virtual/file"))
	assert.Equal(t, "/virtual/file", opened)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, []byte("from callback"), rx.blocks()[0].Data()[:13])
}

func TestSession_SendFiles(t *testing.T) {
	a := writeTempFile(t, "a.bin", sequence(200))
	b := writeTempFile(t, "b.bin", []byte("second"))

	rx := newFakeReceiver()
	rx.onEOT = func(int) []byte {
		rx.later = append(rx.later, []byte{NAK})
		return []byte{ACK}
	}

	var completed []string
	session := NewSession(rx,
		WithClock(newFakeClock()),
		WithCallbacks(&Callbacks{
			OnFileComplete: func(name string, _ int64, _ time.Duration) {
				completed = append(completed, name)
			},
		}),
	)

	require.NoError(t, session.SendFiles(context.Background(), []string{a, b}))
	assert.Equal(t, []string{"a.bin", "b.bin"}, completed)

	blocks := rx.blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, uint8(1), blocks[0].Number())
	assert.Equal(t, uint8(2), blocks[1].Number())
	assert.Equal(t, uint8(1), blocks[2].Number(), "each file restarts numbering")
	assert.Equal(t, []byte("second"), blocks[2].Data()[:6])
}

func TestSession_SendFilesRetriesOnRequest(t *testing.T) {
	path := writeTempFile(t, "a.bin", []byte("payload"))

	rx := newFakeReceiver()
	rx.onBlock = func(n int, _ []byte) []byte {
		if n == 0 {
			// garbage, then the receiver restarts
			rx.later = append(rx.later, []byte{NAK})
			return []byte{'?'}
		}
		return []byte{ACK}
	}

	var errs []error
	session := NewSession(rx,
		WithClock(newFakeClock()),
		WithCallbacks(&Callbacks{
			OnError: func(err error, _ string) bool {
				errs = append(errs, err)
				return true
			},
		}),
	)

	require.NoError(t, session.SendFiles(context.Background(), []string{path}))
	require.Len(t, errs, 1)
	typ, _ := TypeOf(errs[0])
	assert.Equal(t, ErrUnexpectedResponse, typ)
	assert.Len(t, rx.blocks(), 2)
}

func TestSession_SendFilesStopsOnError(t *testing.T) {
	a := writeTempFile(t, "a.bin", []byte("a"))
	b := writeTempFile(t, "b.bin", []byte("b"))

	rx := newFakeReceiver()
	rx.onBlock = func(int, []byte) []byte { return []byte{'?'} }

	session := NewSession(rx, WithClock(newFakeClock()))
	err := session.SendFiles(context.Background(), []string{a, b})
	typ, ok := TypeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrUnexpectedResponse, typ)
	assert.Len(t, rx.blocks(), 1)
}

func TestSession_ConfigApplied(t *testing.T) {
	rx := newFakeReceiver()
	rx.pending = nil
	clock := newFakeClock()

	config := DefaultConfig()
	config.ReceiverTimeout = 5 * time.Second
	config.NAKPollInterval = time.Second
	session := NewSession(rx, WithClock(clock), WithConfig(config))

	err := session.SendReader(context.Background(), "x", strings.NewReader("x"), 1)
	typ, _ := TypeOf(err)
	assert.Equal(t, ErrReceiverConnectTimeout, typ)
	assert.Equal(t, 5*time.Second, clock.elapsed())
}

func TestSession_ContextOption(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rx := newFakeReceiver()
	rx.pending = nil
	session := NewSession(rx, WithClock(newFakeClock()), WithContext(ctx))

	//lint:ignore SA1012 nil selects the session context
	err := session.SendReader(nil, "x", strings.NewReader("x"), 1)
	assert.True(t, IsCancelled(err))
}

func TestSession_ZeroRetriesConfig(t *testing.T) {
	rx := newFakeReceiver()
	rx.onBlock = func(int, []byte) []byte { return []byte{NAK} }

	config := DefaultConfig()
	config.MaxRetries = 0
	session := NewSession(rx, WithClock(newFakeClock()), WithConfig(config))

	err := session.SendReader(context.Background(), "x", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrMaxRetryExceededError)
	assert.Len(t, rx.blocks(), 1)
}
