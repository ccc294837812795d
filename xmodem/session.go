package xmodem

import (
	"context"
	"io"
	"os"
	path "path/filepath"
	"time"
)

// Session represents an XMODEM sending session over one transport.
// It provides a high-level API for sending files.
type Session struct {
	// I/O
	transport Transport

	// Configuration
	config *Config

	// Callbacks
	callbacks *Callbacks

	// Internal state
	sender *Sender

	// Context
	ctx context.Context

	// Logger
	logger Logger

	clock Clock
}

// Config holds session configuration.
type Config struct {
	// Poll intervals
	NAKPollInterval time.Duration
	ACKPollInterval time.Duration
	EOTPollInterval time.Duration

	// Timeouts
	ReceiverTimeout time.Duration
	ACKTimeout      time.Duration
	EOTTimeout      time.Duration

	// Retransmissions allowed per block; 0 allows none, negative selects
	// the default
	MaxRetries int

	// Progress update interval
	ProgressInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		NAKPollInterval:  NAKPollInterval,
		ACKPollInterval:  ACKPollInterval,
		EOTPollInterval:  EOTPollInterval,
		ReceiverTimeout:  ReceiverTimeout,
		ACKTimeout:       ACKTimeout,
		EOTTimeout:       EOTTimeout,
		MaxRetries:       MaxRetries,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		s.config = config
	}
}

// WithCallbacks sets the session callbacks.
func WithCallbacks(callbacks *Callbacks) Option {
	return func(s *Session) {
		s.callbacks = mergeCallbacks(callbacks)
	}
}

// WithContext sets the session context.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// WithSessionLogger sets a logger for protocol debugging.
func WithSessionLogger(logger Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClock replaces the system clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// NewSession creates a new XMODEM session.
func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		config:    DefaultConfig(),
		callbacks: defaultCallbacks(),
		ctx:       context.Background(),
		logger:    NoopLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}

	s.sender = NewSender(transport, &SenderConfig{
		NAKPollInterval:  s.config.NAKPollInterval,
		ACKPollInterval:  s.config.ACKPollInterval,
		EOTPollInterval:  s.config.EOTPollInterval,
		ReceiverTimeout:  s.config.ReceiverTimeout,
		ACKTimeout:       s.config.ACKTimeout,
		EOTTimeout:       s.config.EOTTimeout,
		MaxRetries:       s.config.MaxRetries,
		ProgressInterval: s.config.ProgressInterval,
		Context:          s.ctx,
		Clock:            s.clock,
		Logger:           s.logger,
		Callbacks:        s.callbacks,
	})

	return s
}

// SendFile opens filename and sends it.
func (s *Session) SendFile(ctx context.Context, filename string) error {
	err := s.sendFile(ctx, filename)
	if err != nil {
		s.callbacks.OnError(err, "send file")
	}
	return err
}

// SendReader sends the content of r. If r is an io.Closer it is closed
// when the transfer ends. size is only used for progress and may be -1.
func (s *Session) SendReader(ctx context.Context, name string, r io.Reader, size int64) error {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	err := s.send(ctx, name, rc, size)
	if err != nil {
		s.callbacks.OnError(err, "send file")
	}
	return err
}

func (s *Session) sendFile(ctx context.Context, filename string) error {
	file, size, err := s.open(filename)
	if err != nil {
		return err
	}

	_, name := path.Split(filename)
	return s.send(ctx, name, file, size)
}

func (s *Session) send(ctx context.Context, name string, src io.ReadCloser, size int64) error {
	// Use context from session if not provided
	if ctx == nil {
		ctx = s.ctx
	}

	s.logger.Info("SendFile: %s (%d bytes), waiting for receiver", name, size)
	s.callbacks.OnFileStart(name, size)

	if err := s.sender.SendFile(ctx, name, src, size); err != nil {
		return err
	}

	stats := s.sender.Progress().Stats()
	s.callbacks.OnFileComplete(name, stats.Acked, stats.Duration)
	return nil
}

// open opens a file through OnFileOpen or the local filesystem.
func (s *Session) open(filename string) (io.ReadCloser, int64, error) {
	if s.callbacks.OnFileOpen != nil {
		file, info, err := s.callbacks.OnFileOpen(filename)
		if err != nil {
			return nil, 0, err
		}
		size := int64(-1)
		if info != nil {
			size = info.Size()
		}
		return file, size, nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// SendFiles sends files one after another, each as its own XMODEM transfer
// started by a fresh NAK from the receiver. A failed file is retried once
// from the start when OnError returns true.
func (s *Session) SendFiles(ctx context.Context, filenames []string) error {
	for _, filename := range filenames {
		err := s.sendFile(ctx, filename)
		if err == nil {
			continue
		}
		if IsCancelled(err) {
			s.callbacks.OnError(err, "send file")
			return err
		}

		if !s.callbacks.OnError(err, "send file") {
			return err
		}
		s.logger.Info("SendFiles: retrying %s", filename)
		if err := s.sendFile(ctx, filename); err != nil {
			s.callbacks.OnError(err, "send file")
			return err
		}
	}

	return nil
}

// Sender returns the underlying protocol engine.
func (s *Session) Sender() *Sender {
	return s.sender
}
