package xmodem

import (
	"bytes"
	"context"
	"io"
	"time"
)

// Sender drives the XMODEM sender state machine over a Transport.
//
// A Sender runs one transfer at a time; all transfer state lives in a
// transferSession created per call to SendFile.
type Sender struct {
	transport Transport

	nakPoll         time.Duration
	ackPoll         time.Duration
	eotPoll         time.Duration
	receiverTimeout time.Duration
	ackTimeout      time.Duration
	eotTimeout      time.Duration
	maxRetries      int

	clock     Clock
	logger    Logger
	callbacks *Callbacks
	progress  *ProgressTracker

	ctx context.Context
}

// SenderConfig holds configuration for a sender.
// Zero durations select the package defaults. MaxRetries 0 allows no
// retransmission; a negative MaxRetries selects the default.
type SenderConfig struct {
	NAKPollInterval  time.Duration
	ACKPollInterval  time.Duration
	EOTPollInterval  time.Duration
	ReceiverTimeout  time.Duration
	ACKTimeout       time.Duration
	EOTTimeout       time.Duration
	MaxRetries       int
	ProgressInterval time.Duration
	Context          context.Context
	Clock            Clock
	Logger           Logger
	Callbacks        *Callbacks
}

// DefaultSenderConfig returns a default sender configuration.
func DefaultSenderConfig() *SenderConfig {
	return &SenderConfig{
		NAKPollInterval:  NAKPollInterval,
		ACKPollInterval:  ACKPollInterval,
		EOTPollInterval:  EOTPollInterval,
		ReceiverTimeout:  ReceiverTimeout,
		ACKTimeout:       ACKTimeout,
		EOTTimeout:       EOTTimeout,
		MaxRetries:       MaxRetries,
		ProgressInterval: 100 * time.Millisecond,
		Context:          context.Background(),
	}
}

// NewSender creates a new XMODEM sender.
func NewSender(transport Transport, config *SenderConfig) *Sender {
	if config == nil {
		config = DefaultSenderConfig()
	}

	s := &Sender{
		transport:       transport,
		nakPoll:         orDefault(config.NAKPollInterval, NAKPollInterval),
		ackPoll:         orDefault(config.ACKPollInterval, ACKPollInterval),
		eotPoll:         orDefault(config.EOTPollInterval, EOTPollInterval),
		receiverTimeout: orDefault(config.ReceiverTimeout, ReceiverTimeout),
		ackTimeout:      orDefault(config.ACKTimeout, ACKTimeout),
		eotTimeout:      orDefault(config.EOTTimeout, EOTTimeout),
		maxRetries:      config.MaxRetries,
		clock:           getClock(config.Clock),
		logger:          config.Logger,
		callbacks:       mergeCallbacks(config.Callbacks),
		ctx:             config.Context,
	}
	if s.maxRetries < 0 {
		s.maxRetries = MaxRetries
	}
	if s.logger == nil {
		s.logger = NoopLogger{}
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	s.progress = NewProgressTracker(s.callbacks.OnProgress, config.ProgressInterval, s.clock)

	return s
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

type state int

const (
	stateWaitNAK state = iota
	stateBeginSend
	stateWaitACK
	stateResend
	stateSendNext
	stateEndTx
	stateAbort
	stateSuccess
)

func (s state) String() string {
	switch s {
	case stateWaitNAK:
		return "WAIT_NAK"
	case stateBeginSend:
		return "BEGIN_SEND"
	case stateWaitACK:
		return "WAIT_ACK"
	case stateResend:
		return "RESEND"
	case stateSendNext:
		return "SEND_NEXT"
	case stateEndTx:
		return "ENDTX"
	case stateAbort:
		return "ABORT"
	case stateSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// transferSession is the state of one transfer. It is created by SendFile
// and dropped when SendFile returns.
type transferSession struct {
	state state

	blocks  *blockAssembler
	block   Block
	number  uint8
	payload int // real bytes in block

	retries    int
	noMoreData bool

	// deadline bounds the current wait and is reset on every WAIT_ACK entry.
	// eotDeadline is set once, on the first ENDTX.
	deadline    time.Time
	eotDeadline time.Time
	eotStarted  bool

	failure *Error
}

// abort routes a protocol failure through the ABORT state.
func (ts *transferSession) abort(failure *Error) {
	ts.failure = failure
	ts.state = stateAbort
}

// SendFile transfers src to the receiver and closes src exactly once before
// returning. filename and size only feed progress reporting and logs; size
// is -1 when unknown.
//
// The transfer waits for the receiver's NAK, sends 128-byte blocks until the
// source is exhausted and finishes with EOT. Protocol failures are returned
// as *Error; transport and source failures end the transfer immediately.
func (s *Sender) SendFile(ctx context.Context, filename string, src io.ReadCloser, size int64) error {
	if ctx == nil {
		ctx = s.ctx
	}

	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Error("SendFile: close source: %v", err)
		}
	}()

	ts := &transferSession{
		state:  stateWaitNAK,
		blocks: newBlockAssembler(src),
	}
	s.progress.Start(filename, size)

	for {
		s.logger.Debug("SendFile: state %s (block %d, retries %d)", ts.state, ts.number, ts.retries)

		var err error
		switch ts.state {
		case stateWaitNAK:
			err = s.waitNAK(ctx, ts)
		case stateBeginSend:
			err = s.beginSend(ts)
		case stateWaitACK:
			err = s.waitACK(ctx, ts)
		case stateResend:
			err = s.resend(ts)
		case stateSendNext:
			err = s.sendNext(ts)
		case stateEndTx:
			err = s.endTx(ts)
		case stateAbort:
			s.logger.Error("SendFile: %v", ts.failure)
			s.event(eventTypeFor(ts.failure), ts.failure.Error(), ts.failure.Block)
			return ts.failure
		case stateSuccess:
			stats := s.progress.Stats()
			s.logger.Info("SendFile: %s sent, %d bytes in %d blocks", filename, stats.Acked, stats.Blocks)
			s.event(EventComplete, filename, -1)
			return nil
		}

		if err != nil {
			s.logger.Error("SendFile: %v", err)
			if IsCancelled(err) {
				s.event(EventCancelled, err.Error(), int(ts.number))
			} else {
				s.event(EventError, err.Error(), int(ts.number))
			}
			return err
		}
	}
}

// Progress returns the tracker of the current or last transfer.
func (s *Sender) Progress() *ProgressTracker {
	return s.progress
}

// waitNAK polls for the receiver's NAK.
func (s *Sender) waitNAK(ctx context.Context, ts *transferSession) error {
	ts.deadline = s.clock.Now().Add(s.receiverTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return wrapError(ErrCancelled, "waiting for receiver", err)
		}

		data, err := s.transport.ReadAvailable()
		if err != nil {
			return wrapError(ErrTransportIO, "read", err)
		}
		if bytes.IndexByte(data, NAK) >= 0 {
			s.event(EventReceiverReady, "NAK received", -1)
			ts.state = stateBeginSend
			return nil
		}

		if err := s.clock.Sleep(ctx, s.nakPoll); err != nil {
			return wrapError(ErrCancelled, "waiting for receiver", err)
		}
		if !s.clock.Now().Before(ts.deadline) {
			ts.abort(NewError(ErrReceiverConnectTimeout, "no NAK from receiver"))
			return nil
		}
	}
}

func (s *Sender) beginSend(ts *transferSession) error {
	ts.number = 1
	n, _, err := ts.blocks.assemble(&ts.block, ts.number, true)
	if err != nil {
		return err
	}
	ts.payload = n

	if err := s.transmit(ts); err != nil {
		return err
	}
	s.event(EventBlockSent, "", int(ts.number))
	ts.state = stateWaitACK
	return nil
}

func (s *Sender) resend(ts *transferSession) error {
	if ts.retries > s.maxRetries {
		ts.abort(NewBlockError(ErrMaxRetryExceeded, "block not acknowledged", ts.number))
		return nil
	}

	if err := s.transmit(ts); err != nil {
		return err
	}
	s.event(EventBlockResent, "", int(ts.number))
	ts.state = stateWaitACK
	return nil
}

func (s *Sender) sendNext(ts *transferSession) error {
	ts.retries = 0
	ts.number++

	n, more, err := ts.blocks.assemble(&ts.block, ts.number, false)
	if err != nil {
		return err
	}
	if !more {
		ts.noMoreData = true
		ts.state = stateEndTx
		return nil
	}
	ts.payload = n

	if err := s.transmit(ts); err != nil {
		return err
	}
	s.event(EventBlockSent, "", int(ts.number))
	ts.state = stateWaitACK
	return nil
}

func (s *Sender) endTx(ts *transferSession) error {
	if !ts.eotStarted {
		ts.eotDeadline = s.clock.Now().Add(s.eotTimeout)
		ts.eotStarted = true
	}

	if err := s.transport.WriteByte(EOT); err != nil {
		return wrapError(ErrTransportIO, "write EOT", err)
	}
	s.event(EventEOTSent, "", -1)
	ts.state = stateWaitACK
	return nil
}

// waitACK polls for the response to the last block or EOT and picks the
// next state from its first byte.
func (s *Sender) waitACK(ctx context.Context, ts *transferSession) error {
	interval := s.ackPoll
	if ts.noMoreData {
		// bounded by eotDeadline, set once in endTx
		interval = s.eotPoll
	} else {
		ts.deadline = s.clock.Now().Add(s.ackTimeout)
	}

	var response []byte
	for {
		if err := s.clock.Sleep(ctx, interval); err != nil {
			return wrapError(ErrCancelled, "waiting for acknowledge", err)
		}

		data, err := s.transport.ReadAvailable()
		if err != nil {
			return wrapError(ErrTransportIO, "read", err)
		}
		if len(data) > 0 {
			response = data
			break
		}
		if ts.noMoreData {
			// Silence after EOT is handled like a bad reply: resend EOT
			// while the EOT budget lasts.
			break
		}
		if !s.clock.Now().Before(ts.deadline) {
			ts.abort(NewBlockError(ErrBlockAckTimeout, "no response to block", ts.number))
			return nil
		}
	}

	if !ts.noMoreData {
		switch response[0] {
		case ACK:
			s.progress.BlockAcked(ts.payload)
			s.event(EventBlockAcked, "", int(ts.number))
			ts.state = stateSendNext
		case NAK:
			ts.retries++
			s.event(EventBlockNaked, "", int(ts.number))
			ts.state = stateResend
		default:
			ts.abort(NewBlockError(ErrUnexpectedResponse, "got "+ControlName(response[0]), ts.number))
		}
		return nil
	}

	if len(response) > 0 && response[0] == ACK {
		s.progress.Complete()
		ts.state = stateSuccess
		return nil
	}
	if !s.clock.Now().Before(ts.eotDeadline) {
		ts.abort(NewError(ErrEOTAckTimeout, "EOT not acknowledged"))
		return nil
	}
	ts.state = stateEndTx
	return nil
}

// transmit writes the assembled block.
func (s *Sender) transmit(ts *transferSession) error {
	if _, err := s.transport.Write(ts.block[:]); err != nil {
		return &Error{Type: ErrTransportIO, Message: "write block", Block: int(ts.number), Err: err}
	}
	return nil
}

func (s *Sender) event(t EventType, message string, block int) {
	s.callbacks.OnEvent(Event{
		Type:      t,
		Message:   message,
		Block:     block,
		Timestamp: s.clock.Now(),
	})
}

func eventTypeFor(err *Error) EventType {
	if IsTimeout(err) {
		return EventTimeout
	}
	return EventError
}
