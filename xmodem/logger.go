package xmodem

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger interface for XMODEM protocol logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// LogrusLogger forwards to a logrus logger or entry
type LogrusLogger struct {
	log logrus.FieldLogger
}

// NewLogrusLogger creates a Logger backed by l. Passing an entry with
// fields (for example the file name) tags every line with them.
func NewLogrusLogger(l logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{log: l}
}

func (l *LogrusLogger) Debug(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

func (l *LogrusLogger) Info(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

func (l *LogrusLogger) Error(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

// FileLogger writes logs to a file
type FileLogger struct {
	*LogrusLogger
	file *os.File
}

// NewFileLogger creates a logger that appends debug-level lines to path
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetOutput(file)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	return &FileLogger{LogrusLogger: NewLogrusLogger(l), file: file}, nil
}

func (l *FileLogger) Close() error {
	if l != nil && l.file != nil {
		return l.file.Close()
	}
	return nil
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// FormatBlockLog formats a block for logging
func FormatBlockLog(direction string, b *Block) string {
	return fmt.Sprintf("%s block %d (cmpl=%02x, sum=%02x, data=%q...)",
		direction, b.Number(), b[offsetComplement], b.Checksum(), b.Data()[:16])
}

// LoggingTransport wraps a Transport and logs its traffic
type LoggingTransport struct {
	transport Transport
	logger    Logger
	name      string
}

func NewLoggingTransport(transport Transport, logger Logger, name string) *LoggingTransport {
	return &LoggingTransport{
		transport: transport,
		logger:    logger,
		name:      name,
	}
}

func (lt *LoggingTransport) ReadAvailable() ([]byte, error) {
	data, err := lt.transport.ReadAvailable()
	if len(data) > 0 {
		if len(data) > 16 {
			lt.logger.Debug("%s: read %d bytes: %q...[truncated]", lt.name, len(data), data[:16])
		} else {
			lt.logger.Debug("%s: read %d bytes: %q", lt.name, len(data), data)
		}
	}
	if err != nil {
		lt.logger.Error("%s: read error: %v", lt.name, err)
	}
	return data, err
}

func (lt *LoggingTransport) Write(p []byte) (int, error) {
	n, err := lt.transport.Write(p)
	if len(p) == BlockSize && p[0] == SOH {
		var b Block
		copy(b[:], p)
		lt.logger.Debug("%s: %s", lt.name, FormatBlockLog("sent", &b))
	} else {
		lt.logger.Debug("%s: wrote %d bytes", lt.name, n)
	}
	if err != nil {
		lt.logger.Error("%s: write error: %v", lt.name, err)
	}
	return n, err
}

func (lt *LoggingTransport) WriteByte(b byte) error {
	err := lt.transport.WriteByte(b)
	lt.logger.Debug("%s: wrote %s", lt.name, ControlName(b))
	if err != nil {
		lt.logger.Error("%s: write error: %v", lt.name, err)
	}
	return err
}
