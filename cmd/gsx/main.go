package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/drunlade/go-xmodem/xmodem"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var (
	verbose = flag.Bool("v", false, "verbose mode")
	quiet   = flag.Bool("q", false, "quiet mode")
	port    = flag.String("port", "", "serial device to send over (default: stdin/stdout)")
	baud    = flag.Int("baud", 9600, "baud rate for -port")
	timeout = flag.Int("t", 600, "timeout in tenths of seconds")
	retries = flag.Int("r", xmodem.MaxRetries, "retransmissions allowed per block (0 = none, negative = default)")
	logFile = flag.String("log", "", "protocol log file (for debugging)")
	help    = flag.Bool("h", false, "show help")
	version = flag.Bool("version", false, "show version")
)

const versionString = "gsx version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	// Get files from command line
	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "%s: no files specified\n", os.Args[0])
		showUsage(1)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	switch {
	case *quiet:
		log.SetLevel(logrus.ErrorLevel)
	case *verbose:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan)
	defer cancel()

	fileNames := make([]string, 0, len(files))
	for _, filename := range files {
		absPath, err := filepath.Abs(filename)
		if err != nil {
			log.Errorf("resolving path %s: %v", filename, err)
			continue
		}
		info, err := os.Stat(absPath)
		if err != nil {
			log.Errorf("accessing %s: %v", filename, err)
			continue
		}
		if info.IsDir() {
			log.Warnf("skipping directory: %s", filename)
			continue
		}
		fileNames = append(fileNames, absPath)
	}

	if len(fileNames) == 0 {
		log.Error("no valid files to send")
		os.Exit(1)
	}

	transport, closeTransport, err := openTransport(log)
	if err != nil {
		log.Errorf("open transport: %v", err)
		os.Exit(1)
	}
	defer closeTransport()

	var logger xmodem.Logger = xmodem.NewLogrusLogger(log)
	if *logFile != "" {
		fileLogger, err := xmodem.NewFileLogger(*logFile)
		if err != nil {
			log.Errorf("create log file: %v", err)
			os.Exit(1)
		}
		defer fileLogger.Close()
		logger = fileLogger
		transport = xmodem.NewLoggingTransport(transport, fileLogger, "gsx")
	}

	d := time.Duration(*timeout) * 100 * time.Millisecond
	config := xmodem.DefaultConfig()
	config.ReceiverTimeout = d
	config.ACKTimeout = d
	config.EOTTimeout = d
	config.MaxRetries = *retries

	callbacks := &xmodem.Callbacks{
		OnProgress: func(filename string, transferred, total int64, rate float64) {
			if *quiet || !*verbose {
				return
			}
			percent := float64(0)
			if total > 0 {
				percent = float64(transferred) / float64(total) * 100
			}
			fmt.Fprintf(os.Stderr, "\r%s: %.1f%% (%.0f bytes/s)", filename, percent, rate)
		},
		OnFileStart: func(filename string, size int64) {
			log.WithField("size", size).Infof("sending %s, waiting for receiver", filename)
		},
		OnFileComplete: func(filename string, bytesTransferred int64, duration time.Duration) {
			log.WithFields(logrus.Fields{
				"bytes":    bytesTransferred,
				"duration": duration,
			}).Infof("completed %s", filename)
		},
		OnError: func(err error, context string) bool {
			log.Errorf("%s: %v", context, err)
			return false
		},
	}

	session := xmodem.NewSession(transport,
		xmodem.WithConfig(config),
		xmodem.WithCallbacks(callbacks),
		xmodem.WithContext(ctx),
		xmodem.WithSessionLogger(logger),
	)

	if err := session.SendFiles(ctx, fileNames); err != nil {
		closeTransport()
		os.Exit(1)
	}
}

// openTransport opens the serial device given by -port, or stdin/stdout.
// A terminal on stdin is switched to raw mode for the transfer.
func openTransport(log *logrus.Logger) (xmodem.Transport, func(), error) {
	if *port != "" {
		p, t, err := xmodem.OpenSerial(*port, *baud)
		if err != nil {
			return nil, nil, err
		}
		log.Debugf("opened %s at %d baud", *port, *baud)
		return t, func() { p.Close() }, nil
	}

	restore := func() {}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, fmt.Errorf("set raw terminal mode: %w", err)
		}
		restore = func() { term.Restore(fd, oldState) }
	}

	stdout := bufio.NewWriter(os.Stdout)
	return xmodem.NewStreamTransport(os.Stdin, stdout), restore, nil
}

func signalContext(sigChan chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - send files with XMODEM (checksum) protocol

Usage: %s [options] file...

Options:
  -port dev        serial device to use instead of stdin/stdout
  -baud N          baud rate for -port (default: 9600)
  -t N             timeout in tenths of seconds (default: 600)
  -r N             retransmissions allowed per block (default: 10)
  -log file        write a protocol log to file
  -h               show this help message
  -q               quiet mode, minimal output
  -v               verbose mode
  -version         show version

Each file is a separate transfer; start the receiver once per file.

Examples:
  %s file.bin                           # Send over stdin/stdout (e.g. from a terminal emulator)
  %s -port /dev/ttyUSB0 -baud 115200 fw.bin   # Send over a serial port

`, versionString, os.Args[0], os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
