package xmodem

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ReceiveCommand is the remote command started for each file; the quoted
// file name is appended. lrzsz's rx uses checksum mode unless given -c.
const ReceiveCommand = "rx"

// SSHSession runs rx on a remote host and sends a file to it over the SSH
// session's stdin/stdout pipes.
type SSHSession struct {
	*Session
	sshSession *ssh.Session
	stdin      io.WriteCloser
	transport  *StreamTransport
}

// NewSSHSession creates an XMODEM session from an SSH session. The SSH
// session is good for one remote command, so one file.
func NewSSHSession(sshSession *ssh.Session, opts ...Option) (*SSHSession, error) {
	stdin, err := sshSession.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	transport := NewStreamTransport(stdout, stdin)

	return &SSHSession{
		Session:    NewSession(transport, opts...),
		sshSession: sshSession,
		stdin:      stdin,
		transport:  transport,
	}, nil
}

// SendFile starts rx for remoteName (the base name of filename when
// empty) and sends filename to it.
func (s *SSHSession) SendFile(ctx context.Context, filename, remoteName string) error {
	if ctx == nil {
		ctx = s.ctx
	}
	if remoteName == "" {
		remoteName = filepath.Base(filename)
	}

	cmd := ReceiveCommand + " " + shellQuote(remoteName)
	s.logger.Info("SSHSession: starting %q", cmd)
	if err := s.sshSession.Start(cmd); err != nil {
		return wrapError(ErrTransportIO, "start "+ReceiveCommand, err)
	}

	// Wait for command to finish in background
	done := make(chan error, 1)
	go func() {
		done <- s.sshSession.Wait()
	}()

	err := s.Session.SendFile(ctx, filename)

	// Close stdin to signal completion
	s.stdin.Close()

	select {
	case err2 := <-done:
		if err == nil && err2 != nil {
			err = wrapError(ErrTransportIO, ReceiveCommand+" exited", err2)
		}
	case <-ctx.Done():
		if err == nil {
			err = wrapError(ErrCancelled, "waiting for "+ReceiveCommand, ctx.Err())
		}
	}

	return err
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
