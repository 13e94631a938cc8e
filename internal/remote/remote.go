// Package remote runs commands and moves files on managed servers.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/johnngondi/vito/internal/models"
)

// Executor is the capability the lifecycle jobs use to reach a server.
// Implementations must tolerate concurrent sessions to the same host.
type Executor interface {
	Run(ctx context.Context, server models.Server, command string) (Result, error)
	Upload(ctx context.Context, server models.Server, localPath, remotePath string) error
	Download(ctx context.Context, server models.Server, remotePath string) ([]byte, error)
}

// Result is the outcome of a command that ran to completion on the server.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports a zero exit status.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// TransportError means the server could not be reached or the session broke
// before the command finished. Retrying may succeed.
type TransportError struct {
	Op      string
	Server  string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s on %s timed out: %v", e.Op, e.Server, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Server, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CommandError means the server ran the command and rejected it. Retrying
// will not help.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no output"
	}
	return fmt.Sprintf("remote command exited with status %d: %s", e.ExitCode, msg)
}

// Check converts a non-zero exit status into a *CommandError.
func Check(command string, res Result) error {
	if res.OK() {
		return nil
	}
	return &CommandError{Command: command, ExitCode: res.ExitCode, Stderr: res.Stderr}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
