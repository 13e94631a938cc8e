package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"time"

	"github.com/johnngondi/vito/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig configures how the control plane authenticates to servers.
type SSHConfig struct {
	PrivateKey     []byte
	KnownHostsPath string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// SSHExecutor opens one SSH connection per call.
type SSHExecutor struct {
	signer         ssh.Signer
	hostKey        ssh.HostKeyCallback
	connectTimeout time.Duration
	commandTimeout time.Duration
}

// NewSSHExecutor parses the control plane's private key and host key policy.
func NewSSHExecutor(cfg SSHConfig) (*SSHExecutor, error) {
	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		hostKey, err = knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	} else {
		log.Warn().Msg("SSH_KNOWN_HOSTS_PATH not set, server host keys are not verified")
	}

	return &SSHExecutor{
		signer:         signer,
		hostKey:        hostKey,
		connectTimeout: cfg.ConnectTimeout,
		commandTimeout: cfg.CommandTimeout,
	}, nil
}

// NewSSHExecutorFromFile reads the private key from disk.
func NewSSHExecutorFromFile(keyPath string, cfg SSHConfig) (*SSHExecutor, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	cfg.PrivateKey = key
	return NewSSHExecutor(cfg)
}

func (e *SSHExecutor) dial(ctx context.Context, server models.Server) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            server.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(e.signer)},
		HostKeyCallback: e.hostKey,
		Timeout:         e.connectTimeout,
	}

	addr := server.Address()
	dialer := net.Dialer{Timeout: e.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, transportErr("connect", server, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, transportErr("handshake", server, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Run executes command and waits for it, bounded by the command timeout.
func (e *SSHExecutor) Run(ctx context.Context, server models.Server, command string) (Result, error) {
	return e.run(ctx, server, command, nil, nil)
}

// Upload streams a local file into remotePath.
func (e *SSHExecutor) Upload(ctx context.Context, server models.Server, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", Quote(path.Dir(remotePath)), Quote(remotePath))
	res, err := e.run(ctx, server, cmd, f, nil)
	if err != nil {
		return err
	}
	return Check(cmd, res)
}

// Download reads remotePath into memory.
func (e *SSHExecutor) Download(ctx context.Context, server models.Server, remotePath string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := "cat " + Quote(remotePath)
	res, err := e.run(ctx, server, cmd, nil, &buf)
	if err != nil {
		return nil, err
	}
	if err := Check(cmd, res); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *SSHExecutor) run(ctx context.Context, server models.Server, command string, stdin io.Reader, stdout io.Writer) (Result, error) {
	if e.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.commandTimeout)
		defer cancel()
	}

	client, err := e.dial(ctx, server)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, transportErr("session", server, err)
	}
	defer session.Close()

	var out, stderr bytes.Buffer
	session.Stdin = stdin
	session.Stderr = &stderr
	if stdout != nil {
		session.Stdout = stdout
	} else {
		session.Stdout = &out
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return Result{}, transportErr("run", server, ctx.Err())
	}

	res := Result{Stdout: out.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	return res, transportErr("run", server, err)
}

func transportErr(op string, server models.Server, err error) error {
	te := &TransportError{Op: op, Server: server.Address(), Err: err}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		te.Timeout = true
	}
	return te
}
