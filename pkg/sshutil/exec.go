package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"golang.org/x/crypto/ssh"
)

func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return c.ExecContext(context.Background(), cmd)
}

// ExecContext runs cmd and buffers its output. When ctx ends first the
// session is killed and exitCode is -1.
func (c *Client) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	var out, errOut bytes.Buffer
	if exitCode, err = c.run(ctx, cmd, &out, &errOut); err != nil {
		return nil, nil, -1, err
	}
	return out.Bytes(), errOut.Bytes(), exitCode, nil
}

func (c *Client) ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error) {
	return c.run(context.Background(), cmd, stdout, stderr)
}

// run executes cmd in a fresh session. A non-zero exit is a result, not
// an error.
func (c *Client) run(ctx context.Context, cmd string, stdout, stderr io.Writer) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, deadlineError(cmd, err)
	}

	sess, err := c.Client.NewSession()
	if err != nil {
		return -1, errors.WrapWithCode(err, errors.ErrSSH,
			"Couldn't open an SSH session",
			"The connection may have dropped. Reconnect and retry")
	}
	defer sess.Close()
	sess.Stdout, sess.Stderr = stdout, stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		sess.Close()
		return -1, deadlineError(cmd, ctx.Err())
	case err = <-done:
	}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		return 0, nil
	case stderrors.As(err, &exitErr):
		return exitErr.ExitStatus(), nil
	}
	return -1, errors.WrapWithCode(err, errors.ErrExec,
		fmt.Sprintf("Couldn't run %q on the host", cmd),
		"Check the command exists there")
}

func deadlineError(cmd string, cause error) error {
	return errors.WrapWithCode(cause, errors.ErrSSH,
		fmt.Sprintf("Remote command didn't finish in time: %s", cmd),
		"The host may be overloaded or the connection stalled. Try reconnecting")
}
