package sshutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rileyhilliard/dgxops/internal/errors"
)

// Forward listens on localAddr and pipes each accepted connection to
// remoteAddr through client. It blocks until ctx ends, then closes the
// listener and every open tunnel.
//
// ready, if non-nil, receives the bound listener address once listening.
func Forward(ctx context.Context, client SSHClient, localAddr, remoteAddr string, ready chan<- net.Addr) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", localAddr)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Failed to listen on %s", localAddr),
			"Pick a free local port")
	}
	if ready != nil {
		ready <- listener.Addr()
	}

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		localConn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return errors.WrapWithCode(err, errors.ErrSSH, "Tunnel listener stopped", "")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleForward(ctx, client, localConn, remoteAddr)
		}()
	}
}

// handleForward copies data both ways between one local connection and a
// fresh remote one until either side closes or ctx ends.
func handleForward(ctx context.Context, client SSHClient, localConn net.Conn, remoteAddr string) {
	defer localConn.Close()

	remoteConn, err := client.Dial("tcp", remoteAddr)
	if err != nil {
		log.Warn("Failed to connect to remote %s: %v", remoteAddr, err)
		return
	}
	defer remoteConn.Close()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(remoteConn, localConn)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(localConn, remoteConn)
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
