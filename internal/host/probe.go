package host

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

// ProbeFailReason is why a dial or keepalive failed, coarse enough to
// show a person.
type ProbeFailReason int

const (
	ProbeFailUnknown ProbeFailReason = iota
	ProbeFailTimeout
	ProbeFailRefused
	ProbeFailUnreachable
	ProbeFailAuth
	ProbeFailHostKey
	ProbeFailClosed
)

var probeFailNames = [...]string{
	ProbeFailUnknown:     "unknown error",
	ProbeFailTimeout:     "connection timed out",
	ProbeFailRefused:     "connection refused",
	ProbeFailUnreachable: "host unreachable",
	ProbeFailAuth:        "authentication failed",
	ProbeFailHostKey:     "host key verification failed",
	ProbeFailClosed:      "connection closed",
}

func (r ProbeFailReason) String() string {
	if r < 0 || int(r) >= len(probeFailNames) {
		return probeFailNames[ProbeFailUnknown]
	}
	return probeFailNames[r]
}

// probeRules map error text to a reason. The first match wins, so the
// timeout rule shadows "closed" for "use of closed network connection
// (i/o timeout)".
var probeRules = []struct {
	reason  ProbeFailReason
	needles []string
}{
	{ProbeFailTimeout, []string{"timeout", "deadline exceeded"}},
	{ProbeFailRefused, []string{"connection refused"}},
	{ProbeFailUnreachable, []string{"no route to host", "network is unreachable", "host is down"}},
	{ProbeFailAuth, []string{"unable to authenticate", "no supported methods", "permission denied", "authentication failed"}},
	{ProbeFailHostKey, []string{"host key"}},
	{ProbeFailClosed, []string{"closed", "eof"}},
}

// ProbeError is a failed probe or dial with its classified reason.
type ProbeError struct {
	Host   string
	Reason ProbeFailReason
	Cause  error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe %s failed: %s", e.Host, e.Reason)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *ProbeError) Unwrap() error { return e.Cause }

// classifyProbeError wraps err with the reason its text points to. It
// returns nil for a nil err.
func classifyProbeError(host string, err error) *ProbeError {
	if err == nil {
		return nil
	}
	pe := &ProbeError{Host: host, Cause: err}
	text := strings.ToLower(err.Error())
	for _, rule := range probeRules {
		for _, n := range rule.needles {
			if strings.Contains(text, n) {
				pe.Reason = rule.reason
				return pe
			}
		}
	}
	return pe
}

// Probe sends an OpenSSH keepalive on an open session and returns the
// round trip. It never outlives timeout or ctx.
func Probe(ctx context.Context, client sshutil.SSHClient, timeout time.Duration) (time.Duration, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return 0, &ProbeError{Host: client.GetHost(), Reason: ProbeFailTimeout, Cause: ctx.Err()}
	case err := <-done:
		if err != nil {
			return 0, classifyProbeError(client.GetHost(), err)
		}
		return time.Since(start), nil
	}
}

// ProbeTarget dials target and hangs up at once, returning how long the
// connect took. It checks a connection's settings before they're saved.
func ProbeTarget(ctx context.Context, dialer sshutil.Dialer, target sshutil.Target, timeout time.Duration) (time.Duration, error) {
	if timeout <= 0 {
		timeout = sshutil.DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	client, err := dialer.Dial(ctx, target)
	if err != nil {
		return 0, classifyProbeError(target.String(), err)
	}
	took := time.Since(start)
	client.Close() //nolint:errcheck // probe only
	return took, nil
}
