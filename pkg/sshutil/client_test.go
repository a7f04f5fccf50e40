package sshutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	dgxerrors "github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveTarget returns the host for tests that need a real SSH server.
// They are skipped unless DGXOPS_TEST_SSH_HOST is set.
func liveTarget(t *testing.T) Target {
	t.Helper()
	host := os.Getenv("DGXOPS_TEST_SSH_HOST")
	if host == "" {
		t.Skip("Skipping SSH test: DGXOPS_TEST_SSH_HOST not set")
	}
	return Target{Host: host, User: os.Getenv("DGXOPS_TEST_SSH_USER")}
}

// withSSHConfig points HOME at a temp dir holding the given ~/.ssh/config.
func withSSHConfig(t *testing.T, content string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh"), 0o700))
	if content != "" {
		require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "config"), []byte(content), 0o600))
	}
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "spark", Target{Host: "spark"}.String())
	assert.Equal(t, "nvidia@spark", Target{Host: "spark", User: "nvidia"}.String())
	assert.Equal(t, "nvidia@spark:2222", Target{Host: "spark", User: "nvidia", Port: 2222}.String())
	assert.Equal(t, "spark", Target{Host: "spark", Port: 22}.String())
}

func TestResolveTarget(t *testing.T) {
	withSSHConfig(t, `
Host spark
    HostName 192.168.1.50
    User nvidia
    Port 2200
    IdentityFile ~/.ssh/id_spark
`)
	t.Setenv("USER", "alice")
	home := homeDir()

	tests := []struct {
		name   string
		target Target
		want   endpoint
	}{
		{"plain address", Target{Host: "10.0.0.5"}, endpoint{host: "10.0.0.5", port: 22, user: "alice"}},
		{"alias", Target{Host: "spark"},
			endpoint{host: "192.168.1.50", port: 2200, user: "nvidia", identity: filepath.Join(home, ".ssh", "id_spark")}},
		{"explicit fields win", Target{Host: "spark", User: "root", Port: 22, KeyPath: "/keys/id"},
			endpoint{host: "192.168.1.50", port: 22, user: "root", identity: "/keys/id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveTarget(tt.target))
		})
	}
	assert.Equal(t, "192.168.1.50:2200", resolveTarget(Target{Host: "spark"}).addr())
}

func TestResolveTarget_AliasAfterMatch(t *testing.T) {
	withSSHConfig(t, `
Match host *.corp
    User admin

Host spark
    HostName 192.168.1.50
`)
	t.Setenv("USER", "alice")

	ep := resolveTarget(Target{Host: "spark"})
	assert.Equal(t, "spark", ep.host, "entries after Match are not read")
	assert.Equal(t, "alice", ep.user)
}

func TestDialTarget_NoAuth(t *testing.T) {
	withSSHConfig(t, "")
	t.Setenv("SSH_AUTH_SOCK", "")

	_, err := DialTarget(context.Background(), Target{Host: "127.0.0.1", Port: 1}, DialOptions{Timeout: time.Second})
	require.Error(t, err)
	assert.True(t, dgxerrors.IsCode(err, dgxerrors.ErrSSH))
	assert.Contains(t, err.Error(), "No SSH auth methods")
}

func TestDialTarget_Unreachable(t *testing.T) {
	withSSHConfig(t, "")
	t.Setenv("SSH_AUTH_SOCK", "")
	// Any parseable key gets past auth setup; the dial itself must fail.
	writeTestKey(t, filepath.Join(homeDir(), ".ssh", "id_ed25519"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := DialTarget(ctx, Target{Host: "127.0.0.1", Port: 1}, DialOptions{Timeout: time.Second})
	require.Error(t, err)
	assert.True(t, dgxerrors.IsCode(err, dgxerrors.ErrSSH))
	assert.Contains(t, err.Error(), "127.0.0.1:1")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExpandPath(t *testing.T) {
	home := homeDir()
	assert.Equal(t, filepath.Join(home, "keys", "id"), expandPath("~/keys/id"))
	assert.Equal(t, "/abs/id", expandPath("/abs/id"))
	assert.Equal(t, "rel/id", expandPath("rel/id"))
	assert.Equal(t, "~other/id", expandPath("~other/id"))
}

func TestDialTarget_Live(t *testing.T) {
	target := liveTarget(t)

	client, err := DialTarget(context.Background(), target, DialOptions{Timeout: 10 * time.Second, StrictHostKeyChecking: false})
	require.NoError(t, err)
	defer client.Close()

	stdout, _, code, err := client.Exec("echo hello")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, string(stdout), "hello")

	_, _, code, err = client.Exec("exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, code, err = client.ExecContext(ctx, "sleep 5")
	require.Error(t, err)
	assert.Equal(t, -1, code)
}
