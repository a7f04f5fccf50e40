package cli

import (
	"testing"
	"time"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionFlags_Merge(t *testing.T) {
	existing := &models.Connection{
		Name:       "spark-1",
		Hostname:   "10.0.0.21",
		Username:   "ubuntu",
		SSHKeyPath: "~/.ssh/dgx",
		Port:       22,
	}

	tests := []struct {
		name  string
		flags ConnectionFlags
		want  models.ConnectionInput
	}{
		{
			name:  "no flags keeps everything",
			flags: ConnectionFlags{},
			want:  models.ConnectionInput{Name: "spark-1", Hostname: "10.0.0.21", Username: "ubuntu", SSHKeyPath: "~/.ssh/dgx", Port: 22},
		},
		{
			name:  "host and port",
			flags: ConnectionFlags{Host: "10.0.0.99", Port: 2222},
			want:  models.ConnectionInput{Name: "spark-1", Hostname: "10.0.0.99", Username: "ubuntu", SSHKeyPath: "~/.ssh/dgx", Port: 2222},
		},
		{
			name:  "rename",
			flags: ConnectionFlags{Name: "spark-a", User: "ops"},
			want:  models.ConnectionInput{Name: "spark-a", Hostname: "10.0.0.21", Username: "ops", SSHKeyPath: "~/.ssh/dgx", Port: 22},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flags.merge(existing))
		})
	}
}

func TestInputFromSSHEntry(t *testing.T) {
	t.Setenv("USER", "local")

	tests := []struct {
		name  string
		entry sshutil.HostEntry
		want  models.ConnectionInput
	}{
		{
			name:  "full entry",
			entry: sshutil.HostEntry{Alias: "spark-1", Hostname: "10.0.0.21", User: "ops", Port: 2222, IdentityFile: "~/.ssh/dgx"},
			want:  models.ConnectionInput{Name: "spark-1", Hostname: "10.0.0.21", Username: "ops", SSHKeyPath: "~/.ssh/dgx", Port: 2222},
		},
		{
			name:  "alias only",
			entry: sshutil.HostEntry{Alias: "spark-2"},
			want:  models.ConnectionInput{Name: "spark-2", Hostname: "spark-2", Username: "local"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inputFromSSHEntry(tt.entry))
		})
	}
}

func TestPickSSHEntries(t *testing.T) {
	entries := []sshutil.HostEntry{
		{Alias: "spark-1", Hostname: "10.0.0.21"},
		{Alias: "spark-2", Hostname: "10.0.0.22"},
		{Alias: "jump"},
	}

	all, err := pickSSHEntries(entries, nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	picked, err := pickSSHEntries(entries, []string{"spark-2", "spark-1"}, false)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "spark-2", picked[0].Alias)
	assert.Equal(t, "spark-1", picked[1].Alias)

	_, err = pickSSHEntries(entries, []string{"spark-9"}, false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestConnectionRows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seen := now.Add(-90 * time.Minute)

	rows := connectionRows([]*models.Connection{
		{Name: "spark-1", Hostname: "10.0.0.21", Username: "ubuntu", Port: 22, Status: models.StatusOnline, LastConnectedAt: &seen},
		{Name: "spark-2", Hostname: "10.0.0.22", Username: "ubuntu", Port: 2222, Status: models.StatusError, ErrorMessage: "Can't reach 'spark-2'"},
	}, now)

	require.Len(t, rows, 2)
	assert.Equal(t, "online", rows[0].Status)
	assert.Equal(t, "ubuntu@10.0.0.21:22", rows[0].Address)
	assert.Equal(t, "1h ago", rows[0].LastSeen)
	assert.Equal(t, "never", rows[1].LastSeen)
	assert.Equal(t, "Can't reach 'spark-2'", rows[1].Error)
}

func TestFormatAgo(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{47 * time.Hour, "47h ago"},
		{72 * time.Hour, "3d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAgo(tt.d))
		})
	}
}

func TestConnectionTarget(t *testing.T) {
	c := &models.Connection{Hostname: "10.0.0.5", Username: "dgx", Port: 2222, SSHKeyPath: "~/.ssh/spark"}
	got := connectionTarget(c)
	assert.Equal(t, "10.0.0.5", got.Host)
	assert.Equal(t, "dgx", got.User)
	assert.Equal(t, 2222, got.Port)
	assert.Equal(t, "~/.ssh/spark", got.KeyPath)
}
