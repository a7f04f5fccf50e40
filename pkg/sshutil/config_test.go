package sshutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSHConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func TestParseSSHConfigFile(t *testing.T) {
	t.Setenv("HOME", "/home/dev")
	p := writeSSHConfig(t, `
Host spark-2
    HostName 10.0.0.22
    User nvidia

Host spark-1 spark-main
    HostName 10.0.0.21
    User nvidia
    Port 2222
    IdentityFile ~/.ssh/dgx_ed25519

Host *
    ServerAliveInterval 60

Host lab-? !bastion
    User lab
`)

	hosts, err := ParseSSHConfigFile(p)
	require.NoError(t, err)

	aliases := make([]string, len(hosts))
	for i, h := range hosts {
		aliases[i] = h.Alias
	}
	assert.Equal(t, []string{"spark-1", "spark-2", "spark-main"}, aliases)

	assert.Equal(t, HostEntry{
		Alias:        "spark-1",
		Hostname:     "10.0.0.21",
		User:         "nvidia",
		Port:         2222,
		IdentityFile: "/home/dev/.ssh/dgx_ed25519",
	}, hosts[0])
	assert.Equal(t, HostEntry{Alias: "spark-2", Hostname: "10.0.0.22", User: "nvidia"}, hosts[1])
	assert.Equal(t, "10.0.0.21", hosts[2].Hostname, "every pattern of a Host line shares its settings")
}

func TestParseSSHConfigFile_Edges(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"empty", "", nil},
		{"comments only", "# nothing\n   # here\n", nil},
		{"duplicate alias", "Host a\n  User one\nHost a\n  User two\n", []string{"a"}},
		{"match block cut", "Host before\n  User x\nMatch host after\n  User y\nHost after\n", []string{"before"}},
		{"lowercase match", "Host a\nmatch all\nHost b\n", []string{"a"}},
		{"dots and dashes", "Host gpu.lab-01_b\n  HostName 10.1.1.1\n", []string{"gpu.lab-01_b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hosts, err := ParseSSHConfigFile(writeSSHConfig(t, tt.content))
			require.NoError(t, err)
			var got []string
			for _, h := range hosts {
				got = append(got, h.Alias)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSSHConfigFile_DuplicateKeepsFirst(t *testing.T) {
	hosts, err := ParseSSHConfigFile(writeSSHConfig(t, "Host a\n  User one\nHost a\n  User two\n"))
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "one", hosts[0].User)
}

func TestParseSSHConfigFile_Missing(t *testing.T) {
	hosts, err := ParseSSHConfigFile(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.Nil(t, hosts)
}

func TestReadSSHConfig_MatchLine(t *testing.T) {
	p := writeSSHConfig(t, "Host a\n  User x\n\nMatch exec \"true\"\n  User y\n")
	content, line, err := readSSHConfig(p)
	require.NoError(t, err)
	assert.Equal(t, 4, line)
	assert.NotContains(t, string(content), "Match")

	p = writeSSHConfig(t, "Host a\n")
	_, line, err = readSSHConfig(p)
	require.NoError(t, err)
	assert.Zero(t, line)
}

func TestHostEntry_Description(t *testing.T) {
	tests := []struct {
		entry HostEntry
		want  string
	}{
		{HostEntry{Alias: "spark-1", Hostname: "10.0.0.21", User: "nvidia", Port: 2222}, "nvidia@10.0.0.21:2222"},
		{HostEntry{Alias: "spark-1", Hostname: "10.0.0.21", Port: 22}, "10.0.0.21"},
		{HostEntry{Alias: "spark-1", User: "nvidia"}, "nvidia@spark-1"},
		{HostEntry{Alias: "spark-1"}, "spark-1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.entry.Description())
	}
}
