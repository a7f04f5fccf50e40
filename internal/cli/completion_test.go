package cli

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLI_CompletionScripts(t *testing.T) {
	tests := []struct {
		shell string
		want  []string
	}{
		{"bash", []string{"# bash completion V2 for dgxops", "__start_dgxops"}},
		{"zsh", []string{"#compdef dgxops", "_dgxops()"}},
		{"fish", []string{"fish completion for dgxops", "complete -c dgxops"}},
		{"powershell", []string{"Register-ArgumentCompleter"}},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			out, _, err := runCLI(t, "127.0.0.1:1", "completion", tt.shell)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestCLI_CompletionRejectsUnknownShell(t *testing.T) {
	_, _, err := runCLI(t, "127.0.0.1:1", "completion", "tcsh")
	require.Error(t, err)
}

func TestCompletionWiring(t *testing.T) {
	for _, c := range []*cobra.Command{connectCmd, statusCmd, opSyncCmd, connectionSetupKeyCmd} {
		assert.NotNil(t, c.ValidArgsFunction, c.Name())
	}
	for _, c := range []*cobra.Command{opKillCmd, opLogsCmd} {
		assert.NotNil(t, c.ValidArgsFunction, c.Name())
	}
}

func TestCompleteConnections(t *testing.T) {
	addr, _ := testDaemon(t)
	addConnection(t, addr, "spark-1")
	addConnection(t, addr, "spark-2")
	addConnection(t, addr, "gateway")

	addrFlag = addr
	t.Cleanup(func() { addrFlag = "" })

	got, directive := completeConnections(connectCmd, nil, "spa")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	assert.Equal(t, []string{"spark-1\toffline", "spark-2\toffline"}, got)

	got, _ = completeConnections(connectCmd, []string{"spark-1"}, "")
	assert.Empty(t, got, "only the first argument is a connection")
}

func TestCompleteOperations(t *testing.T) {
	addr, _ := testDaemon(t)
	addConnection(t, addr, "spark-1")
	out, _, err := runCLI(t, addr, "op", "run", "spark-1", "--name", "setup", "--no-launch", "./setup.sh")
	require.NoError(t, err)
	require.Contains(t, out, "setup")

	addrFlag = addr
	t.Cleanup(func() { addrFlag = "" })

	got, _ := completeOperations(opShowCmd, nil, "")
	require.Len(t, got, 1)
	assert.True(t, strings.HasSuffix(got[0], "\tsetup (pending)"), got[0])
}

func TestCompleteConnections_DaemonDown(t *testing.T) {
	addrFlag = "127.0.0.1:1"
	t.Cleanup(func() { addrFlag = "" })

	got, directive := completeConnections(connectCmd, nil, "")
	assert.Nil(t, got)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
}
