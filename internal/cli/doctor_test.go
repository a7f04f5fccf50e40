package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/doctor"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

func decodeDoctor(t *testing.T, out string) DoctorOutput {
	t.Helper()
	env := decode(t, []byte(out))
	require.True(t, env.Success, env.Error)
	b, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var report DoctorOutput
	require.NoError(t, json.Unmarshal(b, &report))
	return report
}

func category(report DoctorOutput, name string) *CategoryOutput {
	for i := range report.Categories {
		if report.Categories[i].Name == name {
			return &report.Categories[i]
		}
	}
	return nil
}

func TestCLI_Doctor(t *testing.T) {
	addr, dialer := testDaemon(t)
	dialer.AddHost("spark-1.lan")
	addConnection(t, addr, "spark-1")

	old := doctorDialer
	doctorDialer = func(*config.Config) sshutil.Dialer { return dialer }
	t.Cleanup(func() { doctorDialer = old })

	out, _, err := runCLI(t, addr, "--json", "doctor", "--remote")
	require.NoError(t, err)
	report := decodeDoctor(t, out)

	daemon := category(report, "DAEMON")
	require.NotNil(t, daemon)
	assert.Equal(t, doctor.StatusPass, daemon.Results[0].Status)

	conns := category(report, "CONNECTIONS")
	require.NotNil(t, conns)
	require.Len(t, conns.Results, 1)
	assert.Contains(t, conns.Results[0].Message, "spark-1")

	remote := category(report, "REMOTE")
	require.NotNil(t, remote)
	for _, r := range remote.Results {
		assert.Equal(t, doctor.StatusPass, r.Status, r.Message)
	}
}

func TestCLI_DoctorDaemonDown(t *testing.T) {
	out, _, err := runCLI(t, "127.0.0.1:1", "--json", "doctor")
	require.NoError(t, err)
	report := decodeDoctor(t, out)

	daemon := category(report, "DAEMON")
	require.NotNil(t, daemon)
	assert.Equal(t, doctor.StatusFail, daemon.Results[0].Status)
	assert.Nil(t, category(report, "CONNECTIONS"))
	assert.False(t, report.Summary.AllClear)
}

func TestOutputDoctorText(t *testing.T) {
	report := DoctorOutput{
		Categories: []CategoryOutput{{
			Name: "SSH",
			Results: []doctor.CheckResult{
				{Status: doctor.StatusPass, Message: "SSH key found"},
				{Status: doctor.StatusWarn, Message: "Insecure permissions on: id_rsa", Suggestion: "chmod 600", Fixable: true},
			},
		}},
		Summary: doctor.Tally{Pass: 1, Warn: 1, Fixable: 1},
	}

	var buf bytes.Buffer
	outputDoctorText(&buf, report, false)
	out := buf.String()

	assert.Contains(t, out, "SSH")
	assert.Contains(t, out, "SSH key found")
	assert.Contains(t, out, "chmod 600")
	assert.Contains(t, out, "1 issue found")
	assert.Contains(t, out, "--fix")

	buf.Reset()
	report.Summary = doctor.Tally{Pass: 2, AllClear: true}
	outputDoctorText(&buf, report, false)
	assert.Contains(t, buf.String(), "Everything looks good")
}

func TestBuildDoctorOutput_CategoryOrder(t *testing.T) {
	checks := []doctor.Check{
		&doctor.DaemonCheck{},
		&doctor.SSHKeyCheck{},
		&doctor.ConfigFileCheck{},
	}
	results := []doctor.CheckResult{
		{Status: doctor.StatusFail},
		{Status: doctor.StatusPass},
		{Status: doctor.StatusWarn, Fixable: true},
	}

	out := buildDoctorOutput(checks, results, nil)

	names := make([]string, len(out.Categories))
	for i, c := range out.Categories {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"CONFIG", "SSH", "DAEMON"}, names)
	assert.Equal(t, doctor.Tally{Pass: 1, Warn: 1, Fail: 1, Fixable: 1}, out.Summary)
}
