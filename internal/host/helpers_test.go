package host_test

import (
	sshtest "github.com/rileyhilliard/dgxops/pkg/sshutil/testing"
)

func hosttestClient(host string) *sshtest.MockClient {
	return sshtest.NewMockClient(host)
}

func cannedOutput(stdout string) sshtest.CommandResponse {
	return sshtest.CommandResponse{Stdout: []byte(stdout)}
}

func failure(err error) sshtest.CommandResponse {
	return sshtest.CommandResponse{Error: err, ExitCode: -1}
}
