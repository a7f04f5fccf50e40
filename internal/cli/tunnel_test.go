package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortSpec(t *testing.T) {
	tests := []struct {
		spec    string
		local   int
		remote  int
		wantErr bool
	}{
		{spec: "8188", local: 8188, remote: 8188},
		{spec: "9000:8188", local: 9000, remote: 8188},
		{spec: "0", wantErr: true},
		{spec: "70000", wantErr: true},
		{spec: "abc", wantErr: true},
		{spec: "1:2:3", wantErr: true},
		{spec: ":8188", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			local, remote, err := parsePortSpec(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.local, local)
			assert.Equal(t, tt.remote, remote)
		})
	}
}
