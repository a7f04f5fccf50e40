package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnv_Connected(t *testing.T) {
	env := NewEnv(t)

	conn, client := env.Connected(t, "spark-1")
	require.NotNil(t, client)
	assert.Equal(t, models.StatusOnline, env.Registry.Status(conn.ID).Status)
	assert.Equal(t, 1, env.Dialer.Dials("spark-1.lan"))
}

func TestEnv_AddUnreachable(t *testing.T) {
	env := NewEnv(t)

	conn := env.AddUnreachable(t, "spark-2", errors.New("connection refused"))
	_, err := env.Registry.Connect(context.Background(), conn.ID)
	require.Error(t, err)
	assert.Equal(t, models.StatusError, env.Registry.Status(conn.ID).Status)
}
