package logger

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		debugEnv  string
		expectDbg bool
	}{
		{name: "info level hides debug", level: "info", expectDbg: false},
		{name: "debug level shows debug", level: "debug", expectDbg: true},
		{name: "DGXOPS_DEBUG forces debug", level: "warn", debugEnv: "1", expectDbg: true},
		{name: "invalid level falls back to info", level: "loud", expectDbg: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DGXOPS_DEBUG", tt.debugEnv)

			var buf bytes.Buffer
			Configure(Options{Level: tt.level, Output: &buf})
			defer Configure(Options{})

			l := New("test")
			l.Debug("debug message %s", "arg")

			if tt.expectDbg {
				assert.Contains(t, buf.String(), "debug message arg")
			} else {
				assert.NotContains(t, buf.String(), "debug message arg")
			}
		})
	}
}

func TestComponentLogger_JSONIncludesComponent(t *testing.T) {
	t.Setenv("DGXOPS_DEBUG", "")

	var buf bytes.Buffer
	Configure(Options{Level: "info", Format: "json", Output: &buf})
	defer Configure(Options{})

	New("registry").Warn("connection %s dropped", "spark-1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "connection spark-1 dropped", entry["msg"])
}

func TestNoop(t *testing.T) {
	l := Noop()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
	})
}

func TestBufferLogger(t *testing.T) {
	l := NewBufferLogger()

	l.Info("hello %d", 1)
	l.Warn("careful")

	assert.True(t, l.HasLevel("info"))
	assert.True(t, l.HasLevel("warn"))
	assert.False(t, l.HasLevel("error"))
	assert.True(t, l.Contains("hello 1"))
	require.Len(t, l.Messages(), 2)

	l.Clear()
	assert.Empty(t, l.Messages())
}

func TestBufferLogger_Concurrent(t *testing.T) {
	l := NewBufferLogger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Info("msg %d", i)
		}(i)
	}
	wg.Wait()

	assert.Len(t, l.Messages(), 50)
}
