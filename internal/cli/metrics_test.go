package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/rileyhilliard/dgxops/internal/host"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestPrintMetrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sample := &models.Sample{
		Timestamp:        now.Add(-3 * time.Second),
		GPUName:          "NVIDIA GB10",
		GPUCount:         1,
		GPUUtilization:   73.5,
		MemoryUsedMB:     1024,
		MemoryTotalMB:    2048,
		TemperatureC:     61,
		PowerDrawW:       42,
		SystemMemUsedMB:  1024,
		SystemMemTotalMB: 2048,
		Interface:        "enP7s7",
		SessionRxBytes:   2048,
	}

	var buf bytes.Buffer
	printMetrics(&buf, MetricsView{
		Current: &models.MetricsSnapshot{ConnectionID: "c1", Sample: sample},
		History: []*models.Sample{sample, sample, sample},
	}, now)

	out := buf.String()
	assert.Contains(t, out, "NVIDIA GB10")
	assert.Contains(t, out, "61°C")
	assert.Contains(t, out, "42W")
	assert.Contains(t, out, "1.0 GB / 2.0 GB")
	assert.Contains(t, out, "enP7s7")
	assert.Contains(t, out, "3 samples")
}

func TestPrintMetrics_NoSample(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer
	printMetrics(&buf, MetricsView{Current: &models.MetricsSnapshot{
		ConnectionID: "c1",
		Error:        "nvidia-smi: command not found",
		ErrorAt:      now.Add(-time.Minute),
	}}, now)

	assert.Contains(t, buf.String(), "nvidia-smi: command not found")
	assert.Contains(t, buf.String(), "No samples yet")
}

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ping := now.Add(-5 * time.Minute)

	var buf bytes.Buffer
	printStatus(&buf, &service.StatusView{
		ConnectionID: "c1",
		Name:         "spark-1",
		State:        host.State{Status: models.StatusOnline, LastPing: &ping},
	}, now)
	assert.Contains(t, buf.String(), "spark-1  online")
	assert.Contains(t, buf.String(), "last ping: 5m ago")

	buf.Reset()
	printStatus(&buf, &service.StatusView{
		Name:  "spark-2",
		State: host.State{Status: models.StatusError, ErrorMessage: "host key mismatch"},
	}, now)
	assert.Contains(t, buf.String(), "error: host key mismatch")
	assert.Contains(t, buf.String(), "last ping: never")
}
