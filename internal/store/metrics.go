package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rileyhilliard/dgxops/internal/models"
)

// MetricsRepository defines operations for metric sample persistence.
type MetricsRepository interface {
	Insert(ctx context.Context, s *models.Sample) error
	Since(ctx context.Context, connectionID string, since time.Time) ([]*models.Sample, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type metricsRepository struct {
	db *sqlx.DB
}

// NewMetricsRepository creates a new metrics repository.
func NewMetricsRepository(db *sqlx.DB) MetricsRepository {
	return &metricsRepository{db: db}
}

// Insert stores s and sets its ID.
func (r *metricsRepository) Insert(ctx context.Context, s *models.Sample) error {
	row := *s
	row.Timestamp = s.Timestamp.UTC()

	query := `
		INSERT INTO metric_samples (
			connection_id, timestamp, gpu_name, gpu_count, gpu_utilization, memory_used_mb,
			memory_total_mb, temperature_c, power_draw_w, power_limit_w, system_mem_used_mb,
			system_mem_total_mb, interface, rx_bytes, tx_bytes, rx_packets, tx_packets,
			session_rx_bytes, session_tx_bytes, session_rx_packets, session_tx_packets
		) VALUES (
			:connection_id, :timestamp, :gpu_name, :gpu_count, :gpu_utilization, :memory_used_mb,
			:memory_total_mb, :temperature_c, :power_draw_w, :power_limit_w, :system_mem_used_mb,
			:system_mem_total_mb, :interface, :rx_bytes, :tx_bytes, :rx_packets, :tx_packets,
			:session_rx_bytes, :session_tx_bytes, :session_rx_packets, :session_tx_packets
		)
	`
	res, err := r.db.NamedExecContext(ctx, query, &row)
	if err != nil {
		return storeError(err, "Failed to store metric sample")
	}
	if id, err := res.LastInsertId(); err == nil {
		s.ID = id
	}
	return nil
}

// Since returns a connection's samples at or after since, oldest first.
func (r *metricsRepository) Since(ctx context.Context, connectionID string, since time.Time) ([]*models.Sample, error) {
	samples := []*models.Sample{}
	err := r.db.SelectContext(ctx, &samples,
		`SELECT * FROM metric_samples WHERE connection_id = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		connectionID, since.UTC())
	if err != nil {
		return nil, storeError(err, "Failed to load metric history")
	}
	return samples, nil
}

// Prune deletes samples older than before and reports how many went.
func (r *metricsRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, storeError(err, "Failed to prune metric samples")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
