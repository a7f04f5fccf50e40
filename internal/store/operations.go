package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
)

// OperationRepository defines operations for operation persistence.
type OperationRepository interface {
	Create(ctx context.Context, op *models.Operation) error
	Get(ctx context.Context, id string) (*models.Operation, error)
	List(ctx context.Context) ([]*models.Operation, error)
	ListByConnection(ctx context.Context, connectionID string) ([]*models.Operation, error)
	ListByStatus(ctx context.Context, connectionID string, status models.OpStatus) ([]*models.Operation, error)
	Update(ctx context.Context, op *models.Operation) error
	Delete(ctx context.Context, id string) error
	CountByConnection(ctx context.Context, connectionID string) (int, error)
}

type operationRepository struct {
	db *sqlx.DB
}

// NewOperationRepository creates a new operation repository.
func NewOperationRepository(db *sqlx.DB) OperationRepository {
	return &operationRepository{db: db}
}

// Create inserts op at version 1.
func (r *operationRepository) Create(ctx context.Context, op *models.Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	op.CreatedAt = now
	op.UpdatedAt = now
	op.Version = 1

	query := `
		INSERT INTO operations (
			id, connection_id, name, type, category, status, command, working_dir, port, url,
			websocket_url, model_name, epochs, pid, log_file, progress, progress_message,
			error_message, exit_code, restart_count, started_at, completed_at, duration,
			version, created_at, updated_at
		) VALUES (
			:id, :connection_id, :name, :type, :category, :status, :command, :working_dir, :port, :url,
			:websocket_url, :model_name, :epochs, :pid, :log_file, :progress, :progress_message,
			:error_message, :exit_code, :restart_count, :started_at, :completed_at, :duration,
			:version, :created_at, :updated_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, op); err != nil {
		return storeError(err, "Failed to create operation")
	}
	return nil
}

// Get retrieves an operation by id.
func (r *operationRepository) Get(ctx context.Context, id string) (*models.Operation, error) {
	var op models.Operation
	err := r.db.GetContext(ctx, &op, `SELECT * FROM operations WHERE id = ?`, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Operation", id)
		}
		return nil, storeError(err, "Failed to get operation")
	}
	return &op, nil
}

// List returns every operation, newest first.
func (r *operationRepository) List(ctx context.Context) ([]*models.Operation, error) {
	ops := []*models.Operation{}
	if err := r.db.SelectContext(ctx, &ops, `SELECT * FROM operations ORDER BY created_at DESC`); err != nil {
		return nil, storeError(err, "Failed to list operations")
	}
	return ops, nil
}

// ListByConnection returns a connection's operations, newest first.
func (r *operationRepository) ListByConnection(ctx context.Context, connectionID string) ([]*models.Operation, error) {
	ops := []*models.Operation{}
	err := r.db.SelectContext(ctx, &ops,
		`SELECT * FROM operations WHERE connection_id = ? ORDER BY created_at DESC`, connectionID)
	if err != nil {
		return nil, storeError(err, "Failed to list operations")
	}
	return ops, nil
}

// ListByStatus returns a connection's operations in the given status, oldest first.
func (r *operationRepository) ListByStatus(ctx context.Context, connectionID string, status models.OpStatus) ([]*models.Operation, error) {
	ops := []*models.Operation{}
	err := r.db.SelectContext(ctx, &ops,
		`SELECT * FROM operations WHERE connection_id = ? AND status = ? ORDER BY created_at ASC`,
		connectionID, status)
	if err != nil {
		return nil, storeError(err, "Failed to list operations")
	}
	return ops, nil
}

// Update writes op if its Version still matches the stored row, then
// bumps op.Version. A mismatch yields ErrStaleVersion.
func (r *operationRepository) Update(ctx context.Context, op *models.Operation) error {
	now := time.Now().UTC()
	expected := op.Version

	query := `
		UPDATE operations SET
			name = ?, status = ?, command = ?, working_dir = ?, port = ?, url = ?,
			websocket_url = ?, model_name = ?, epochs = ?, pid = ?, log_file = ?,
			progress = ?, progress_message = ?, error_message = ?, exit_code = ?,
			restart_count = ?, started_at = ?, completed_at = ?, duration = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		op.Name, op.Status, op.Command, op.WorkingDir, op.Port, op.URL,
		op.WebsocketURL, op.ModelName, op.Epochs, op.PID, op.LogFile,
		op.Progress, op.ProgressMessage, op.ErrorMessage, op.ExitCode,
		op.RestartCount, utcPtr(op.StartedAt), utcPtr(op.CompletedAt), op.Duration,
		now, op.ID, expected)
	if err != nil {
		return storeError(err, "Failed to update operation")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err, "Failed to read update result")
	}
	if n == 0 {
		var exists int
		if err := r.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM operations WHERE id = ?`, op.ID); err != nil {
			return storeError(err, "Failed to look up operation")
		}
		if exists == 0 {
			return notFound("Operation", op.ID)
		}
		return errors.WrapWithCode(ErrStaleVersion, errors.ErrState,
			fmt.Sprintf("Operation '%s' changed while this update was in flight", op.ID),
			"Re-read the operation and try again")
	}

	op.Version = expected + 1
	op.UpdatedAt = now
	return nil
}

// Delete removes an operation.
func (r *operationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id)
	if err != nil {
		return storeError(err, "Failed to delete operation")
	}
	return expectOne(res, "Operation", id)
}

// CountByConnection returns how many operations belong to a connection.
func (r *operationRepository) CountByConnection(ctx context.Context, connectionID string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM operations WHERE connection_id = ?`, connectionID); err != nil {
		return 0, storeError(err, "Failed to count operations")
	}
	return n, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
