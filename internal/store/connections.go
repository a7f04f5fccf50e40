package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
)

// ConnectionRepository defines operations for connection persistence.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.Connection) error
	Get(ctx context.Context, id string) (*models.Connection, error)
	GetByName(ctx context.Context, name string) (*models.Connection, error)
	List(ctx context.Context) ([]*models.Connection, error)
	Update(ctx context.Context, conn *models.Connection) error
	MarkConnected(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}

type connectionRepository struct {
	db *sqlx.DB
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *sqlx.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

// Create inserts conn, assigning an id and timestamps.
func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	if conn.Port == 0 {
		conn.Port = models.DefaultSSHPort
	}

	query := `
		INSERT INTO connections (id, name, hostname, username, ssh_key_path, port, is_active, last_connected_at, created_at, updated_at)
		VALUES (:id, :name, :hostname, :username, :ssh_key_path, :port, :is_active, :last_connected_at, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, conn); err != nil {
		if isUniqueViolation(err) {
			return errors.WrapWithCode(err, errors.ErrValidation,
				fmt.Sprintf("A connection named '%s' already exists", conn.Name),
				"Pick a different name")
		}
		return storeError(err, "Failed to create connection")
	}
	return nil
}

// Get retrieves a connection by id.
func (r *connectionRepository) Get(ctx context.Context, id string) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.GetContext(ctx, &conn, `SELECT * FROM connections WHERE id = ?`, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Connection", id)
		}
		return nil, storeError(err, "Failed to get connection")
	}
	return &conn, nil
}

// GetByName retrieves a connection by its display name.
func (r *connectionRepository) GetByName(ctx context.Context, name string) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.GetContext(ctx, &conn, `SELECT * FROM connections WHERE name = ?`, name)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Connection", name)
		}
		return nil, storeError(err, "Failed to get connection")
	}
	return &conn, nil
}

// List returns all connections ordered by name.
func (r *connectionRepository) List(ctx context.Context) ([]*models.Connection, error) {
	conns := []*models.Connection{}
	if err := r.db.SelectContext(ctx, &conns, `SELECT * FROM connections ORDER BY name ASC`); err != nil {
		return nil, storeError(err, "Failed to list connections")
	}
	return conns, nil
}

// Update writes the user-editable fields of conn.
func (r *connectionRepository) Update(ctx context.Context, conn *models.Connection) error {
	conn.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE connections
		SET name = :name, hostname = :hostname, username = :username,
		    ssh_key_path = :ssh_key_path, port = :port, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, conn)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.WrapWithCode(err, errors.ErrValidation,
				fmt.Sprintf("A connection named '%s' already exists", conn.Name),
				"Pick a different name")
		}
		return storeError(err, "Failed to update connection")
	}
	return expectOne(res, "Connection", conn.ID)
}

// MarkConnected records a successful connect and sets the active flag.
func (r *connectionRepository) MarkConnected(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE connections SET last_connected_at = ?, is_active = 1, updated_at = ? WHERE id = ?`,
		at, at, id)
	if err != nil {
		return storeError(err, "Failed to record connect")
	}
	return expectOne(res, "Connection", id)
}

// SetActive sets the persisted active flag.
func (r *connectionRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE connections SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	if err != nil {
		return storeError(err, "Failed to update connection")
	}
	return expectOne(res, "Connection", id)
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeError(err, "Failed to read update result")
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
