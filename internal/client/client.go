// Package client talks to a running `dgxops serve` over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/dgxops/internal/api"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/parallel"
	"github.com/rileyhilliard/dgxops/internal/reconcile"
	"github.com/rileyhilliard/dgxops/internal/service"
)

// DefaultTimeout bounds one request. Batch connects can take a while.
const DefaultTimeout = 2 * time.Minute

// Envelope is a service.Result with its data left undecoded.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// Err converts a failed envelope into a structured error.
func (e *Envelope) Err() error {
	if e.Success {
		return nil
	}
	code := e.Code
	if code == "" {
		code = errors.ErrExec
	}
	return errors.New(code, e.Error, "")
}

// Client is a typed client for the dgxops HTTP API.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the daemon listening on addr ("host:port" or a
// full URL).
func New(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base: base,
		http: &http.Client{Timeout: DefaultTimeout},
	}
}

// Do sends one request and returns the envelope as received. Only a
// transport failure or an unreadable body is an error; a failed command
// comes back as an envelope with Success false.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*Envelope, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrValidation, "Couldn't encode request", "")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Invalid daemon address", "")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't reach the dgxops daemon at %s", c.base),
			"Start it with: dgxops serve")
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Unexpected response from the daemon (HTTP %d)", resp.StatusCode), "")
	}
	return &env, nil
}

// call runs a command and decodes its data into out.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	env, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if err := env.Err(); err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec, "Couldn't decode the daemon's answer", "")
	}
	return nil
}

func connPath(ref string, rest ...string) string {
	p := api.Prefix + "/connections/" + url.PathEscape(ref)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func opPath(id string, rest ...string) string {
	p := api.Prefix + "/operations/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Health checks the daemon is up.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.DaemonVersion(ctx)
	return err
}

// DaemonVersion returns the version the daemon reports.
func (c *Client) DaemonVersion(ctx context.Context) (string, error) {
	var out api.Health
	if err := c.call(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// ListConnections returns every configured connection.
func (c *Client) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	var out []*models.Connection
	err := c.call(ctx, http.MethodGet, api.Prefix+"/connections", nil, &out)
	return out, err
}

// CreateConnection adds a connection.
func (c *Client) CreateConnection(ctx context.Context, in models.ConnectionInput) (*models.Connection, error) {
	var out models.Connection
	if err := c.call(ctx, http.MethodPost, api.Prefix+"/connections", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConnection looks a connection up by id or name.
func (c *Client) GetConnection(ctx context.Context, ref string) (*models.Connection, error) {
	var out models.Connection
	if err := c.call(ctx, http.MethodGet, connPath(ref), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConnection replaces ref's settings.
func (c *Client) UpdateConnection(ctx context.Context, ref string, in models.ConnectionInput) (*models.Connection, error) {
	var out models.Connection
	if err := c.call(ctx, http.MethodPut, connPath(ref), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConnection removes a connection, with its history when force is set.
func (c *Client) DeleteConnection(ctx context.Context, ref string, force bool) error {
	return c.call(ctx, http.MethodDelete, connPath(ref)+"?force="+strconv.FormatBool(force), nil, nil)
}

// Connect opens ref's session.
func (c *Client) Connect(ctx context.Context, ref string) (*models.Connection, error) {
	var out models.Connection
	if err := c.call(ctx, http.MethodPost, connPath(ref, "connect"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disconnect closes ref's session.
func (c *Client) Disconnect(ctx context.Context, ref string) (*models.Connection, error) {
	var out models.Connection
	if err := c.call(ctx, http.MethodPost, connPath(ref, "disconnect"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns ref's cached state.
func (c *Client) Status(ctx context.Context, ref string) (*service.StatusView, error) {
	var out service.StatusView
	if err := c.call(ctx, http.MethodGet, connPath(ref, "status"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) batch(ctx context.Context, action string) (*parallel.Result, error) {
	var out parallel.Result
	if err := c.call(ctx, http.MethodPost, api.Prefix+"/connections/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectAll connects every configured connection.
func (c *Client) ConnectAll(ctx context.Context) (*parallel.Result, error) {
	return c.batch(ctx, "connect-all")
}

// DisconnectAll disconnects every configured connection.
func (c *Client) DisconnectAll(ctx context.Context) (*parallel.Result, error) {
	return c.batch(ctx, "disconnect-all")
}

// ReconnectFailed retries the connections that dropped or failed.
func (c *Client) ReconnectFailed(ctx context.Context) (*parallel.Result, error) {
	return c.batch(ctx, "reconnect-failed")
}

// ListOperations returns every operation.
func (c *Client) ListOperations(ctx context.Context) ([]*models.Operation, error) {
	var out []*models.Operation
	err := c.call(ctx, http.MethodGet, api.Prefix+"/operations", nil, &out)
	return out, err
}

// ConnectionOperations returns ref's operations grouped by category.
func (c *Client) ConnectionOperations(ctx context.Context, ref string) (*models.OperationGroups, error) {
	var out models.OperationGroups
	if err := c.call(ctx, http.MethodGet, connPath(ref, "operations"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOperation records a new operation.
func (c *Client) CreateOperation(ctx context.Context, spec models.OperationSpec) (*models.Operation, error) {
	var out models.Operation
	if err := c.call(ctx, http.MethodPost, api.Prefix+"/operations", spec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOperation returns one operation.
func (c *Client) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	var out models.Operation
	if err := c.call(ctx, http.MethodGet, opPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) opAction(ctx context.Context, id, action string, body interface{}) (*models.Operation, error) {
	var out models.Operation
	if err := c.call(ctx, http.MethodPost, opPath(id, action), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LaunchOperation starts a pending operation.
func (c *Client) LaunchOperation(ctx context.Context, id string) (*models.Operation, error) {
	return c.opAction(ctx, id, "launch", nil)
}

// KillOperation signals an operation's process.
func (c *Client) KillOperation(ctx context.Context, id, signal string) (*models.Operation, error) {
	return c.opAction(ctx, id, "kill", api.KillRequest{Signal: signal})
}

// RestartOperation reruns a finished operation.
func (c *Client) RestartOperation(ctx context.Context, id string) (*models.Operation, error) {
	return c.opAction(ctx, id, "restart", nil)
}

// OperationLogs returns the tail of an operation's log.
func (c *Client) OperationLogs(ctx context.Context, id string, lines int) (string, error) {
	var out service.LogsView
	path := opPath(id, "logs")
	if lines > 0 {
		path += "?lines=" + strconv.Itoa(lines)
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Logs, nil
}

// OperationProgress refreshes and returns an operation's progress.
func (c *Client) OperationProgress(ctx context.Context, id string) (*models.Operation, error) {
	var out models.Operation
	if err := c.call(ctx, http.MethodGet, opPath(id, "progress"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync reconciles ref's running operations with its host.
func (c *Client) Sync(ctx context.Context, ref string) (*reconcile.SyncResult, error) {
	var out reconcile.SyncResult
	if err := c.call(ctx, http.MethodPost, connPath(ref, "sync"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Metrics returns ref's current telemetry.
func (c *Client) Metrics(ctx context.Context, ref string) (*models.MetricsSnapshot, error) {
	var out models.MetricsSnapshot
	if err := c.call(ctx, http.MethodGet, connPath(ref, "metrics"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MetricsHistory returns ref's samples from the last hours.
func (c *Client) MetricsHistory(ctx context.Context, ref string, hours float64) ([]*models.Sample, error) {
	var out []*models.Sample
	path := connPath(ref, "metrics", "history")
	if hours > 0 {
		path += "?hours=" + strconv.FormatFloat(hours, 'f', -1, 64)
	}
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}
