// Package host owns the configured connections to remote GPU hosts and the
// single live SSH session each one may have.
package host

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/events"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/store"
	"github.com/rileyhilliard/dgxops/internal/util"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
	"golang.org/x/sync/singleflight"
)

// ErrNotConnected is wrapped by every call that needs a live session for a
// connection that doesn't have one.
var ErrNotConnected = stderrors.New("not connected")

// Options configures a Registry.
type Options struct {
	DialTimeout  time.Duration
	ProbeTimeout time.Duration
	ExecTimeout  time.Duration

	Logger logger.Logger
	Events events.Publisher
}

// OptionsFromConfig maps the ssh section of the config file onto Options.
func OptionsFromConfig(c config.SSHConfig) Options {
	return Options{
		DialTimeout:  c.DialTimeout,
		ProbeTimeout: c.ProbeTimeout,
		ExecTimeout:  c.ExecTimeout,
	}
}

// Task is started every time a connection comes online. Its context is
// cancelled as soon as that session is dropped for any reason.
type Task func(ctx context.Context, conn *models.Connection)

// Registry is the single source of truth for connections and their live
// sessions. Only the registry creates or closes session handles; other
// components borrow one for the length of a single call.
type Registry struct {
	store  *store.Store
	dialer sshutil.Dialer
	opts   Options
	log    logger.Logger
	events events.Publisher

	locks    *util.KeyedMutex
	inflight singleflight.Group
	sessions *sessionTable

	tasksMu sync.RWMutex
	tasks   []Task
	wg      sync.WaitGroup

	base     context.Context
	shutdown context.CancelFunc
}

// NewRegistry creates a registry over st, dialing through dialer.
func NewRegistry(st *store.Store, dialer sshutil.Dialer, opts Options) *Registry {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Events == nil {
		opts.Events = events.Noop()
	}

	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		store:    st,
		dialer:   dialer,
		opts:     opts,
		log:      opts.Logger,
		events:   opts.Events,
		locks:    util.NewKeyedMutex(),
		sessions: newSessionTable(),
		base:     base,
		shutdown: cancel,
	}
}

// OnConnect registers a task to start for every connection that comes online.
func (r *Registry) OnConnect(task Task) {
	r.tasksMu.Lock()
	defer r.tasksMu.Unlock()
	r.tasks = append(r.tasks, task)
}

// ExecTimeout is the default bound for a borrowed command.
func (r *Registry) ExecTimeout() time.Duration {
	return r.opts.ExecTimeout
}

// List returns every configured connection with its transient state.
func (r *Registry) List(ctx context.Context) ([]*models.Connection, error) {
	conns, err := r.store.Connections.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range conns {
		r.decorate(c)
	}
	return conns, nil
}

// Get returns one connection with its transient state.
func (r *Registry) Get(ctx context.Context, id string) (*models.Connection, error) {
	conn, err := r.store.Connections.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.decorate(conn)
	return conn, nil
}

// Resolve looks a connection up by id, falling back to its name.
func (r *Registry) Resolve(ctx context.Context, idOrName string) (*models.Connection, error) {
	conn, err := r.store.Connections.Get(ctx, idOrName)
	if errors.Is(err, store.ErrNotFound) {
		conn, err = r.store.Connections.GetByName(ctx, idOrName)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, r.unknownConnection(ctx, idOrName, err)
	}
	if err != nil {
		return nil, err
	}
	r.decorate(conn)
	return conn, nil
}

// unknownConnection adds the closest configured names to a failed lookup.
func (r *Registry) unknownConnection(ctx context.Context, ref string, err error) error {
	suggestion := "List connections with: dgxops connection list"
	if conns, lerr := r.store.Connections.List(ctx); lerr == nil {
		names := make([]string, len(conns))
		for i, c := range conns {
			names[i] = c.Name
		}
		if near := util.SuggestSimilar(ref, names, 3); len(near) > 0 {
			suggestion = "Did you mean: " + util.JoinOrNone(near) + "?"
		}
	}
	return errors.WrapWithCode(err, errors.ErrNotFound,
		fmt.Sprintf("No connection '%s'", ref), suggestion)
}

// IDs returns the ids of all configured connections.
func (r *Registry) IDs(ctx context.Context) ([]string, error) {
	conns, err := r.store.Connections.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(conns))
	for i, c := range conns {
		ids[i] = c.ID
	}
	return ids, nil
}

// LiveIDs returns the ids that currently hold a session.
func (r *Registry) LiveIDs() []string {
	return r.sessions.live()
}

// FailedIDs returns connections worth reconnecting: those in error, and
// offline ones still flagged active because they were never explicitly
// disconnected.
func (r *Registry) FailedIDs(ctx context.Context) ([]string, error) {
	conns, err := r.store.Connections.List(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range conns {
		st := r.sessions.state(c.ID)
		if st.Status == models.StatusError || (st.Status == models.StatusOffline && c.IsActive) {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// Create validates and persists a new connection.
func (r *Registry) Create(ctx context.Context, in models.ConnectionInput) (*models.Connection, error) {
	if err := in.Validate(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrValidation, "Invalid connection", "")
	}
	conn := &models.Connection{
		Name:       in.Name,
		Hostname:   in.Hostname,
		Username:   in.Username,
		SSHKeyPath: in.SSHKeyPath,
		Port:       in.Port,
	}
	if err := r.store.Connections.Create(ctx, conn); err != nil {
		return nil, err
	}
	r.log.Info("added connection %s (%s@%s)", conn.Name, conn.Username, conn.Address())
	r.decorate(conn)
	return conn, nil
}

// Update replaces a connection's settings. A live session keeps running
// with the old settings until the next connect.
func (r *Registry) Update(ctx context.Context, id string, in models.ConnectionInput) (*models.Connection, error) {
	if err := in.Validate(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrValidation, "Invalid connection", "")
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	conn, err := r.store.Connections.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	conn.Name = in.Name
	conn.Hostname = in.Hostname
	conn.Username = in.Username
	conn.SSHKeyPath = in.SSHKeyPath
	conn.Port = in.Port
	if err := r.store.Connections.Update(ctx, conn); err != nil {
		return nil, err
	}
	r.decorate(conn)
	return conn, nil
}

// Delete removes a connection. Without force, connections that still have
// operations or metric history are kept. The live session, if any, is
// closed once the record is gone.
func (r *Registry) Delete(ctx context.Context, id string, force bool) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	if err := r.store.DeleteConnection(ctx, id, force); err != nil {
		return err
	}
	r.sessions.remove(id)
	r.log.Info("deleted connection %s", id)
	return nil
}

// Connect establishes the session for id. Concurrent calls for the same id
// share a single dial: the first caller's attempt is the one that lands
// and everyone gets its outcome. A live session that still answers a
// probe is reused; a dead one is closed before redialing.
func (r *Registry) Connect(ctx context.Context, id string) (*models.Connection, error) {
	conn, err := r.store.Connections.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.base.Err() != nil {
		return nil, errors.New(errors.ErrState, "The connection registry is shut down", "")
	}

	// The shared attempt must not die with whichever caller started it.
	work := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(id, func() (interface{}, error) {
		return nil, r.connect(work, conn)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	case <-ctx.Done():
		return nil, errors.WrapWithCode(ctx.Err(), errors.ErrSSH,
			fmt.Sprintf("Gave up waiting for '%s' to connect", conn.Name), "")
	}
	return r.Get(ctx, id)
}

func (r *Registry) connect(ctx context.Context, conn *models.Connection) error {
	unlock := r.locks.Lock(conn.ID)
	defer unlock()

	if client := r.sessions.client(conn.ID); client != nil {
		if _, err := Probe(ctx, client, r.opts.ProbeTimeout); err == nil {
			r.log.Debug("reusing live session for %s", conn.Name)
			return nil
		}
		r.log.Info("session for %s stopped answering, redialing", conn.Name)
		r.sessions.detach(conn.ID, models.StatusOffline, "")
	}

	r.setStatus(ctx, conn.ID, models.StatusConnecting, "")

	dialCtx, cancel := context.WithTimeout(ctx, r.opts.DialTimeout)
	client, err := r.dialer.Dial(dialCtx, targetFor(conn))
	cancel()
	if err != nil {
		reason := classifyProbeError(conn.Name, err).Reason
		r.log.Warn("connect %s failed: %s", conn.Name, reason)
		r.setStatus(ctx, conn.ID, models.StatusError, errors.Summary(err))
		if errors.CodeOf(err) == "" {
			err = errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Can't connect to '%s' (%s)", conn.Name, reason), "")
		}
		return err
	}

	now := time.Now().UTC()
	if err := r.store.Connections.MarkConnected(ctx, conn.ID, now); err != nil {
		client.Close() //nolint:errcheck // Cleanup, error not actionable
		r.setStatus(ctx, conn.ID, models.StatusError, errors.Summary(err))
		return err
	}
	conn.IsActive = true
	conn.LastConnectedAt = &now

	taskCtx, cancelTasks := context.WithCancel(r.base)
	r.sessions.attach(conn.ID, client, cancelTasks, now)
	r.publish(ctx, conn.ID, models.StatusOnline, "")
	r.log.Info("connected to %s (%s)", conn.Name, client.GetAddress())

	r.startTasks(taskCtx, conn)
	return nil
}

// Disconnect closes the session for id. Calling it on a connection that
// isn't connected succeeds and leaves it offline.
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	conn, err := r.store.Connections.Get(ctx, id)
	if err != nil {
		return err
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	if r.sessions.detach(id, models.StatusOffline, "") {
		r.log.Info("disconnected from %s", conn.Name)
	}
	r.publish(ctx, id, models.StatusOffline, "")
	return r.store.Connections.SetActive(ctx, id, false)
}

// Status returns the cached state for id without touching the network.
func (r *Registry) Status(id string) State {
	return r.sessions.state(id)
}

// Session borrows the live client for id. Callers must not keep it past
// the call they borrowed it for.
func (r *Registry) Session(id string) (sshutil.SSHClient, error) {
	client := r.sessions.client(id)
	if client == nil {
		return nil, errors.WrapWithCode(ErrNotConnected, errors.ErrState,
			fmt.Sprintf("Connection '%s' is not connected", id),
			"Connect it first with: dgxops connect <name>")
	}
	return client, nil
}

// Exec runs cmd on id's live session, bounded by the exec timeout. A
// transport failure that the session can't survive drops it to error.
func (r *Registry) Exec(ctx context.Context, id, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	client, err := r.Session(id)
	if err != nil {
		return nil, nil, -1, err
	}

	execCtx, cancel := context.WithTimeout(ctx, r.opts.ExecTimeout)
	defer cancel()

	stdout, stderr, exitCode, err = client.ExecContext(execCtx, cmd)
	if err != nil && ctx.Err() == nil {
		if _, perr := Probe(r.base, client, r.opts.ProbeTimeout); perr != nil {
			r.MarkFailed(id, client, perr)
		}
	}
	return stdout, stderr, exitCode, err
}

// Probe checks id's live session. A failed probe drops the session and
// moves the connection to error; reconnecting is left to the caller.
func (r *Registry) Probe(ctx context.Context, id string) (time.Duration, error) {
	client, err := r.Session(id)
	if err != nil {
		return 0, err
	}

	latency, err := Probe(ctx, client, r.opts.ProbeTimeout)
	if err != nil {
		if ctx.Err() == nil {
			r.MarkFailed(id, client, err)
		}
		return 0, err
	}
	r.sessions.touch(id, client, time.Now().UTC())
	return latency, nil
}

// MarkFailed drops client if it is still id's live session and records
// cause. The persisted active flag is left set so the connection shows up
// in FailedIDs. Returns false when client had already been replaced.
func (r *Registry) MarkFailed(id string, client sshutil.SSHClient, cause error) bool {
	msg := errors.Summary(cause)
	if !r.sessions.detachIf(id, client, models.StatusError, msg) {
		return false
	}
	r.log.Warn("connection %s lost: %s", id, msg)
	r.publish(context.Background(), id, models.StatusError, msg)
	return true
}

// Close drops every session and waits for connection tasks to return.
// Active flags are kept, so the next process can offer to reconnect.
func (r *Registry) Close() {
	r.shutdown()
	r.sessions.closeAll()
	r.wg.Wait()
}

func (r *Registry) startTasks(ctx context.Context, conn *models.Connection) {
	r.tasksMu.RLock()
	tasks := make([]Task, len(r.tasks))
	copy(tasks, r.tasks)
	r.tasksMu.RUnlock()

	for _, task := range tasks {
		c := *conn
		r.decorate(&c)
		r.wg.Add(1)
		go func(task Task) {
			defer r.wg.Done()
			task(ctx, &c)
		}(task)
	}
}

func (r *Registry) setStatus(ctx context.Context, id string, status models.ConnStatus, msg string) {
	r.sessions.setStatus(id, status, msg)
	r.publish(ctx, id, status, msg)
}

func (r *Registry) publish(ctx context.Context, id string, status models.ConnStatus, msg string) {
	e := events.Event{
		Type:         events.ConnectionStatus,
		ConnectionID: id,
		Status:       status.String(),
		Time:         time.Now().UTC(),
	}
	if msg != "" {
		e.Data = map[string]string{"error": msg}
	}
	r.events.Publish(ctx, e)
}

func (r *Registry) decorate(c *models.Connection) {
	st := r.sessions.state(c.ID)
	c.Status = st.Status
	c.ErrorMessage = st.ErrorMessage
	c.LastPing = st.LastPing
}

func targetFor(c *models.Connection) sshutil.Target {
	return sshutil.Target{
		Host:    c.Hostname,
		User:    c.Username,
		Port:    c.Port,
		KeyPath: c.SSHKeyPath,
	}
}
