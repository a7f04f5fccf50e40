// Package operation tracks processes launched on remote hosts: servers,
// training jobs and scripts. It owns their status lifecycle, PID and log
// file, and the stop/restart semantics around them.
package operation

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/events"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/store"
	"github.com/rileyhilliard/dgxops/internal/util"
)

// ErrNoPID is wrapped when an operation has to be signalled or checked but
// its PID was never captured.
var ErrNoPID = stderrors.New("cannot manage: no PID")

const (
	defaultLogLines = 100
	maxLogLines     = 10000
	progressLines   = 200
)

// Remote is the slice of the connection registry the tracker borrows
// sessions through.
type Remote interface {
	Get(ctx context.Context, id string) (*models.Connection, error)
	Exec(ctx context.Context, id, cmd string) (stdout, stderr []byte, exitCode int, err error)
}

// Options configures a Tracker.
type Options struct {
	// LogDir is the remote directory operation logs go to.
	LogDir string

	Logger logger.Logger
	Events events.Publisher
}

// Tracker manages operation records and the remote processes behind them.
// State changes for one operation id are serialized; reconciliation goes
// through Settle, which only applies on an unchanged version.
type Tracker struct {
	ops    store.OperationRepository
	remote Remote
	opts   Options
	log    logger.Logger
	events events.Publisher
	locks  *util.KeyedMutex
	now    func() time.Time
}

// NewTracker creates a tracker over ops, reaching hosts through remote.
func NewTracker(ops store.OperationRepository, remote Remote, opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Events == nil {
		opts.Events = events.Noop()
	}
	return &Tracker{
		ops:    ops,
		remote: remote,
		opts:   opts,
		log:    opts.Logger,
		events: opts.Events,
		locks:  util.NewKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create validates spec and records a pending operation. Nothing runs on
// the remote host yet, so a crash before Launch leaves a visible pending
// record rather than an untracked process.
func (t *Tracker) Create(ctx context.Context, spec models.OperationSpec) (*models.Operation, error) {
	if err := spec.Validate(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrValidation, "Invalid operation", "")
	}
	if _, err := t.remote.Get(ctx, spec.ConnectionID); err != nil {
		return nil, err
	}

	op := &models.Operation{
		ConnectionID: spec.ConnectionID,
		Name:         spec.Name,
		Type:         spec.Type,
		Category:     spec.Type.Category(),
		Status:       models.OpPending,
		Command:      spec.Command,
		WorkingDir:   spec.WorkingDir,
		Port:         spec.Port,
		WebsocketURL: spec.WebsocketURL,
		ModelName:    spec.ModelName,
		Epochs:       spec.Epochs,
		Progress:     models.ProgressIndeterminate,
	}
	if err := t.ops.Create(ctx, op); err != nil {
		return nil, err
	}
	t.log.Info("created %s operation %s (%s)", op.Type, op.Name, op.ID)
	t.publish(ctx, op)
	return op, nil
}

// Get returns one operation.
func (t *Tracker) Get(ctx context.Context, id string) (*models.Operation, error) {
	return t.ops.Get(ctx, id)
}

// List returns every operation.
func (t *Tracker) List(ctx context.Context) ([]*models.Operation, error) {
	return t.ops.List(ctx)
}

// ListByConnection groups a connection's operations by category.
func (t *Tracker) ListByConnection(ctx context.Context, connectionID string) (models.OperationGroups, error) {
	ops, err := t.ops.ListByConnection(ctx, connectionID)
	if err != nil {
		return models.OperationGroups{}, err
	}
	return models.GroupByCategory(ops), nil
}

// Running returns a connection's operations that still have a live status.
func (t *Tracker) Running(ctx context.Context, connectionID string) ([]*models.Operation, error) {
	var out []*models.Operation
	for _, status := range []models.OpStatus{models.OpRunning, models.OpStarting, models.OpWarning} {
		ops, err := t.ops.ListByStatus(ctx, connectionID, status)
		if err != nil {
			return nil, err
		}
		out = append(out, ops...)
	}
	return out, nil
}

// Launch starts a pending operation on its host. A failed launch leaves the
// record in failed with the error attached; the error is also returned.
func (t *Tracker) Launch(ctx context.Context, id string) (*models.Operation, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	op, err := t.ops.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != models.OpPending {
		return op, errors.New(errors.ErrState,
			fmt.Sprintf("Operation '%s' is %s, only pending operations can be launched", op.Name, op.Status),
			"Use restart for operations that already ran")
	}
	return t.launch(ctx, op)
}

// Restart runs a finished operation's command again under the same
// identity. Operations that are still live are rejected untouched.
func (t *Tracker) Restart(ctx context.Context, id string) (*models.Operation, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	op, err := t.ops.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !op.Status.CanRestart() {
		return op, errors.New(errors.ErrState,
			fmt.Sprintf("Operation '%s' is %s and can't be restarted", op.Name, op.Status),
			"Stop it first, then restart")
	}

	op.RestartCount++
	t.log.Info("restarting operation %s (run %d)", op.Name, op.RestartCount+1)
	return t.launch(ctx, op)
}

// launch runs op on its host. Callers hold op's lock.
func (t *Tracker) launch(ctx context.Context, op *models.Operation) (*models.Operation, error) {
	conn, err := t.remote.Get(ctx, op.ConnectionID)
	if err != nil {
		return nil, err
	}

	logFile := logFileFor(t.opts.LogDir, op.ID, op.RestartCount)
	now := t.now()

	op.PID = nil
	op.ExitCode = nil
	op.CompletedAt = nil
	op.Duration = nil
	op.ErrorMessage = ""
	op.Progress = models.ProgressIndeterminate
	op.ProgressMessage = ""
	op.StartedAt = &now
	op.LogFile = logFile

	stdout, stderr, code, execErr := t.remote.Exec(ctx, op.ConnectionID, launchCommand(op.Command, op.WorkingDir, logFile))
	if execErr != nil || code != 0 {
		launchErr := execErr
		if launchErr == nil {
			launchErr = errors.New(errors.ErrExec,
				fmt.Sprintf("Launch of '%s' exited with code %d", op.Name, code),
				strings.TrimSpace(string(stderr)))
		}
		op.ErrorMessage = errors.Summary(launchErr)
		if detail := strings.TrimSpace(string(stderr)); detail != "" && execErr == nil {
			op.ErrorMessage += ": " + detail
		}
		op.Finish(models.OpFailed, t.now())
		t.log.Warn("launch of %s on %s failed: %s", op.Name, conn.Name, op.ErrorMessage)
		if err := t.save(ctx, op); err != nil {
			return nil, err
		}
		return op, launchErr
	}

	if pid, ok := parsePID(stdout); ok {
		op.PID = &pid
	} else {
		t.log.Warn("launched %s but couldn't read a PID from %q; it can't be stopped from here",
			op.Name, strings.TrimSpace(string(stdout)))
	}

	op.Status = models.OpRunning
	if op.Type == models.OpServer && op.Port != nil {
		op.URL = fmt.Sprintf("http://%s:%d", conn.Hostname, *op.Port)
	}

	if err := t.save(ctx, op); err != nil {
		return nil, err
	}
	t.log.Info("launched %s on %s (pid %s)", op.Name, conn.Name, pidString(op.PID))
	return op, nil
}

// Stop signals an operation's process and records it as cancelled.
// Finished operations are returned unchanged. A pending operation that was
// never launched is cancelled without touching the host. A live operation
// with no PID can't be stopped and yields ErrNoPID.
func (t *Tracker) Stop(ctx context.Context, id, signal string) (*models.Operation, error) {
	sig, err := ParseSignal(signal)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrValidation, "Invalid signal", "")
	}

	unlock := t.locks.Lock(id)
	defer unlock()

	op, err := t.ops.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if op.Status.IsTerminal() {
		return op, nil
	}
	if !op.HasPID() {
		if op.Status == models.OpPending {
			op.Finish(models.OpCancelled, t.now())
			if err := t.save(ctx, op); err != nil {
				return nil, err
			}
			t.log.Info("cancelled pending operation %s", op.Name)
			return op, nil
		}
		return op, errors.WrapWithCode(ErrNoPID, errors.ErrState,
			fmt.Sprintf("Operation '%s' has no recorded PID", op.Name),
			"Stop the process on the host by hand, then run a sync")
	}

	_, stderr, code, err := t.remote.Exec(ctx, op.ConnectionID, stopCommand(*op.PID, sig))
	if err != nil {
		return op, err
	}
	if code != 0 {
		// kill fails when the process is already gone; confirm before
		// treating it as an error
		alive, aerr := t.isAlive(ctx, op)
		if aerr != nil {
			return op, aerr
		}
		if alive {
			return op, errors.New(errors.ErrExec,
				fmt.Sprintf("Couldn't signal operation '%s' (pid %d)", op.Name, *op.PID),
				strings.TrimSpace(string(stderr)))
		}
		return t.finishExited(ctx, op)
	}

	op.Finish(models.OpCancelled, t.now())
	if err := t.save(ctx, op); err != nil {
		return nil, err
	}
	t.log.Info("sent SIG%s to %s (pid %d)", sig, op.Name, *op.PID)
	return op, nil
}

// finishExited settles an operation whose process ended before a stop
// reached it. A recorded exit status wins over cancelled.
func (t *Tracker) finishExited(ctx context.Context, op *models.Operation) (*models.Operation, error) {
	status := models.OpCancelled
	code, ok, err := t.ExitCode(ctx, op)
	switch {
	case err != nil:
		t.log.Warn("reading exit status of %s: %v", op.Name, err)
		op.ErrorMessage = "process had already exited"
	case !ok:
		op.ErrorMessage = "process had already exited"
	case code == 0:
		op.ExitCode = &code
		status = models.OpCompleted
	default:
		op.ExitCode = &code
		op.ErrorMessage = fmt.Sprintf("exited with code %d", code)
		status = models.OpFailed
	}

	op.Finish(status, t.now())
	if err := t.save(ctx, op); err != nil {
		return nil, err
	}
	t.log.Info("%s had already exited before the stop, now %s", op.Name, op.Status)
	return op, nil
}

// Logs returns the last lines of an operation's log file.
func (t *Tracker) Logs(ctx context.Context, id string, lines int) (string, error) {
	op, err := t.ops.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if op.LogFile == "" {
		return "", errors.New(errors.ErrState,
			fmt.Sprintf("Operation '%s' has no log yet", op.Name),
			"Logs exist once the operation has been launched")
	}
	if lines <= 0 {
		lines = defaultLogLines
	}
	if lines > maxLogLines {
		lines = maxLogLines
	}

	stdout, stderr, code, err := t.remote.Exec(ctx, op.ConnectionID, tailCommand(op.LogFile, lines))
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", errors.New(errors.ErrExec,
			fmt.Sprintf("Couldn't read the log for '%s'", op.Name),
			strings.TrimSpace(string(stderr)))
	}
	return string(stdout), nil
}

// CheckAlive reports whether op's process is still running on its host.
func (t *Tracker) CheckAlive(ctx context.Context, op *models.Operation) (bool, error) {
	if !op.HasPID() {
		return false, errors.WrapWithCode(ErrNoPID, errors.ErrState,
			fmt.Sprintf("Operation '%s' has no recorded PID", op.Name), "")
	}
	return t.isAlive(ctx, op)
}

func (t *Tracker) isAlive(ctx context.Context, op *models.Operation) (bool, error) {
	stdout, stderr, code, err := t.remote.Exec(ctx, op.ConnectionID, aliveCommand(*op.PID))
	if err != nil {
		return false, err
	}
	if code != 0 {
		return false, errors.New(errors.ErrExec,
			fmt.Sprintf("Liveness check for '%s' failed", op.Name),
			strings.TrimSpace(string(stderr)))
	}
	return strings.TrimSpace(string(stdout)) == "alive", nil
}

// ExitCode reads the exit status the launch wrapper recorded for op's
// current run. ok is false when none was written.
func (t *Tracker) ExitCode(ctx context.Context, op *models.Operation) (code int, ok bool, err error) {
	if op.LogFile == "" {
		return 0, false, nil
	}
	stdout, _, _, err := t.remote.Exec(ctx, op.ConnectionID, exitCodeCommand(op.LogFile))
	if err != nil {
		return 0, false, err
	}
	code, ok = parseExitCode(stdout)
	return code, ok, nil
}

// Settlement is a reconciliation verdict for an operation that is no
// longer running.
type Settlement struct {
	Status   models.OpStatus
	ExitCode *int
	Message  string
}

// Settle moves op to a terminal status on behalf of reconciliation. It
// applies only if the stored record is still at basis.Version and live;
// anything a user did in the meantime wins. Reports whether it applied.
func (t *Tracker) Settle(ctx context.Context, basis *models.Operation, s Settlement) (bool, error) {
	if !s.Status.IsTerminal() {
		return false, fmt.Errorf("settle %s: %s is not a terminal status", basis.ID, s.Status)
	}

	unlock := t.locks.Lock(basis.ID)
	defer unlock()

	op, err := t.ops.Get(ctx, basis.ID)
	if err != nil {
		return false, err
	}
	if op.Version != basis.Version || op.Status.IsTerminal() || op.Status == models.OpPending {
		t.log.Debug("skipping stale settle for %s (version %d, now %d)", op.Name, basis.Version, op.Version)
		return false, nil
	}

	op.ExitCode = s.ExitCode
	op.ErrorMessage = s.Message
	op.Finish(s.Status, t.now())
	if err := t.save(ctx, op); err != nil {
		if errors.Is(err, store.ErrStaleVersion) {
			return false, nil
		}
		return false, err
	}
	t.log.Info("state correction: %s was running but its process is gone, now %s", op.Name, op.Status)
	return true, nil
}

// RefreshProgress reads the tail of a running operation's log, stores the
// progress it finds and returns the operation. A log that looks like
// trouble yields a warning status on the returned value only.
func (t *Tracker) RefreshProgress(ctx context.Context, id string) (*models.Operation, error) {
	op, err := t.ops.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.LogFile == "" || op.Status.IsTerminal() {
		return op, nil
	}

	out, err := t.Logs(ctx, id, progressLines)
	if err != nil {
		return op, err
	}
	p := ParseProgress(out, op)

	if p.Percent != models.ProgressIndeterminate &&
		(p.Percent != op.Progress || p.Message != op.ProgressMessage) {
		unlock := t.locks.Lock(id)
		current, err := t.ops.Get(ctx, id)
		if err == nil && current.Version == op.Version {
			current.Progress = p.Percent
			current.ProgressMessage = p.Message
			if err := t.ops.Update(ctx, current); err == nil {
				op = current
			}
		} else if err == nil {
			op = current
		}
		unlock()
	}

	if p.Anomaly != "" && op.Status == models.OpRunning {
		op.Status = models.OpWarning
		op.ErrorMessage = p.Anomaly
	}
	return op, nil
}

func (t *Tracker) save(ctx context.Context, op *models.Operation) error {
	if err := t.ops.Update(ctx, op); err != nil {
		return err
	}
	t.publish(ctx, op)
	return nil
}

func (t *Tracker) publish(ctx context.Context, op *models.Operation) {
	t.events.Publish(ctx, events.Event{
		Type:         events.OperationStatus,
		ConnectionID: op.ConnectionID,
		OperationID:  op.ID,
		Status:       string(op.Status),
		Data:         op,
		Time:         t.now(),
	})
}

func pidString(pid *int) string {
	if pid == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *pid)
}
