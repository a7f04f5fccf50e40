package reconcile

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/operation"
)

// Classifier decides how an operation whose process is gone ended.
type Classifier interface {
	Classify(ctx context.Context, op *models.Operation) (operation.Settlement, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, op *models.Operation) (operation.Settlement, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, op *models.Operation) (operation.Settlement, error) {
	return f(ctx, op)
}

// ExitCodeReader reads the exit status recorded for an operation's run.
type ExitCodeReader interface {
	ExitCode(ctx context.Context, op *models.Operation) (code int, ok bool, err error)
}

// ExitFileClassifier classifies by the exit status the launch wrapper
// wrote next to the log: zero is completed, anything else failed. A run
// that never wrote one (killed, host rebooted) gets Unknown.
type ExitFileClassifier struct {
	Reader  ExitCodeReader
	Unknown models.OpStatus
}

// NewExitFileClassifier creates a classifier assigning unknown to runs
// without a recorded exit status. Anything but completed means failed.
func NewExitFileClassifier(reader ExitCodeReader, unknown string) *ExitFileClassifier {
	status := models.OpFailed
	if models.OpStatus(unknown) == models.OpCompleted {
		status = models.OpCompleted
	}
	return &ExitFileClassifier{Reader: reader, Unknown: status}
}

// Classify implements Classifier.
func (c *ExitFileClassifier) Classify(ctx context.Context, op *models.Operation) (operation.Settlement, error) {
	code, ok, err := c.Reader.ExitCode(ctx, op)
	if err != nil {
		return operation.Settlement{}, err
	}
	if !ok {
		return operation.Settlement{
			Status:  c.Unknown,
			Message: "process exited without recording a status",
		}, nil
	}
	if code == 0 {
		return operation.Settlement{Status: models.OpCompleted, ExitCode: &code}, nil
	}
	return operation.Settlement{
		Status:   models.OpFailed,
		ExitCode: &code,
		Message:  fmt.Sprintf("exited with code %d", code),
	}, nil
}
