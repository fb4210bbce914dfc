// Package detector implements the order-book baseline tracker and the
// stateless anomaly detectors that feed the risk score.
package detector

import (
	"errors"

	"github.com/rewired-gh/mmradar/internal/models"
)

var (
	// ErrInsufficientHistory marks a non-detection caused by too few samples,
	// candles or trades.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrDegenerateInput marks input that cannot be evaluated without inventing
	// a value, such as a zero-volume trade batch.
	ErrDegenerateInput = errors.New("degenerate input")
)

// Result is the outcome of one detector call. Reason is set only when the
// detector could not evaluate its input; Detected is then always false.
type Result struct {
	Detected bool
	Severity models.Severity
	Message  string
	Evidence models.Evidence
	Reason   error
}

// Signal converts a detected result into a signal of the evidence's type.
func (r Result) Signal() (models.Signal, bool) {
	if !r.Detected || r.Evidence == nil {
		return models.Signal{}, false
	}
	return models.Signal{
		Type:     r.Evidence.SignalType(),
		Severity: r.Severity,
		Message:  r.Message,
		Evidence: r.Evidence,
	}, true
}

func notDetected(msg string, ev models.Evidence) Result {
	return Result{Severity: models.SeverityInfo, Message: msg, Evidence: ev}
}

func insufficient(msg string) Result {
	return Result{Severity: models.SeverityInfo, Message: msg, Reason: ErrInsufficientHistory}
}

func degenerate(msg string) Result {
	return Result{Severity: models.SeverityInfo, Message: msg, Reason: ErrDegenerateInput}
}

func detected(sev models.Severity, msg string, ev models.Evidence) Result {
	return Result{Detected: true, Severity: sev, Message: msg, Evidence: ev}
}
