package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/logging"
	"github.com/heimdex/highlighter/internal/metrics"
)

const (
	maxStderrBytes   = 8 * 1024  // 8 KB tail of stderr kept for diagnostics
	maxResponseBytes = 64 * 1024 // cap on a worker's JSON reply
)

// Dispatcher invokes one stage worker and blocks until it completes. It
// never returns an error: every failure is folded into the Outcome.
type Dispatcher interface {
	Invoke(ctx context.Context, req Request) Outcome

	// Probe reports whether the workers behind the given endpoints can be
	// reached.
	Probe(ctx context.Context, endpoints []string) (*Availability, error)
}

// checkInput enforces the local-existence precondition shared by all
// dispatchers. It returns a non-nil outcome when the worker must not be
// contacted.
func checkInput(req Request) *Outcome {
	if !req.Input.IsLocal() {
		o := SystemFailure(req.Stage, apperr.KindInputNotFound,
			fmt.Sprintf("input %q is in the %s namespace; translate it first", req.Input.Raw, req.Input.Namespace))
		return &o
	}
	info, err := os.Stat(req.Input.Raw)
	if err != nil {
		o := SystemFailure(req.Stage, apperr.KindInputNotFound, fmt.Sprintf("file %s not found: %v", req.Input.Raw, err))
		return &o
	}
	if info.IsDir() {
		o := SystemFailure(req.Stage, apperr.KindInputNotFound, fmt.Sprintf("input %s is a directory, not an artifact", req.Input.Raw))
		return &o
	}
	return nil
}

// finish stamps duration, records metrics and logs the outcome. Unreachable
// workers are logged at error level, worker failures at warn.
func finish(logger *slog.Logger, o Outcome, start time.Time) Outcome {
	o.Duration = time.Since(start)
	metrics.ObserveStage(o.Stage, o.Status.String(), o.Duration)

	log := logging.WithStage(logger, o.Stage)
	switch {
	case o.IsSuccess():
		log.Info("stage succeeded",
			"duration_ms", o.Duration.Milliseconds(),
			"output", o.OutputLocation,
		)
	case o.Fault == apperr.KindWorkerUnreachable:
		log.Error("worker unreachable",
			"duration_ms", o.Duration.Milliseconds(),
			"error", truncate(o.Diagnostics, 512),
		)
	case o.Fault == apperr.KindInputNotFound:
		log.Warn("stage input missing", "error", o.Diagnostics)
	default:
		log.Warn("stage failed",
			"duration_ms", o.Duration.Milliseconds(),
			"diagnostics_tail", truncate(o.Diagnostics, 512),
		)
	}
	return o
}

// truncate keeps roughly the last maxLen bytes of s, starting on a rune
// boundary so the tail stays valid UTF-8.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	start := len(s) - maxLen
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return "..." + s[start:]
}
