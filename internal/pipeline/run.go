package pipeline

import (
	"fmt"
	"time"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/pathmap"
	"github.com/heimdex/highlighter/internal/worker"
)

// Status is the lifecycle state of a Run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Mode records which entry point created a run.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeChain  Mode = "chain"
)

// Step is the record of one stage invocation within a run.
type Step struct {
	Stage   string         `json:"stage"`
	Input   string         `json:"input"`
	Outcome worker.Outcome `json:"outcome"`
	Output  string         `json:"output,omitempty"` // local path handed to the next stage
}

// Run is one execution of a stage sequence for one root input. It is owned
// by the call that created it and discarded afterwards.
type Run struct {
	ID            string          `json:"id"`
	Mode          Mode            `json:"mode"`
	Stages        []string        `json:"stages"`
	CurrentInput  pathmap.PathRef `json:"current_input"`
	Status        Status          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	FailedStage   string          `json:"failed_stage,omitempty"`
	Fault         apperr.Kind     `json:"fault,omitempty"`
	Diagnostics   string          `json:"diagnostics,omitempty"`
	Steps         []Step          `json:"steps"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
}

// Running -> Completed and Running -> Failed are the only transitions.
func isValidTransition(from, to Status) bool {
	return from == StatusRunning && (to == StatusCompleted || to == StatusFailed)
}

func (r *Run) transition(to Status) error {
	if !isValidTransition(r.Status, to) {
		return fmt.Errorf("invalid transition: %s -> %s", r.Status, to)
	}
	r.Status = to
	r.FinishedAt = time.Now()
	return nil
}

func (r *Run) fail(stage string, kind apperr.Kind, reason, diagnostics string) {
	if err := r.transition(StatusFailed); err != nil {
		return
	}
	r.FailedStage = stage
	r.Fault = kind
	r.FailureReason = reason
	r.Diagnostics = diagnostics
}

// Done reports whether the run reached a terminal state.
func (r *Run) Done() bool { return r.Status != StatusRunning }

// Succeeded reports whether every stage completed.
func (r *Run) Succeeded() bool { return r.Status == StatusCompleted }

// Output is the translated output of the last stage, or "" unless the run
// completed.
func (r *Run) Output() string {
	if r.Status != StatusCompleted {
		return ""
	}
	return r.CurrentInput.Raw
}

// Err returns the classified failure of a failed run.
func (r *Run) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	kind := r.Fault
	if kind == apperr.KindNone {
		kind = apperr.KindWorkerFailed
	}
	return &apperr.Error{Kind: kind, Stage: r.FailedStage, Diagnostics: r.Diagnostics}
}
