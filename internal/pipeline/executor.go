package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/logging"
	"github.com/heimdex/highlighter/internal/metrics"
	"github.com/heimdex/highlighter/internal/pathmap"
	"github.com/heimdex/highlighter/internal/worker"
)

// Executor runs stages through a Dispatcher and threads each output into
// the next stage's input.
type Executor struct {
	dispatcher worker.Dispatcher
	translator *pathmap.Translator
	logger     *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(d worker.Dispatcher, tr *pathmap.Translator, logger *slog.Logger) *Executor {
	if tr == nil {
		tr = pathmap.NewTranslator("", "")
	}
	return &Executor{
		dispatcher: d,
		translator: tr,
		logger:     logging.WithComponent(logging.OrDiscard(logger), "pipeline"),
	}
}

// Translator returns the translator used for stage outputs.
func (e *Executor) Translator() *pathmap.Translator { return e.translator }

// RunSingle invokes one stage and translates its output. No folder-vs-file
// resolution is applied since there is no consumer.
func (e *Executor) RunSingle(ctx context.Context, stage StageSpec, input pathmap.PathRef, params map[string]string) *Run {
	return e.run(ctx, ModeSingle, []StageSpec{stage}, input, params)
}

// RunChain invokes stages in order. The first failure ends the run and no
// later stage is invoked.
func (e *Executor) RunChain(ctx context.Context, stages []StageSpec, input pathmap.PathRef, params map[string]string) *Run {
	return e.run(ctx, ModeChain, stages, input, params)
}

func (e *Executor) run(ctx context.Context, mode Mode, stages []StageSpec, input pathmap.PathRef, params map[string]string) *Run {
	if !input.IsLocal() {
		input = e.translator.Ref(input.Raw)
	}
	r := &Run{
		ID:           uuid.NewString(),
		Mode:         mode,
		Stages:       Names(stages),
		CurrentInput: input,
		Status:       StatusRunning,
		StartedAt:    time.Now(),
	}
	log := logging.WithRunID(e.logger, r.ID)
	log.Info("run started", "mode", mode, "stages", r.Stages, "input", logging.SanitizePath(input.Raw))

	if len(stages) == 0 {
		r.fail("", apperr.KindContractViolation, "no stages to run", "")
		return e.done(log, r)
	}

	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			r.fail(stage.Name, apperr.KindWorkerUnreachable,
				fmt.Sprintf("stage %q not started: %v", stage.Name, err), err.Error())
			break
		}

		if err := stage.Input.Accepts(r.CurrentInput.Raw); err != nil {
			r.fail(stage.Name, apperr.KindContractViolation,
				fmt.Sprintf("stage %q rejected input: %v", stage.Name, err), err.Error())
			break
		}

		out := e.dispatcher.Invoke(ctx, worker.Request{
			Stage:    stage.Name,
			Endpoint: stage.Endpoint,
			Input:    r.CurrentInput,
			Params:   stage.params(params),
		})
		step := Step{Stage: stage.Name, Input: r.CurrentInput.Raw, Outcome: out}

		if !out.IsSuccess() {
			r.Steps = append(r.Steps, step)
			r.fail(stage.Name, out.Fault,
				fmt.Sprintf("stage %q failed: %s", stage.Name, out.Diagnostics), out.Diagnostics)
			break
		}

		next := e.translator.Ref(out.OutputLocation)
		if i+1 < len(stages) {
			next = pathmap.ResolveRef(next, stages[i+1].Input)
		}
		step.Output = next.Raw
		r.Steps = append(r.Steps, step)
		r.CurrentInput = next
	}

	if r.Status == StatusRunning {
		_ = r.transition(StatusCompleted)
	}
	return e.done(log, r)
}

func (e *Executor) done(log *slog.Logger, r *Run) *Run {
	metrics.IncRun(string(r.Mode), string(r.Status))
	if r.Status == StatusCompleted {
		log.Info("run completed",
			"output", r.CurrentInput.Raw,
			"duration_ms", r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		)
	} else {
		log.Warn("run failed",
			"failed_stage", r.FailedStage,
			"fault", r.Fault,
			"reason", r.FailureReason,
		)
	}
	return r
}
