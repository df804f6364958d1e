// Package coordinator is the boundary the decision layer, CLI and HTTP API
// call into. It resolves stage names, translates inputs into the local
// namespace and dispatches to the executor or the batch processor.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/batch"
	"github.com/heimdex/highlighter/internal/logging"
	"github.com/heimdex/highlighter/internal/pathmap"
	"github.com/heimdex/highlighter/internal/pipeline"
	"github.com/heimdex/highlighter/internal/worker"
)

type Config struct {
	Catalog      *pipeline.Catalog
	Executor     *pipeline.Executor
	Processor    *batch.Processor
	Availability *worker.CachedAvailability
	Logger       *slog.Logger
}

type Coordinator struct {
	catalog      *pipeline.Catalog
	executor     *pipeline.Executor
	processor    *batch.Processor
	availability *worker.CachedAvailability
	logger       *slog.Logger
}

func New(cfg Config) *Coordinator {
	if cfg.Catalog == nil {
		cfg.Catalog = pipeline.NewCatalog(nil)
	}
	return &Coordinator{
		catalog:      cfg.Catalog,
		executor:     cfg.Executor,
		processor:    cfg.Processor,
		availability: cfg.Availability,
		logger:       logging.WithComponent(logging.OrDiscard(cfg.Logger), "coordinator"),
	}
}

func (c *Coordinator) Catalog() *pipeline.Catalog { return c.catalog }

func (c *Coordinator) ref(p string) pathmap.PathRef {
	return c.executor.Translator().Ref(strings.TrimSpace(p))
}

// RunSingleStage runs one named stage. The error is non-nil only when the
// stage name is unknown; worker failures are reported on the Run.
func (c *Coordinator) RunSingleStage(ctx context.Context, stage, input string, params map[string]string) (*pipeline.Run, error) {
	spec, ok := c.catalog.Lookup(stage)
	if !ok {
		return nil, fmt.Errorf("%w %q", pipeline.ErrUnknownStage, stage)
	}
	return c.executor.RunSingle(ctx, spec, c.ref(input), params), nil
}

// RunChain runs stages in order. stages may be a single chain name or
// comma-separated list; unknown names fail before anything runs.
func (c *Coordinator) RunChain(ctx context.Context, stages []string, input string, params map[string]string) (*pipeline.Run, error) {
	specs, err := c.catalog.ParseChain(strings.Join(stages, ","))
	if err != nil {
		return nil, err
	}
	return c.executor.RunChain(ctx, specs, c.ref(input), params), nil
}

// RunBatch searches every clip under folder for keyword.
func (c *Coordinator) RunBatch(ctx context.Context, folder, keyword string) (*batch.Report, error) {
	return c.processor.Run(ctx, c.ref(folder), keyword)
}

// RunHighlights splits the video into clips, then batches over the split
// output folder. A failed split halts before any clip is processed and the
// failed run is returned with its error.
func (c *Coordinator) RunHighlights(ctx context.Context, input, keyword string) (*pipeline.Run, *batch.Report, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, nil, batch.ErrEmptyKeyword
	}
	specs, err := c.catalog.Chain(pipeline.ChainAudioSplit)
	if err != nil {
		return nil, nil, err
	}

	run := c.executor.RunChain(ctx, specs, c.ref(input), nil)
	if !run.Succeeded() {
		return run, nil, run.Err()
	}

	folder := pathmap.ResolveRef(run.CurrentInput, pathmap.DirContract())
	c.logger.Info("split finished, starting batch", "run_id", run.ID, "folder", logging.SanitizePath(folder.Raw))

	rep, err := c.processor.Run(ctx, folder, keyword)
	return run, rep, err
}

// Execute dispatches a tagged request.
func (c *Coordinator) Execute(ctx context.Context, req Request) Result {
	if req == nil {
		return Result{Err: apperr.Newf(apperr.KindContractViolation, "empty request")}
	}
	res := Result{Mode: req.Mode()}
	switch r := req.(type) {
	case Single:
		res.Run, res.Err = c.RunSingleStage(ctx, r.Stage, r.Input, r.Params)
	case Chain:
		res.Run, res.Err = c.RunChain(ctx, r.Stages, r.Input, r.Params)
	case Batch:
		res.Report, res.Err = c.RunBatch(ctx, r.Folder, r.Keyword)
	case Highlights:
		res.Run, res.Report, res.Err = c.RunHighlights(ctx, r.Input, r.Keyword)
	default:
		res.Err = apperr.Newf(apperr.KindContractViolation, "unsupported request %T", req)
	}
	if res.Err == nil && res.Run != nil {
		res.Err = res.Run.Err()
	}
	return res
}

// Availability reports whether the workers can be reached, using the
// cached probe when fresh.
func (c *Coordinator) Availability(ctx context.Context) (*worker.Availability, error) {
	if c.availability == nil {
		return nil, fmt.Errorf("availability probe not configured")
	}
	return c.availability.Get(ctx)
}
