// Package batch applies the clip-search sub-pipeline to every clip in a
// folder. Item failures are recorded as report rows and never abort the
// batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/highlights"
	"github.com/heimdex/highlighter/internal/logging"
	"github.com/heimdex/highlighter/internal/metrics"
	"github.com/heimdex/highlighter/internal/pathmap"
	"github.com/heimdex/highlighter/internal/pipeline"
)

// ErrEmptyKeyword is returned when a batch is started without a keyword.
var ErrEmptyKeyword = errors.New("keyword is required")

// Saver receives clips whose transcript matched.
type Saver interface {
	Save(ctx context.Context, clip pathmap.PathRef, note highlights.Note) (*highlights.Destination, error)
}

type Options struct {
	ClipExt string // default ".mp4"

	// Concurrency <= 1 processes clips one at a time.
	Concurrency int

	// DelegateSearch runs the search stage on a worker instead of reading
	// the transcript locally.
	DelegateSearch bool
}

type Processor struct {
	executor *pipeline.Executor
	saver    Saver
	opts     Options
	logger   *slog.Logger

	prepare    pipeline.StageSpec
	transcribe pipeline.StageSpec
	search     pipeline.StageSpec
}

func NewProcessor(exec *pipeline.Executor, catalog *pipeline.Catalog, saver Saver, opts Options, logger *slog.Logger) (*Processor, error) {
	if opts.ClipExt == "" {
		opts.ClipExt = highlights.DefaultExt
	}
	stages, err := catalog.Chain(pipeline.ChainClipSearch)
	if err != nil {
		return nil, err
	}
	return &Processor{
		executor:   exec,
		saver:      saver,
		opts:       opts,
		logger:     logging.WithComponent(logging.OrDiscard(logger), "batch"),
		prepare:    stages[0],
		transcribe: stages[1],
		search:     stages[2],
	}, nil
}

// Run discovers clips under folder and processes each one. The returned
// error covers only batch-level failures: a missing folder, no clips, or an
// empty keyword.
func (p *Processor) Run(ctx context.Context, folder pathmap.PathRef, keyword string) (*Report, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}
	if !folder.IsLocal() {
		folder = p.executor.Translator().Ref(folder.Raw)
	}

	info, err := os.Stat(folder.Raw)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInputNotFound, Path: folder.Raw, Err: err}
	}
	if !info.IsDir() {
		return nil, &apperr.Error{Kind: apperr.KindInputNotFound, Path: folder.Raw, Err: errors.New("not a directory")}
	}

	clips, err := Discover(folder.Raw, p.opts.ClipExt)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInputNotFound, Path: folder.Raw, Err: err}
	}
	if len(clips) == 0 {
		metrics.IncRun("batch", "failed")
		return nil, &apperr.Error{Kind: apperr.KindNoItemsFound, Path: folder.Raw,
			Err: fmt.Errorf("no %s clips found", p.opts.ClipExt)}
	}

	report := &Report{
		ID:        uuid.NewString(),
		Folder:    folder.Raw,
		Keyword:   keyword,
		Items:     make([]Item, len(clips)),
		StartedAt: time.Now(),
	}
	for i, c := range clips {
		report.Items[i] = Item{Index: i + 1, ClipPath: c, Status: StatusPending}
	}

	log := logging.WithRunID(p.logger, report.ID)
	log.Info("batch started",
		"folder", logging.SanitizePath(folder.Raw),
		"keyword", keyword,
		"clips", len(clips),
		"concurrency", p.opts.Concurrency,
	)

	if p.opts.Concurrency <= 1 {
		for i := range report.Items {
			p.processItem(ctx, log, report, &report.Items[i])
		}
	} else {
		// each goroutine owns exactly one slot, so rows stay in discovery
		// order regardless of completion order
		var g errgroup.Group
		g.SetLimit(p.opts.Concurrency)
		for i := range report.Items {
			it := &report.Items[i]
			g.Go(func() error {
				p.processItem(ctx, log, report, it)
				return nil
			})
		}
		_ = g.Wait()
	}

	report.FinishedAt = time.Now()
	for _, it := range report.Items {
		metrics.IncBatchItem(string(it.Status))
	}
	metrics.IncRun("batch", "completed")

	counts := report.Counts()
	log.Info("batch finished",
		"clips", len(report.Items),
		"saved", counts[StatusSaved],
		"no_match", counts[StatusSearchNoMatch],
		"failed", report.Failures(),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, nil
}

func (p *Processor) processItem(ctx context.Context, log *slog.Logger, report *Report, it *Item) {
	start := time.Now()
	log = logging.WithClip(log, it.Index, it.ClipPath)
	defer func() {
		it.Duration = time.Since(start)
		log.Debug("item finished", "status", it.Status, "duration_ms", it.Duration.Milliseconds())
	}()

	run := p.executor.RunChain(ctx,
		[]pipeline.StageSpec{p.prepare, p.transcribe},
		pathmap.LocalRef(it.ClipPath), nil)
	if !run.Succeeded() {
		status := StatusTranscribeFailed
		if run.FailedStage == p.prepare.Name {
			status = StatusPrepFailed
		}
		it.fail(status, run.FailureReason)
		log.Warn("item failed", "status", status, "reason", run.FailureReason)
		return
	}

	pkg := pathmap.Resolve(run.Output(), p.search.Input)

	var (
		matched bool
		excerpt string
		err     error
	)
	if p.opts.DelegateSearch {
		matched, excerpt, err = p.delegatedSearch(ctx, pkg, report.Keyword)
	} else {
		matched, excerpt, err = localSearch(pkg, report.Keyword)
	}
	if err != nil {
		it.fail(StatusSearchFailed, err.Error())
		log.Warn("item failed", "status", StatusSearchFailed, "error", err)
		return
	}

	it.Excerpt = excerpt
	if !matched {
		it.Status = StatusSearchNoMatch
		return
	}
	it.Status = StatusSearchMatch

	d, err := p.saver.Save(ctx, pathmap.LocalRef(it.ClipPath), highlights.Note{
		RunID:   report.ID,
		Keyword: report.Keyword,
		Excerpt: excerpt,
		Segment: SegmentFor(it.ClipPath),
	})
	if err != nil {
		it.Status = StatusSaveFailed
		it.Detail = err.Error()
		return
	}
	it.Status = StatusSaved
	it.Destination = d.Path
}

func localSearch(pkg, keyword string) (bool, string, error) {
	text, err := ReadTranscript(pkg)
	if err != nil {
		return false, "", fmt.Errorf("read transcript: %w", err)
	}
	return Contains(text, keyword), Excerpt(text, keyword), nil
}

// delegatedSearch runs the search worker. The worker only writes its
// result archive on a match, so a successful run without one is a miss.
func (p *Processor) delegatedSearch(ctx context.Context, pkg, keyword string) (bool, string, error) {
	run := p.executor.RunSingle(ctx, p.search, pathmap.LocalRef(pkg),
		map[string]string{pipeline.ParamWord: keyword})
	if !run.Succeeded() {
		return false, "", errors.New(run.FailureReason)
	}

	result := pathmap.Resolve(run.Output(), p.search.Input)
	matched := fileExists(result)

	excerpt := ""
	for _, src := range []string{result, pkg} {
		if text, err := ReadTranscript(src); err == nil {
			excerpt = Excerpt(text, keyword)
			break
		}
	}
	return matched, excerpt, nil
}
