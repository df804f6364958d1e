package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/pathmap"
	"github.com/heimdex/highlighter/internal/worker"
)

// fakeDispatcher returns canned outcomes per stage and records every call.
type fakeDispatcher struct {
	mu       sync.Mutex
	outcomes map[string]worker.Outcome
	calls    []worker.Request
}

func (f *fakeDispatcher) Invoke(ctx context.Context, req worker.Request) worker.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if o, ok := f.outcomes[req.Stage]; ok {
		return o
	}
	return worker.Failure(req.Stage, "no canned outcome")
}

func (f *fakeDispatcher) Probe(ctx context.Context, endpoints []string) (*worker.Availability, error) {
	return &worker.Availability{Reachable: true}, nil
}

func (f *fakeDispatcher) stagesCalled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Stage)
	}
	return out
}

func newTestExecutor(t *testing.T, outcomes map[string]worker.Outcome) (*Executor, *fakeDispatcher, string) {
	t.Helper()
	root := t.TempDir() + "/"
	fake := &fakeDispatcher{outcomes: outcomes}
	return NewExecutor(fake, pathmap.NewTranslator("/data/", root), nil), fake, root
}

func TestRunChain_AudioSplitCompletes(t *testing.T) {
	exec, fake, root := newTestExecutor(t, map[string]worker.Outcome{
		StageExtractAudio: worker.Succeeded(StageExtractAudio, "/data/outputs/video_ffmpeg0/result.tar.gz", ""),
		StageTimestamps:   worker.Succeeded(StageTimestamps, "/data/outputs/video_librosa", ""),
		StageSplit:        worker.Succeeded(StageSplit, "/data/outputs/video", ""),
	})
	stages, err := NewCatalog(nil).Chain(ChainAudioSplit)
	if err != nil {
		t.Fatal(err)
	}

	run := exec.RunChain(context.Background(), stages, pathmap.LocalRef(root+"uploads/video.mp4"), nil)

	if run.Status != StatusCompleted {
		t.Fatalf("Status = %s, reason %q", run.Status, run.FailureReason)
	}
	if want := root + "outputs/video"; run.CurrentInput.Raw != want {
		t.Errorf("CurrentInput = %q, want %q", run.CurrentInput.Raw, want)
	}
	if run.Output() != run.CurrentInput.Raw {
		t.Errorf("Output() = %q", run.Output())
	}
	if run.Err() != nil {
		t.Errorf("Err() = %v, want nil", run.Err())
	}

	// timestamps consumed the package file; split got result.tar.gz appended
	// to the librosa output folder.
	calls := fake.calls
	if len(calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(calls))
	}
	if want := root + "outputs/video_ffmpeg0/result.tar.gz"; calls[1].Input.Raw != want {
		t.Errorf("timestamps input = %q, want %q", calls[1].Input.Raw, want)
	}
	if want := root + "outputs/video_librosa/result.tar.gz"; calls[2].Input.Raw != want {
		t.Errorf("split input = %q, want %q", calls[2].Input.Raw, want)
	}
	for _, c := range calls {
		if !c.Input.IsLocal() {
			t.Errorf("stage %s received non-local input %+v", c.Stage, c.Input)
		}
	}
}

func TestRunChain_HaltsOnFailure(t *testing.T) {
	exec, fake, root := newTestExecutor(t, map[string]worker.Outcome{
		StageExtractAudio: worker.Succeeded(StageExtractAudio, "/data/outputs/v_ffmpeg0/result.tar.gz", ""),
		StageTimestamps:   worker.Failure(StageTimestamps, "CRITICAL: No .wav file found"),
		StageSplit:        worker.Succeeded(StageSplit, "/data/outputs/v", ""),
	})
	stages, _ := NewCatalog(nil).Chain(ChainAudioSplit)

	run := exec.RunChain(context.Background(), stages, pathmap.LocalRef(root+"v.mp4"), nil)

	if run.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", run.Status)
	}
	if run.FailedStage != StageTimestamps {
		t.Errorf("FailedStage = %q", run.FailedStage)
	}
	if run.FailureReason != `stage "timestamps" failed: CRITICAL: No .wav file found` {
		t.Errorf("FailureReason = %q", run.FailureReason)
	}
	if got := fake.stagesCalled(); len(got) != 2 || got[1] != StageTimestamps {
		t.Errorf("stages called = %v, split must not run", got)
	}
	if run.Output() != "" {
		t.Errorf("failed run exposes output %q", run.Output())
	}
	if !errors.Is(run.Err(), apperr.ErrWorkerFailed) {
		t.Errorf("Err() = %v, want worker_failed", run.Err())
	}
}

func TestRunChain_UnreachableKeepsFault(t *testing.T) {
	exec, _, root := newTestExecutor(t, map[string]worker.Outcome{
		StagePrepareAudio: worker.SystemFailure(StagePrepareAudio, apperr.KindWorkerUnreachable, "connection refused"),
	})
	stages, _ := NewCatalog(nil).Chain(ChainClipSearch)

	run := exec.RunChain(context.Background(), stages, pathmap.LocalRef(root+"clip_1.mp4"), nil)

	if !errors.Is(run.Err(), apperr.ErrWorkerUnreachable) {
		t.Errorf("Err() = %v, want worker_unreachable", run.Err())
	}
}

func TestRunChain_ContractViolationNeverInvokes(t *testing.T) {
	exec, fake, root := newTestExecutor(t, nil)
	stages, _ := NewCatalog(nil).Chain(ChainAudioSplit)

	run := exec.RunChain(context.Background(), stages, pathmap.LocalRef(root+"notes.txt"), nil)

	if run.Status != StatusFailed || run.Fault != apperr.KindContractViolation {
		t.Fatalf("run = %+v, want contract violation", run)
	}
	if len(fake.stagesCalled()) != 0 {
		t.Errorf("dispatcher invoked %v", fake.stagesCalled())
	}
}

func TestRunChain_ControlPlaneInputTranslated(t *testing.T) {
	exec, fake, root := newTestExecutor(t, map[string]worker.Outcome{
		StagePrepareAudio: worker.Succeeded(StagePrepareAudio, "/data/outputs/clip_ffmpeg2", ""),
	})
	stage, _ := NewCatalog(nil).Lookup(StagePrepareAudio)

	run := exec.RunSingle(context.Background(), stage, pathmap.ControlRef("/data/outputs/v/clip_1.mp4"), nil)

	if run.Status != StatusCompleted {
		t.Fatalf("Status = %s (%s)", run.Status, run.FailureReason)
	}
	if got := fake.calls[0].Input.Raw; got != root+"outputs/v/clip_1.mp4" {
		t.Errorf("input = %q", got)
	}
	// a single stage output is translated but not resolved
	if run.Output() != root+"outputs/clip_ffmpeg2" {
		t.Errorf("Output() = %q", run.Output())
	}
}

func TestRunChain_ParamsFilteredPerStage(t *testing.T) {
	exec, fake, root := newTestExecutor(t, map[string]worker.Outcome{
		StagePrepareAudio: worker.Succeeded(StagePrepareAudio, "/data/outputs/c_ffmpeg2", ""),
		StageTranscribe:   worker.Succeeded(StageTranscribe, "/data/outputs/c_deepspeech", ""),
		StageSearch:       worker.Succeeded(StageSearch, "/data/outputs/c_grep/result.tar.gz", ""),
	})
	stages, _ := NewCatalog(nil).Chain(ChainClipSearch)

	run := exec.RunChain(context.Background(), stages, pathmap.LocalRef(root+"c.mp4"), map[string]string{ParamWord: "caffeine"})

	if run.Status != StatusCompleted {
		t.Fatalf("Status = %s (%s)", run.Status, run.FailureReason)
	}
	for _, c := range fake.calls {
		_, has := c.Params[ParamWord]
		if has != (c.Stage == StageSearch) {
			t.Errorf("stage %s params = %v", c.Stage, c.Params)
		}
	}
}

func TestRunChain_CancelledContext(t *testing.T) {
	exec, fake, root := newTestExecutor(t, nil)
	stages, _ := NewCatalog(nil).Chain(ChainAudioSplit)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := exec.RunChain(ctx, stages, pathmap.LocalRef(root+"v.mp4"), nil)

	if run.Status != StatusFailed || run.FailedStage != StageExtractAudio {
		t.Errorf("run = %+v", run)
	}
	if len(fake.stagesCalled()) != 0 {
		t.Error("cancelled run invoked a worker")
	}
}

func TestRun_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		valid    bool
	}{
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusRunning, false},
	}
	for _, tt := range tests {
		if got := isValidTransition(tt.from, tt.to); got != tt.valid {
			t.Errorf("isValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}

	r := &Run{Status: StatusCompleted}
	r.fail("split", apperr.KindWorkerFailed, "late", "")
	if r.Status != StatusCompleted || r.FailedStage != "" {
		t.Error("fail() changed a completed run")
	}
}
