package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/batch"
	"github.com/heimdex/highlighter/internal/highlights"
	"github.com/heimdex/highlighter/internal/pathmap"
	"github.com/heimdex/highlighter/internal/pipeline"
	"github.com/heimdex/highlighter/internal/worker"
)

func TestRenderRun_Completed(t *testing.T) {
	now := time.Now()
	run := &pipeline.Run{
		Stages:       []string{"extract-audio", "timestamps", "split"},
		Status:       pipeline.StatusCompleted,
		CurrentInput: pathmap.LocalRef("./media_data/outputs/video"),
		StartedAt:    now.Add(-3 * time.Second),
		FinishedAt:   now,
		Steps: []pipeline.Step{
			{Stage: "extract-audio", Outcome: worker.Succeeded("extract-audio", "/data/a", ""), Output: "./media_data/a"},
			{Stage: "timestamps", Outcome: worker.Succeeded("timestamps", "/data/b", ""), Output: "./media_data/b/result.tar.gz"},
			{Stage: "split", Outcome: worker.Succeeded("split", "/data/outputs/video", ""), Output: "./media_data/outputs/video"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewRenderer().RenderRun(&buf, run))

	out := buf.String()
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "output: ./media_data/outputs/video")
	assert.Contains(t, out, "extract-audio -> timestamps -> split")
}

func TestRenderRun_FailedShowsStageNotPath(t *testing.T) {
	run := &pipeline.Run{
		Stages:        []string{"extract-audio", "timestamps", "split"},
		Status:        pipeline.StatusFailed,
		CurrentInput:  pathmap.LocalRef("./media_data/outputs/v_ffmpeg0/result.tar.gz"),
		FailedStage:   "timestamps",
		Fault:         apperr.KindWorkerFailed,
		Diagnostics:   "CRITICAL: No .wav file found\nexit 1",
		FailureReason: `stage "timestamps" failed`,
	}

	var buf bytes.Buffer
	require.NoError(t, NewRenderer().RenderRun(&buf, run))

	out := buf.String()
	assert.Contains(t, out, "at stage timestamps")
	assert.Contains(t, out, "  CRITICAL: No .wav file found")
	assert.NotContains(t, out, "output:")
	assert.NotContains(t, out, "v_ffmpeg0")
}

func TestRenderBatch_OneLinePerClip(t *testing.T) {
	rep := &batch.Report{
		Folder:  "./media_data/outputs/video",
		Keyword: "caffeine",
		Items: []batch.Item{
			{Index: 1, ClipPath: "./media_data/outputs/video/clip_1.mp4", Status: batch.StatusSaved, Excerpt: "too much caffeine"},
			{Index: 2, ClipPath: "./media_data/outputs/video/clip_2.mp4", Status: batch.StatusPrepFailed, Excerpt: batch.ExcerptNA, Detail: "ffmpeg\nexploded"},
			{Index: 3, ClipPath: "./media_data/outputs/video/clip_3.mp4", Status: batch.StatusSearchNoMatch, Excerpt: "tea"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewRenderer().RenderBatch(&buf, rep))
	out := buf.String()

	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "clip_") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 3)
	assert.Contains(t, rows[0], "saved")
	assert.Contains(t, rows[1], "prep_failed")
	assert.Contains(t, rows[1], "N/A (ffmpeg exploded)")
	assert.Contains(t, rows[2], "no_match")

	assert.Contains(t, out, "3 clips")
	assert.Contains(t, out, "saved=1")
	assert.Contains(t, out, "prep_failed=1")
}

func TestRenderHighlights(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer().RenderHighlights(&buf, nil))
	assert.Contains(t, buf.String(), "no highlights saved")

	buf.Reset()
	list := []*highlights.Destination{
		{Name: "clip_1.mp4", Bytes: 2_500_000, SavedAt: time.Now().Add(-time.Hour), Keyword: "caffeine", SourcePath: "./media_data/outputs/video/clip_1.mp4",
			Segment: &highlights.Segment{SourceVideo: "./media_data/outputs/video/video.mp4", StartMs: 65_000, EndMs: 80_000}},
	}
	require.NoError(t, NewRenderer().RenderHighlights(&buf, list))
	out := buf.String()
	assert.Contains(t, out, "clip_1.mp4")
	assert.Contains(t, out, "2.5 MB")
	assert.Contains(t, out, "1 hour ago")
	assert.Contains(t, out, "00:01:05-00:01:20")
}

func TestRenderAvailability(t *testing.T) {
	var buf bytes.Buffer
	err := NewRenderer().RenderAvailability(&buf, &worker.Availability{
		Transport: "http",
		Reachable: false,
		Detail:    "connection refused",
		Endpoints: map[string]bool{"grep": false, "ffmpeg0": false},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "unreachable (connection refused)")
	assert.Less(t, strings.Index(out, "ffmpeg0"), strings.Index(out, "grep"))
}

func TestCell(t *testing.T) {
	assert.Equal(t, "a b", cell("a\n\tb"))
	long := strings.Repeat("x", 200)
	got := cell(long)
	assert.Len(t, []rune(got), maxCellRunes)
	assert.True(t, strings.HasSuffix(got, "..."))
}
