// Package report renders pipeline runs, batch reports and the highlights
// listing for a terminal.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/highlighter/internal/batch"
	"github.com/heimdex/highlighter/internal/highlights"
	"github.com/heimdex/highlighter/internal/pipeline"
	"github.com/heimdex/highlighter/internal/worker"
)

const maxCellRunes = 120

// Renderer writes human-readable reports.
type Renderer struct {
	styles Styles
}

func NewRenderer() *Renderer {
	return &Renderer{styles: DefaultStyles()}
}

// RenderRun prints the final output location of a completed run, or the
// failing stage and its diagnostics. A failed run never prints a partial
// output path.
func (r *Renderer) RenderRun(w io.Writer, run *pipeline.Run) error {
	var sb strings.Builder
	switch run.Status {
	case pipeline.StatusCompleted:
		sb.WriteString(r.styles.Success.Render("completed"))
		fmt.Fprintf(&sb, " %s in %s\n", strings.Join(run.Stages, " -> "), elapsed(run.StartedAt, run.FinishedAt))
		fmt.Fprintf(&sb, "output: %s\n", run.Output())
	default:
		sb.WriteString(r.styles.Failure.Render("failed"))
		stage := run.FailedStage
		if stage == "" {
			stage = "-"
		}
		fmt.Fprintf(&sb, " at stage %s (%s)\n", stage, run.Fault)
		if run.Diagnostics != "" {
			sb.WriteString(r.styles.Muted.Render("diagnostics:"))
			sb.WriteString("\n")
			sb.WriteString(indent(run.Diagnostics))
			sb.WriteString("\n")
		} else if run.FailureReason != "" {
			fmt.Fprintf(&sb, "reason: %s\n", run.FailureReason)
		}
	}

	if len(run.Steps) > 1 {
		t := newTable("", "Stage", "Status", "Duration", "Output")
		for _, s := range run.Steps {
			t.addRow(s.Stage, s.Outcome.Status.String(), s.Outcome.Duration.Round(time.Millisecond).String(), cell(s.Output))
		}
		sb.WriteString(t.view(r.styles))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderBatch prints one row per clip in discovery order, then the counts.
func (r *Renderer) RenderBatch(w io.Writer, rep *batch.Report) error {
	title := fmt.Sprintf("Batch %q in %s", rep.Keyword, rep.Folder)
	t := newTable(title, "#", "Clip", "Status", "Excerpt")
	for _, it := range rep.Items {
		excerpt := it.Excerpt
		if it.Status.Failed() && it.Detail != "" {
			excerpt = excerpt + " (" + it.Detail + ")"
		}
		t.addRow(strconv.Itoa(it.Index), filepath.Base(it.ClipPath), r.status(it.Status), cell(excerpt))
	}

	var sb strings.Builder
	sb.WriteString(t.view(r.styles))
	sb.WriteString(r.summary(rep))
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func (r *Renderer) status(s batch.Status) string {
	switch {
	case s == batch.StatusSaved:
		return r.styles.Success.Render(string(s))
	case s.Failed():
		return r.styles.Failure.Render(string(s))
	default:
		return string(s)
	}
}

func (r *Renderer) summary(rep *batch.Report) string {
	counts := rep.Counts()
	keys := make([]string, 0, len(counts))
	for s := range counts {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[batch.Status(k)]))
	}
	return fmt.Sprintf("%s clips, %s in %s",
		humanize.Comma(int64(len(rep.Items))),
		strings.Join(parts, " "),
		elapsed(rep.StartedAt, rep.FinishedAt))
}

// RenderHighlights lists saved clips, newest first.
func (r *Renderer) RenderHighlights(w io.Writer, list []*highlights.Destination) error {
	if len(list) == 0 {
		_, err := io.WriteString(w, r.styles.Muted.Render("no highlights saved")+"\n")
		return err
	}
	t := newTable("Highlights", "Name", "Size", "Saved", "Keyword", "Span", "Source")
	var total uint64
	for _, d := range list {
		total += uint64(d.Bytes)
		t.addRow(d.Name, humanize.Bytes(uint64(d.Bytes)), humanize.Time(d.SavedAt), d.Keyword, span(d.Segment), cell(d.SourcePath))
	}
	out := t.view(r.styles) + fmt.Sprintf("%d clips, %s\n", len(list), humanize.Bytes(total))
	_, err := io.WriteString(w, out)
	return err
}

// RenderAvailability prints the worker probe result.
func (r *Renderer) RenderAvailability(w io.Writer, a *worker.Availability) error {
	var sb strings.Builder
	state := r.styles.Success.Render("reachable")
	if !a.Reachable {
		state = r.styles.Failure.Render("unreachable")
	}
	fmt.Fprintf(&sb, "transport %s: %s", a.Transport, state)
	if a.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", a.Detail)
	}
	sb.WriteString("\n")

	names := make([]string, 0, len(a.Endpoints))
	for n := range a.Endpoints {
		names = append(names, n)
	}
	sort.Strings(names)
	t := newTable("", "Endpoint", "Available")
	for _, n := range names {
		t.addRow(n, strconv.FormatBool(a.Endpoints[n]))
	}
	sb.WriteString(t.view(r.styles))
	_, err := io.WriteString(w, sb.String())
	return err
}

func elapsed(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return "-"
	}
	return end.Sub(start).Round(time.Millisecond).String()
}

// cell flattens s onto one line and caps its length.
// span shows where a highlight sits in its source video, "-" when unknown.
func span(seg *highlights.Segment) string {
	if !seg.Valid() {
		return "-"
	}
	return clock(seg.StartMs) + "-" + clock(seg.EndMs)
}

func clock(ms int) string {
	s := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxCellRunes {
		return string(runes[:maxCellRunes-3]) + "..."
	}
	return s
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
