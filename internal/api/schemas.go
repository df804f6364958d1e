package api

import (
	"time"

	"github.com/heimdex/highlighter/internal/batch"
	"github.com/heimdex/highlighter/internal/highlights"
	"github.com/heimdex/highlighter/internal/pipeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State     string           `json:"state"`
	Transport string           `json:"transport"`
	Workers   *WorkersResponse `json:"workers,omitempty"`
	Stages    []StageResponse  `json:"stages"`
	Chains    []string         `json:"chains"`
}

type WorkersResponse struct {
	Reachable   bool            `json:"reachable"`
	Endpoints   map[string]bool `json:"endpoints"`
	Detail      string          `json:"detail,omitempty"`
	LastProbeAt string          `json:"last_probe_at,omitempty"`
}

type StageResponse struct {
	Name        string   `json:"name"`
	Endpoint    string   `json:"endpoint"`
	Description string   `json:"description"`
	Accepts     string   `json:"accepts"`
	Params      []string `json:"params,omitempty"`
}

type StageRequest struct {
	Stage  string            `json:"stage"`
	Input  string            `json:"input"`
	Params map[string]string `json:"params,omitempty"`
}

// ChainRequest names either a chain or an explicit stage list.
type ChainRequest struct {
	Chain  string            `json:"chain,omitempty"`
	Stages []string          `json:"stages,omitempty"`
	Input  string            `json:"input"`
	Params map[string]string `json:"params,omitempty"`
}

type BatchRequest struct {
	Folder  string `json:"folder"`
	Keyword string `json:"keyword"`
}

type HighlightsRequest struct {
	Input   string `json:"input"`
	Keyword string `json:"keyword"`
}

type StepResponse struct {
	Stage          string `json:"stage"`
	Status         string `json:"status"`
	Input          string `json:"input"`
	OutputLocation string `json:"output_location,omitempty"`
	Output         string `json:"output,omitempty"`
	Diagnostics    string `json:"diagnostics,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
}

type RunResponse struct {
	ID            string         `json:"id"`
	Mode          string         `json:"mode"`
	Stages        []string       `json:"stages"`
	Status        string         `json:"status"`
	Output        string         `json:"output,omitempty"`
	FailedStage   string         `json:"failed_stage,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Fault         string         `json:"fault,omitempty"`
	Steps         []StepResponse `json:"steps"`
	StartedAt     string         `json:"started_at"`
	FinishedAt    string         `json:"finished_at,omitempty"`
}

type ItemResponse struct {
	Index       int    `json:"index"`
	Clip        string `json:"clip"`
	Status      string `json:"status"`
	Excerpt     string `json:"excerpt"`
	Detail      string `json:"detail,omitempty"`
	Destination string `json:"destination,omitempty"`
}

type BatchResponse struct {
	ID         string         `json:"id"`
	Folder     string         `json:"folder"`
	Keyword    string         `json:"keyword"`
	Items      []ItemResponse `json:"items"`
	Counts     map[string]int `json:"counts"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
}

type HighlightsRunResponse struct {
	Split *RunResponse   `json:"split"`
	Batch *BatchResponse `json:"batch,omitempty"`
	Error string         `json:"error,omitempty"`
}

type HighlightResponse struct {
	Name       string `json:"name"`
	Bytes      int64  `json:"bytes"`
	SourcePath string `json:"source_path,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	SavedAt    string `json:"saved_at"`
	URL        string `json:"url"`

	Segment *SegmentResponse `json:"segment,omitempty"`
}

type SegmentResponse struct {
	SourceVideo string `json:"source_video"`
	StartMs     int    `json:"start_ms"`
	EndMs       int    `json:"end_ms"`
}

type HighlightsResponse struct {
	Highlights []HighlightResponse `json:"highlights"`
}

type ErrorResponse struct {
	Error string       `json:"error"`
	Code  string       `json:"code"`
	Run   *RunResponse `json:"run,omitempty"`
}

func StageToResponse(s pipeline.StageSpec) StageResponse {
	return StageResponse{
		Name:        s.Name,
		Endpoint:    s.Endpoint,
		Description: s.Description,
		Accepts:     s.Input.String(),
		Params:      s.Params,
	}
}

func RunToResponse(r *pipeline.Run) RunResponse {
	resp := RunResponse{
		ID:            r.ID,
		Mode:          string(r.Mode),
		Stages:        r.Stages,
		Status:        string(r.Status),
		Output:        r.Output(),
		FailedStage:   r.FailedStage,
		FailureReason: r.FailureReason,
		Fault:         string(r.Fault),
		Steps:         make([]StepResponse, len(r.Steps)),
		StartedAt:     r.StartedAt.Format(time.RFC3339),
	}
	if !r.FinishedAt.IsZero() {
		resp.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	for i, s := range r.Steps {
		resp.Steps[i] = StepResponse{
			Stage:          s.Stage,
			Status:         s.Outcome.Status.String(),
			Input:          s.Input,
			OutputLocation: s.Outcome.OutputLocation,
			Output:         s.Output,
			Diagnostics:    s.Outcome.Diagnostics,
			DurationMS:     s.Outcome.Duration.Milliseconds(),
		}
	}
	return resp
}

func ReportToResponse(r *batch.Report) BatchResponse {
	resp := BatchResponse{
		ID:         r.ID,
		Folder:     r.Folder,
		Keyword:    r.Keyword,
		Items:      make([]ItemResponse, len(r.Items)),
		Counts:     make(map[string]int),
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
	}
	for i, it := range r.Items {
		resp.Items[i] = ItemResponse{
			Index:       it.Index,
			Clip:        it.ClipPath,
			Status:      string(it.Status),
			Excerpt:     it.Excerpt,
			Detail:      it.Detail,
			Destination: it.Destination,
		}
	}
	for s, n := range r.Counts() {
		resp.Counts[string(s)] = n
	}
	return resp
}

func DestinationToResponse(d *highlights.Destination) HighlightResponse {
	resp := HighlightResponse{
		Name:       d.Name,
		Bytes:      d.Bytes,
		SourcePath: d.SourcePath,
		Keyword:    d.Keyword,
		Excerpt:    d.Excerpt,
		RunID:      d.RunID,
		SavedAt:    d.SavedAt.Format(time.RFC3339),
		URL:        "/v1/highlights/" + d.Name,
	}
	if d.Segment != nil {
		resp.Segment = &SegmentResponse{
			SourceVideo: d.Segment.SourceVideo,
			StartMs:     d.Segment.StartMs,
			EndMs:       d.Segment.EndMs,
		}
	}
	return resp
}
