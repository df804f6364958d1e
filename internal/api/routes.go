package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/batch"
	"github.com/heimdex/highlighter/internal/coordinator"
	"github.com/heimdex/highlighter/internal/export"
	"github.com/heimdex/highlighter/internal/pipeline"
	"github.com/heimdex/highlighter/internal/playback"
)

const defaultRunsPerMinute = 30

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSMiddleware())

	r.Get("/health", healthHandler(cfg))
	r.Get("/status", statusHandler(cfg))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stages", listStagesHandler(cfg))
		r.Get("/highlights", listHighlightsHandler(cfg))
		r.Get("/highlights/{name}", streamHighlightHandler(cfg))
		r.Get("/reel.edl", reelHandler(cfg))

		r.Group(func(r chi.Router) {
			limit := cfg.RunsPerMinute
			if limit <= 0 {
				limit = defaultRunsPerMinute
			}
			r.Use(RateLimit(limit, time.Minute))

			r.Post("/runs/stage", runStageHandler(cfg))
			r.Post("/runs/chain", runChainHandler(cfg))
			r.Post("/runs/batch", runBatchHandler(cfg))
			r.Post("/runs/highlights", runHighlightsHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog := cfg.Coordinator.Catalog()
		resp := StatusResponse{
			State:     "ready",
			Transport: cfg.Transport,
			Stages:    make([]StageResponse, 0, len(catalog.Stages())),
			Chains:    pipeline.ChainNames(),
		}
		for _, s := range catalog.Stages() {
			resp.Stages = append(resp.Stages, StageToResponse(s))
		}

		avail, err := cfg.Coordinator.Availability(r.Context())
		switch {
		case err != nil:
			resp.State = "unknown"
		case !avail.Reachable:
			resp.State = "degraded"
		}
		if avail != nil {
			resp.Workers = &WorkersResponse{
				Reachable: avail.Reachable,
				Endpoints: avail.Endpoints,
				Detail:    avail.Detail,
			}
			if !avail.ProbedAt.IsZero() {
				resp.Workers.LastProbeAt = avail.ProbedAt.Format(time.RFC3339)
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listStagesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stages := cfg.Coordinator.Catalog().Stages()
		resp := make([]StageResponse, len(stages))
		for i, s := range stages {
			resp[i] = StageToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func runStageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Stage == "" || req.Input == "" {
			WriteError(w, http.StatusBadRequest, "stage and input are required", "BAD_REQUEST")
			return
		}

		res := cfg.Coordinator.Execute(r.Context(), coordinator.Single{Stage: req.Stage, Input: req.Input, Params: req.Params})
		writeRunResult(w, res)
	}
}

func runChainHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Chain != "" && len(req.Stages) > 0 {
			WriteError(w, http.StatusBadRequest, "set either chain or stages, not both", "BAD_REQUEST")
			return
		}
		stages := req.Stages
		if req.Chain != "" {
			stages = []string{req.Chain}
		}
		if len(stages) == 0 || req.Input == "" {
			WriteError(w, http.StatusBadRequest, "chain or stages, and input, are required", "BAD_REQUEST")
			return
		}

		res := cfg.Coordinator.Execute(r.Context(), coordinator.Chain{Stages: stages, Input: req.Input, Params: req.Params})
		writeRunResult(w, res)
	}
}

func runBatchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Folder == "" {
			WriteError(w, http.StatusBadRequest, "folder is required", "BAD_REQUEST")
			return
		}

		res := cfg.Coordinator.Execute(r.Context(), coordinator.Batch{Folder: req.Folder, Keyword: req.Keyword})
		if res.Err != nil {
			status, code := errorStatus(res.Err)
			WriteError(w, status, res.Err.Error(), code)
			return
		}
		WriteJSON(w, http.StatusOK, ReportToResponse(res.Report))
	}
}

func runHighlightsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HighlightsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Input == "" {
			WriteError(w, http.StatusBadRequest, "input is required", "BAD_REQUEST")
			return
		}

		res := cfg.Coordinator.Execute(r.Context(), coordinator.Highlights{Input: req.Input, Keyword: req.Keyword})
		if res.Run == nil {
			status, code := errorStatus(res.Err)
			WriteError(w, status, res.Err.Error(), code)
			return
		}

		split := RunToResponse(res.Run)
		resp := HighlightsRunResponse{Split: &split}
		if res.Report != nil {
			rep := ReportToResponse(res.Report)
			resp.Batch = &rep
		}
		status := http.StatusOK
		if res.Err != nil {
			status, _ = errorStatus(res.Err)
			resp.Error = res.Err.Error()
		}
		WriteJSON(w, status, resp)
	}
}

// writeRunResult reports a finished run with its status, or a failed run
// alongside the error so callers still see which stage halted.
func writeRunResult(w http.ResponseWriter, res coordinator.Result) {
	if res.Run == nil {
		status, code := errorStatus(res.Err)
		WriteError(w, status, res.Err.Error(), code)
		return
	}
	run := RunToResponse(res.Run)
	if res.Err != nil {
		status, code := errorStatus(res.Err)
		WriteJSON(w, status, ErrorResponse{Error: res.Err.Error(), Code: code, Run: &run})
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

func errorStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, pipeline.ErrUnknownStage):
		return http.StatusBadRequest, "UNKNOWN_STAGE"
	case errors.Is(err, batch.ErrEmptyKeyword):
		return http.StatusBadRequest, "EMPTY_KEYWORD"
	}
	kind := apperr.KindOf(err)
	code := strings.ToUpper(string(kind))
	switch kind {
	case apperr.KindInputNotFound, apperr.KindNoItemsFound:
		return http.StatusNotFound, code
	case apperr.KindContractViolation:
		return http.StatusUnprocessableEntity, code
	case apperr.KindWorkerFailed:
		return http.StatusBadGateway, code
	case apperr.KindWorkerUnreachable:
		return http.StatusServiceUnavailable, code
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func listHighlightsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Sink == nil {
			WriteError(w, http.StatusServiceUnavailable, "highlight sink not configured", "UNAVAILABLE")
			return
		}
		saved, err := cfg.Sink.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list highlights", "INTERNAL_ERROR")
			return
		}

		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(saved) {
				saved = saved[:n]
			}
		}

		resp := HighlightsResponse{Highlights: make([]HighlightResponse, len(saved))}
		for i, d := range saved {
			resp.Highlights[i] = DestinationToResponse(d)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func streamHighlightHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Sink == nil {
			WriteError(w, http.StatusServiceUnavailable, "highlight sink not configured", "UNAVAILABLE")
			return
		}
		name := chi.URLParam(r, "name")
		player := playback.NewServer(cfg.Sink, cfg.Logger)
		if err := player.ServeClip(w, r, name); err != nil {
			status, code := errorStatus(err)
			if status == http.StatusUnprocessableEntity {
				status = http.StatusBadRequest
			}
			WriteError(w, status, err.Error(), code)
		}
	}
}

// reelHandler renders saved highlights as an EDL against their source
// videos. Highlights whose segment is unknown are counted in X-Reel-Skipped.
func reelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Sink == nil {
			WriteError(w, http.StatusServiceUnavailable, "highlight sink not configured", "UNAVAILABLE")
			return
		}
		q := r.URL.Query()

		var fps float64
		if s := q.Get("fps"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v <= 0 {
				WriteError(w, http.StatusBadRequest, "fps must be a positive number", "BAD_REQUEST")
				return
			}
			fps = v
		}

		saved, err := cfg.Sink.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list highlights", "INTERNAL_ERROR")
			return
		}

		reel := export.NewReel(q.Get("title"), fps, q.Get("keyword"), saved)
		edl, err := reel.EDL()
		if errors.Is(err, export.ErrEmptyReel) {
			WriteError(w, http.StatusNotFound, err.Error(), "EMPTY_REEL")
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reel.Title+".edl"))
		w.Header().Set("X-Reel-Skipped", strconv.Itoa(len(reel.Skipped)))
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, edl)
	}
}
