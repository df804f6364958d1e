package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/logging"
)

// HTTPConfig configures the gateway dispatcher.
type HTTPConfig struct {
	BaseURL string        // gateway root, e.g. http://localhost:8000
	Timeout time.Duration // per invocation; workers may run for many minutes
	Logger  *slog.Logger
	Client  *http.Client // optional; overrides Timeout
}

// HTTPDispatcher uploads the artifact to the worker gateway as a multipart
// form and reads the worker's structured JSON reply.
type HTTPDispatcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPDispatcher(cfg HTTPConfig) *HTTPDispatcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPDispatcher{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: client,
		logger:     logging.WithComponent(logging.OrDiscard(cfg.Logger), "dispatcher"),
	}
}

func (d *HTTPDispatcher) endpointURL(endpoint string) string {
	return fmt.Sprintf("%s/%s/", d.baseURL, strings.Trim(endpoint, "/"))
}

// Invoke runs one stage through the gateway.
func (d *HTTPDispatcher) Invoke(ctx context.Context, req Request) Outcome {
	start := time.Now()
	if o := checkInput(req); o != nil {
		return finish(d.logger, *o, start)
	}

	url := d.endpointURL(req.Endpoint)
	body, contentType := multipartBody(req)
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return finish(d.logger, SystemFailure(req.Stage, apperr.KindWorkerUnreachable, fmt.Sprintf("create request: %v", err)), start)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Highlighter-Request-Id", uuid.NewString())

	d.logger.Info("invoking worker",
		"stage", req.Stage,
		"url", url,
		"input", logging.SanitizePath(req.Input.Raw),
	)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return finish(d.logger, SystemFailure(req.Stage, apperr.KindWorkerUnreachable, fmt.Sprintf("http request failed: %v", err)), start)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return finish(d.logger, SystemFailure(req.Stage, apperr.KindWorkerUnreachable, fmt.Sprintf("read response: %v", err)), start)
	}

	return finish(d.logger, classify(req.Stage, resp.StatusCode, raw), start)
}

// classify maps a gateway reply to an Outcome. A 2xx reply must name an
// output location; any reply that is not JSON means the gateway itself is
// broken and counts as unreachable.
func classify(stage string, statusCode int, raw []byte) Outcome {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return SystemFailure(stage, apperr.KindWorkerUnreachable,
			fmt.Sprintf("non-JSON response (HTTP %d): %s", statusCode, truncate(string(raw), 512)))
	}

	if statusCode >= 200 && statusCode < 300 && !strings.EqualFold(r.Status, "error") {
		return Succeeded(stage, r.OutputLocation, r.diagnostics())
	}

	diag := r.diagnostics()
	if diag == "" {
		diag = fmt.Sprintf("HTTP %d: %s", statusCode, truncate(string(raw), 512))
	}
	return Failure(stage, diag)
}

// multipartBody streams the artifact and params as a multipart form so large
// videos are never buffered in memory.
func multipartBody(req Request) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeForm(mw, req)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writeForm(mw *multipart.Writer, req Request) error {
	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, req.Params[k]); err != nil {
			return err
		}
	}

	f, err := os.Open(req.Input.Raw)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile("file", filepath.Base(req.Input.Raw))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Probe checks that the gateway answers HTTP at all. The gateway routes
// every endpoint, so reachability applies to all of them.
func (d *HTTPDispatcher) Probe(ctx context.Context, endpoints []string) (*Availability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("create probe request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()

	avail := &Availability{
		Transport: "http",
		Reachable: true,
		Endpoints: make(map[string]bool, len(endpoints)),
		Detail:    fmt.Sprintf("gateway answered HTTP %d", resp.StatusCode),
		ProbedAt:  time.Now(),
	}
	for _, e := range endpoints {
		avail.Endpoints[e] = true
	}
	return avail, nil
}
