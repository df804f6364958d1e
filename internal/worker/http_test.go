package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/pathmap"
)

func writeInput(t *testing.T, name, content string) pathmap.PathRef {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return pathmap.LocalRef(p)
}

func TestHTTPDispatcher_Success(t *testing.T) {
	var gotPath, gotWord, gotFile, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotWord = r.FormValue("word")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotFile, gotName = string(b), hdr.Filename

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{
			Status:         "success",
			Tool:           "grep",
			Logs:           "MATCH FOUND",
			OutputLocation: "/data/outputs/result_grep",
		})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	out := d.Invoke(context.Background(), Request{
		Stage:    "search",
		Endpoint: "grep",
		Input:    writeInput(t, "result.tar.gz", "archive-bytes"),
		Params:   map[string]string{"word": "caffeine"},
	})

	require.Equal(t, Success, out.Status, "diagnostics: %s", out.Diagnostics)
	assert.Equal(t, "/data/outputs/result_grep", out.OutputLocation)
	assert.Equal(t, "MATCH FOUND", out.Diagnostics)
	assert.Equal(t, "/grep/", gotPath)
	assert.Equal(t, "caffeine", gotWord)
	assert.Equal(t, "archive-bytes", gotFile)
	assert.Equal(t, "result.tar.gz", gotName)
	assert.True(t, out.Valid())
}

func TestHTTPDispatcher_WorkerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(Response{Status: "error", Error: "Invalid file format", Logs: "REJECTED: No valid .wav"})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{BaseURL: srv.URL})
	out := d.Invoke(context.Background(), Request{Stage: "transcribe", Endpoint: "deepspeech", Input: writeInput(t, "a.tar.gz", "x")})

	assert.Equal(t, Failed, out.Status)
	assert.Equal(t, "REJECTED: No valid .wav", out.Diagnostics)
	assert.Empty(t, out.OutputLocation)
	assert.ErrorIs(t, out.Err(), apperr.ErrWorkerFailed)
}

func TestHTTPDispatcher_ErrorFieldFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "No such container: worker_ffmpeg1"}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{BaseURL: srv.URL})
	out := d.Invoke(context.Background(), Request{Stage: "split", Endpoint: "ffmpeg1", Input: writeInput(t, "a.tar.gz", "x")})

	assert.Equal(t, Failed, out.Status)
	assert.Contains(t, out.Diagnostics, "No such container")
}

func TestHTTPDispatcher_SuccessWithoutLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"status": "success", "message": "done"}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{BaseURL: srv.URL})
	out := d.Invoke(context.Background(), Request{Stage: "split", Endpoint: "ffmpeg1", Input: writeInput(t, "a.tar.gz", "x")})

	assert.Equal(t, Failed, out.Status)
	assert.True(t, out.Valid())
}

func TestHTTPDispatcher_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{BaseURL: srv.URL})
	out := d.Invoke(context.Background(), Request{Stage: "split", Endpoint: "ffmpeg1", Input: writeInput(t, "a.tar.gz", "x")})

	assert.Equal(t, SystemError, out.Status)
	assert.Equal(t, apperr.KindWorkerUnreachable, out.Fault)
}

func TestHTTPDispatcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{BaseURL: url, Timeout: 2 * time.Second})
	out := d.Invoke(context.Background(), Request{Stage: "split", Endpoint: "ffmpeg1", Input: writeInput(t, "a.tar.gz", "x")})

	assert.Equal(t, SystemError, out.Status)
	assert.ErrorIs(t, out.Err(), apperr.ErrWorkerUnreachable)
}

func TestHTTPDispatcher_MissingInputNeverContactsWorker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{BaseURL: srv.URL})
	out := d.Invoke(context.Background(), Request{
		Stage:    "extract-audio",
		Endpoint: "ffmpeg0",
		Input:    pathmap.LocalRef(filepath.Join(t.TempDir(), "missing.mp4")),
	})

	assert.Equal(t, SystemError, out.Status)
	assert.Equal(t, apperr.KindInputNotFound, out.Fault)
	assert.Zero(t, calls.Load())
}

func TestHTTPDispatcher_ControlPlaneInputRejected(t *testing.T) {
	d := NewHTTPDispatcher(HTTPConfig{BaseURL: "http://127.0.0.1:1"})
	out := d.Invoke(context.Background(), Request{Stage: "split", Endpoint: "ffmpeg1", Input: pathmap.ControlRef("/data/outputs/x.tar.gz")})

	assert.Equal(t, apperr.KindInputNotFound, out.Fault)
	assert.True(t, strings.Contains(out.Diagnostics, "control-plane"))
}

func TestHTTPDispatcher_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPConfig{BaseURL: srv.URL})
	avail, err := d.Probe(context.Background(), []string{"ffmpeg0", "grep"})
	require.NoError(t, err)
	assert.True(t, avail.Reachable)
	assert.True(t, avail.Endpoints["grep"])
	assert.Equal(t, "http", avail.Transport)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		body   string
		status Status
	}{
		{"ok", 200, `{"status":"success","output_location":"/data/outputs/x"}`, Success},
		{"status error on 200", 200, `{"status":"error","logs":"bad"}`, Failed},
		{"bad request", 400, `{"error":"No file provided"}`, Failed},
		{"empty object on 500", 500, `{}`, Failed},
		{"garbage", 502, `Bad Gateway`, SystemError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := classify("split", tt.code, []byte(tt.body))
			if o.Status != tt.status {
				t.Errorf("classify() status = %s, want %s (%+v)", o.Status, tt.status, o)
			}
			if !o.Valid() {
				t.Errorf("classify() produced invalid outcome %+v", o)
			}
		})
	}
}
