package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.Transport() != TransportHTTP {
		t.Errorf("Transport() = %q", cfg.Transport())
	}
	if cfg.ControlRoot() != "/data/" || cfg.LocalRoot() != "./media_data/" {
		t.Errorf("roots = %q, %q", cfg.ControlRoot(), cfg.LocalRoot())
	}
	if cfg.HighlightsDir() != filepath.Join("media_data", "highlights") {
		t.Errorf("HighlightsDir() = %q", cfg.HighlightsDir())
	}
	if cfg.BatchConcurrency() != 1 || cfg.DelegateSearch() {
		t.Errorf("batch defaults = %d, %v", cfg.BatchConcurrency(), cfg.DelegateSearch())
	}
	if cfg.WorkerTimeout() != 30*time.Minute {
		t.Errorf("WorkerTimeout() = %v", cfg.WorkerTimeout())
	}
	if filepath.Base(cfg.DBPath()) != DBFilename {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvTransport, "EXEC")
	t.Setenv(EnvLocalRoot, "/srv/media")
	t.Setenv(EnvBatchConcurrency, "4")
	t.Setenv(EnvDelegateSearch, "true")
	t.Setenv(EnvWorkerTimeout, "60")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 {
		t.Errorf("Port() = %d", cfg.Port())
	}
	if cfg.Transport() != TransportExec {
		t.Errorf("Transport() = %q", cfg.Transport())
	}
	if cfg.LocalRoot() != "/srv/media/" {
		t.Errorf("LocalRoot() = %q, want trailing slash", cfg.LocalRoot())
	}
	if cfg.HighlightsDir() != "/srv/media/highlights" {
		t.Errorf("HighlightsDir() = %q", cfg.HighlightsDir())
	}
	if cfg.BatchConcurrency() != 4 || !cfg.DelegateSearch() {
		t.Errorf("batch = %d, %v", cfg.BatchConcurrency(), cfg.DelegateSearch())
	}
	if cfg.WorkerTimeout() != time.Minute {
		t.Errorf("WorkerTimeout() = %v", cfg.WorkerTimeout())
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		env, value string
	}{
		{EnvPort, "abc"},
		{EnvPort, "70000"},
		{EnvTransport, "grpc"},
		{EnvBatchConcurrency, "many"},
		{EnvDelegateSearch, "sometimes"},
		{EnvWorkerTimeout, "0"},
		{EnvClipExt, "mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(EnvConfigFile, "")
			t.Setenv(tt.env, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("New() with %s=%q returned no error", tt.env, tt.value)
			}
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "highlighter.yaml")
	content := `
port: 9100
gateway_url: http://gateway:8000
highlights_dir: /srv/highlights
batch_concurrency: 3
endpoints:
  transcribe: whisper
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPort, "9200")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port() != 9200 {
		t.Errorf("env should win over file: Port() = %d", cfg.Port())
	}
	if cfg.GatewayURL() != "http://gateway:8000" {
		t.Errorf("GatewayURL() = %q", cfg.GatewayURL())
	}
	if cfg.HighlightsDir() != "/srv/highlights" {
		t.Errorf("HighlightsDir() = %q", cfg.HighlightsDir())
	}
	if cfg.BatchConcurrency() != 3 {
		t.Errorf("BatchConcurrency() = %d", cfg.BatchConcurrency())
	}
	if cfg.Endpoints()["transcribe"] != "whisper" {
		t.Errorf("Endpoints() = %v", cfg.Endpoints())
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "highlighter.yaml")
	if err := os.WriteFile(path, []byte("prot: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted an unknown key")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Load() on empty file error = %v", err)
	}
}
