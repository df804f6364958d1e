// Package config provides configuration management for the highlighter.
// Defaults are overridden by an optional YAML file, then by environment
// variables.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort             = 8788
	DefaultLogLevel         = "info"
	DefaultDataDir          = ".highlighter"
	DefaultGatewayURL       = "http://localhost:8000"
	DefaultTransport        = TransportHTTP
	DefaultControlRoot      = "/data/"
	DefaultLocalRoot        = "./media_data/"
	DefaultClipExt          = ".mp4"
	DefaultBatchConcurrency = 1
	DefaultWorkerTimeout    = 1800 // seconds; transcription of a long clip
	DefaultExecCommand      = "docker exec worker_{endpoint} python main.py"

	TransportHTTP = "http"
	TransportExec = "exec"

	// Environment variable names
	EnvConfigFile       = "HIGHLIGHTER_CONFIG"
	EnvPort             = "HIGHLIGHTER_PORT"
	EnvLogLevel         = "HIGHLIGHTER_LOG_LEVEL"
	EnvDataDir          = "HIGHLIGHTER_DATA_DIR"
	EnvDBPath           = "HIGHLIGHTER_DB_PATH"
	EnvGatewayURL       = "HIGHLIGHTER_GATEWAY_URL"
	EnvTransport        = "HIGHLIGHTER_TRANSPORT"
	EnvControlRoot      = "HIGHLIGHTER_CONTROL_ROOT"
	EnvLocalRoot        = "HIGHLIGHTER_LOCAL_ROOT"
	EnvHighlightsDir    = "HIGHLIGHTER_HIGHLIGHTS_DIR"
	EnvClipExt          = "HIGHLIGHTER_CLIP_EXT"
	EnvBatchConcurrency = "HIGHLIGHTER_BATCH_CONCURRENCY"
	EnvDelegateSearch   = "HIGHLIGHTER_DELEGATE_SEARCH"
	EnvWorkerTimeout    = "HIGHLIGHTER_WORKER_TIMEOUT"
	EnvExecCommand      = "HIGHLIGHTER_EXEC_COMMAND"

	// Database filename
	DBFilename = "highlighter.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	GatewayURL() string
	Transport() string
	ControlRoot() string
	LocalRoot() string
	HighlightsDir() string
	ClipExt() string
	BatchConcurrency() int
	DelegateSearch() bool
	WorkerTimeout() time.Duration
	ExecCommand() string
	Endpoints() map[string]string
}

// FileConfig is the YAML file layout. Every field is optional.
type FileConfig struct {
	Port             *int              `yaml:"port"`
	LogLevel         string            `yaml:"log_level"`
	DataDir          string            `yaml:"data_dir"`
	DBPath           string            `yaml:"db_path"`
	GatewayURL       string            `yaml:"gateway_url"`
	Transport        string            `yaml:"transport"`
	ControlRoot      string            `yaml:"control_root"`
	LocalRoot        string            `yaml:"local_root"`
	HighlightsDir    string            `yaml:"highlights_dir"`
	ClipExt          string            `yaml:"clip_ext"`
	BatchConcurrency *int              `yaml:"batch_concurrency"`
	DelegateSearch   *bool             `yaml:"delegate_search"`
	WorkerTimeout    *int              `yaml:"worker_timeout"`
	ExecCommand      string            `yaml:"exec_command"`
	Endpoints        map[string]string `yaml:"endpoints"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	dbPath        string
	gatewayURL    string
	transport     string
	controlRoot   string
	localRoot     string
	highlightsDir string
	clipExt       string
	concurrency   int
	delegate      bool
	workerTimeout int
	execCommand   string
	endpoints     map[string]string
}

// New creates a new EnvConfig from defaults, the file named by
// HIGHLIGHTER_CONFIG (if set) and environment variable overrides.
func New() (*EnvConfig, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// Load is New with an explicit config file path; "" skips the file.
func Load(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		gatewayURL:    DefaultGatewayURL,
		transport:     DefaultTransport,
		controlRoot:   DefaultControlRoot,
		localRoot:     DefaultLocalRoot,
		clipExt:       DefaultClipExt,
		concurrency:   DefaultBatchConcurrency,
		workerTimeout: DefaultWorkerTimeout,
		execCommand:   DefaultExecCommand,
	}

	if path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		cfg.applyFile(fc)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile parses the YAML file strictly: unknown keys are an error.
func loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &fc, nil
}

func (c *EnvConfig) applyFile(fc *FileConfig) {
	if fc.Port != nil {
		c.port = *fc.Port
	}
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.dataDir, fc.DataDir)
	setString(&c.dbPath, fc.DBPath)
	setString(&c.gatewayURL, fc.GatewayURL)
	setString(&c.transport, fc.Transport)
	setString(&c.controlRoot, fc.ControlRoot)
	setString(&c.localRoot, fc.LocalRoot)
	setString(&c.highlightsDir, fc.HighlightsDir)
	setString(&c.clipExt, fc.ClipExt)
	setString(&c.execCommand, fc.ExecCommand)
	if fc.BatchConcurrency != nil {
		c.concurrency = *fc.BatchConcurrency
	}
	if fc.DelegateSearch != nil {
		c.delegate = *fc.DelegateSearch
	}
	if fc.WorkerTimeout != nil {
		c.workerTimeout = *fc.WorkerTimeout
	}
	if len(fc.Endpoints) > 0 {
		c.endpoints = fc.Endpoints
	}
}

func (c *EnvConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.dbPath, os.Getenv(EnvDBPath))
	setString(&c.gatewayURL, os.Getenv(EnvGatewayURL))
	setString(&c.transport, strings.ToLower(os.Getenv(EnvTransport)))
	setString(&c.controlRoot, os.Getenv(EnvControlRoot))
	setString(&c.localRoot, os.Getenv(EnvLocalRoot))
	setString(&c.highlightsDir, os.Getenv(EnvHighlightsDir))
	setString(&c.clipExt, os.Getenv(EnvClipExt))
	setString(&c.execCommand, os.Getenv(EnvExecCommand))

	if v := os.Getenv(EnvBatchConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvBatchConcurrency, err)
		}
		c.concurrency = n
	}
	if v := os.Getenv(EnvDelegateSearch); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDelegateSearch, err)
		}
		c.delegate = b
	}
	if v := os.Getenv(EnvWorkerTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWorkerTimeout, err)
		}
		c.workerTimeout = n
	}
	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if c.transport != TransportHTTP && c.transport != TransportExec {
		return fmt.Errorf("invalid transport %q: must be %s or %s", c.transport, TransportHTTP, TransportExec)
	}
	if c.workerTimeout <= 0 {
		return fmt.Errorf("invalid worker timeout %d: must be positive", c.workerTimeout)
	}
	if c.concurrency < 0 {
		return fmt.Errorf("invalid batch concurrency %d", c.concurrency)
	}
	if !strings.HasPrefix(c.clipExt, ".") {
		return fmt.Errorf("invalid clip extension %q: must start with a dot", c.clipExt)
	}
	// roots are substituted as literal prefixes
	c.controlRoot = withSlash(c.controlRoot)
	c.localRoot = withSlash(c.localRoot)
	return nil
}

// SetPort overrides the port, e.g. from a CLI flag.
func (c *EnvConfig) SetPort(port int) { c.port = port }

// SetTransport overrides the worker transport.
func (c *EnvConfig) SetTransport(t string) { c.transport = t }

// SetBatchConcurrency overrides the batch concurrency.
func (c *EnvConfig) SetBatchConcurrency(n int) { c.concurrency = n }

// SetDelegateSearch overrides the search mode.
func (c *EnvConfig) SetDelegateSearch(b bool) { c.delegate = b }

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	if c.dbPath != "" {
		return c.dbPath
	}
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) GatewayURL() string  { return c.gatewayURL }
func (c *EnvConfig) Transport() string   { return c.transport }
func (c *EnvConfig) ControlRoot() string { return c.controlRoot }
func (c *EnvConfig) LocalRoot() string   { return c.localRoot }

// HighlightsDir defaults to <local root>/highlights.
func (c *EnvConfig) HighlightsDir() string {
	if c.highlightsDir != "" {
		return c.highlightsDir
	}
	return filepath.Join(c.localRoot, "highlights")
}

func (c *EnvConfig) ClipExt() string       { return c.clipExt }
func (c *EnvConfig) BatchConcurrency() int { return c.concurrency }
func (c *EnvConfig) DelegateSearch() bool  { return c.delegate }

func (c *EnvConfig) WorkerTimeout() time.Duration {
	return time.Duration(c.workerTimeout) * time.Second
}

func (c *EnvConfig) ExecCommand() string { return c.execCommand }

// Endpoints returns stage-name to worker-endpoint overrides from the file.
func (c *EnvConfig) Endpoints() map[string]string {
	return c.endpoints
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func withSlash(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
