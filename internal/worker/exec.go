package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/logging"
	"github.com/heimdex/highlighter/internal/pathmap"
)

// DefaultExecCommand runs the worker inside its container, the same way the
// gateway does. {endpoint} is replaced with the request endpoint.
const DefaultExecCommand = "docker exec worker_{endpoint} python main.py"

// ExecConfig holds the subprocess dispatcher's configuration.
type ExecConfig struct {
	Command    string // command template; empty = DefaultExecCommand
	Translator *pathmap.Translator
	Timeout    time.Duration
	Logger     *slog.Logger
}

// ExecDispatcher plays the gateway's role locally: it stages the artifact in
// the shared uploads area, assigns an output folder, and runs the worker
// command with control-plane paths.
type ExecDispatcher struct {
	cfg    ExecConfig
	logger *slog.Logger

	// newID tags each invocation's upload and output folder so clips that
	// share a file name never see each other's artifacts.
	newID func() string
}

// NewExecDispatcher creates an ExecDispatcher and ensures the uploads and
// outputs folders exist under the local root.
func NewExecDispatcher(cfg ExecConfig) (*ExecDispatcher, error) {
	if cfg.Command == "" {
		cfg.Command = DefaultExecCommand
	}
	if cfg.Translator == nil {
		cfg.Translator = pathmap.NewTranslator("", "")
	}
	for _, dir := range []string{"uploads", "outputs"} {
		if err := os.MkdirAll(filepath.Join(cfg.Translator.LocalRoot, dir), 0755); err != nil {
			return nil, fmt.Errorf("cannot create %s dir: %w", dir, err)
		}
	}

	logger := logging.WithComponent(logging.OrDiscard(cfg.Logger), "dispatcher")
	logger.Info("exec dispatcher initialised",
		"command", cfg.Command,
		"local_root", cfg.Translator.LocalRoot,
		"control_root", cfg.Translator.ControlRoot,
	)
	return &ExecDispatcher{cfg: cfg, logger: logger, newID: shortID}, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}

func (d *ExecDispatcher) argv(endpoint string) []string {
	return strings.Fields(strings.ReplaceAll(d.cfg.Command, "{endpoint}", endpoint))
}

// Invoke runs one stage as a subprocess.
func (d *ExecDispatcher) Invoke(ctx context.Context, req Request) Outcome {
	start := time.Now()
	if o := checkInput(req); o != nil {
		return finish(d.logger, *o, start)
	}

	id := d.newID()
	staged, err := d.stage(req.Input.Raw, id)
	if err != nil {
		return finish(d.logger, SystemFailure(req.Stage, apperr.KindWorkerUnreachable, fmt.Sprintf("stage input: %v", err)), start)
	}

	// The folder must be new: a leftover from another run could pass for
	// this run's output.
	outFolder := d.outputFolder(req.Input.Raw, req.Endpoint, id)
	if err := os.Mkdir(outFolder, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return finish(d.logger, Failure(req.Stage, fmt.Sprintf("output folder %s already exists", outFolder)), start)
		}
		return finish(d.logger, SystemFailure(req.Stage, apperr.KindWorkerUnreachable, fmt.Sprintf("cannot create output dir: %v", err)), start)
	}

	tr := d.cfg.Translator
	controlOut := tr.ToControl(outFolder)
	args := []string{"-i", tr.ToControl(staged), "-o", controlOut + "/result"}
	args = append(args, paramArgs(req.Params)...)

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	result := d.exec(ctx, req.Endpoint, args...)
	switch {
	case result.startErr != nil:
		return finish(d.logger, SystemFailure(req.Stage, apperr.KindWorkerUnreachable, result.startErr.Error()), start)
	case result.exitCode != 0:
		return finish(d.logger, Failure(req.Stage, fmt.Sprintf("exit %d: %s", result.exitCode, result.stderrTail)), start)
	}

	// A worker that prints a structured reply is authoritative about where it
	// wrote; otherwise the folder assigned above is the answer, exactly as the
	// gateway reports it.
	location := controlOut
	diag := result.stdout
	if r, ok := parseReply(result.stdout); ok {
		if r.OutputLocation != "" {
			location = r.OutputLocation
		}
		diag = r.diagnostics()
	}
	return finish(d.logger, Succeeded(req.Stage, location, diag), start)
}

// stage copies the artifact into the uploads folder under a name tagged
// with id, unless it already lives there.
func (d *ExecDispatcher) stage(src, id string) (string, error) {
	uploads := filepath.Join(d.cfg.Translator.LocalRoot, "uploads")
	if abs, err := filepath.Abs(filepath.Dir(src)); err == nil {
		if up, err := filepath.Abs(uploads); err == nil && abs == up {
			return src, nil
		}
	}

	stem, ext := splitExt(filepath.Base(src))
	name := stem + "_" + id + ext
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(filepath.Join(uploads, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	// Keep the path in the translator's spelling so ToControl can map it.
	return d.cfg.Translator.LocalRoot + "uploads/" + name, nil
}

// outputFolder names the folder a worker writes into:
// outputs/<input stem>_<endpoint>_<id>.
func (d *ExecDispatcher) outputFolder(input, endpoint, id string) string {
	stem, _ := splitExt(filepath.Base(input))
	return d.cfg.Translator.LocalRoot + "outputs/" + stem + "_" + endpoint + "_" + id
}

// splitExt separates a file name from its extension, treating ".tar.gz" as
// one extension.
func splitExt(name string) (string, string) {
	if pathmap.HasExt(name, pathmap.PackageExt) {
		return name[:len(name)-len(pathmap.PackageExt)], name[len(name)-len(pathmap.PackageExt):]
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

type execResult struct {
	exitCode   int
	stdout     string
	stderrTail string
	startErr   error
}

// exec is the core subprocess execution helper.
func (d *ExecDispatcher) exec(ctx context.Context, endpoint string, args ...string) execResult {
	argv := append(d.argv(endpoint), args...)
	if len(argv) == 0 {
		return execResult{exitCode: -1, startErr: errors.New("empty worker command")}
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	// Capture stderr with bounded buffer
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: maxResponseBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	d.logger.Info("executing worker command", "args", argv)

	err := cmd.Run()
	res := execResult{stdout: stdoutBuf.String(), stderrTail: stderrBuf.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
			if res.stderrTail == "" {
				// Workers print their own errors on stdout as often as stderr.
				res.stderrTail = truncate(res.stdout, maxStderrBytes)
			}
		} else {
			res.exitCode = -1
			res.startErr = fmt.Errorf("run %s: %w", argv[0], err)
		}
	}
	return res
}

// Probe checks that each endpoint's command binary is on PATH.
func (d *ExecDispatcher) Probe(ctx context.Context, endpoints []string) (*Availability, error) {
	avail := &Availability{
		Transport: "exec",
		Reachable: true,
		Endpoints: make(map[string]bool, len(endpoints)),
		ProbedAt:  time.Now(),
	}
	var missing []string
	for _, e := range endpoints {
		argv := d.argv(e)
		ok := false
		if len(argv) > 0 {
			_, err := exec.LookPath(argv[0])
			ok = err == nil
		}
		avail.Endpoints[e] = ok
		if !ok {
			avail.Reachable = false
			missing = append(missing, e)
		}
	}
	if len(missing) > 0 {
		avail.Detail = "command not found for: " + strings.Join(missing, ", ")
	}
	return avail, nil
}

// parseReply finds the last JSON object line in stdout.
func parseReply(stdout string) (Response, bool) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var r Response
		if err := json.Unmarshal([]byte(line), &r); err == nil {
			return r, true
		}
	}
	return Response{}, false
}

func paramArgs(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, "--"+k, params[k])
	}
	return args
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		start := len(b) - lw.limit
		for start < len(b) && !utf8.RuneStart(b[start]) {
			start++
		}
		tail := append([]byte(nil), b[start:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
