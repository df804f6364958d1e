// Package highlights collects matching clips into a fixed destination
// folder. Clips are copied, never moved, and only clips in the local
// namespace with the configured extension are accepted.
package highlights

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/heimdex/highlighter/internal/apperr"
	"github.com/heimdex/highlighter/internal/logging"
	"github.com/heimdex/highlighter/internal/metrics"
	"github.com/heimdex/highlighter/internal/pathmap"
)

const DefaultExt = ".mp4"

// Destination describes one saved highlight.
type Destination struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	SourcePath string    `json:"source_path"`
	Bytes      int64     `json:"bytes"`
	Keyword    string    `json:"keyword,omitempty"`
	Excerpt    string    `json:"excerpt,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Segment    *Segment  `json:"segment,omitempty"`
	SavedAt    time.Time `json:"saved_at"`
}

// Segment locates a clip inside the video it was split from.
type Segment struct {
	SourceVideo string `json:"source_video"`
	StartMs     int    `json:"start_ms"`
	EndMs       int    `json:"end_ms"`
}

func (s *Segment) Valid() bool {
	return s != nil && s.SourceVideo != "" && s.StartMs >= 0 && s.EndMs > s.StartMs
}

// Note is optional context stored alongside a saved clip.
type Note struct {
	RunID   string
	Keyword string
	Excerpt string
	Segment *Segment
}

type Config struct {
	Dir    string
	Ext    string
	Index  Index
	Logger *slog.Logger
}

// Sink is safe for concurrent use; saves are serialized.
type Sink struct {
	dir    string
	ext    string
	index  Index
	logger *slog.Logger

	mu sync.Mutex
}

// NewSink creates the destination folder if it does not exist.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("highlights dir is required")
	}
	if cfg.Ext == "" {
		cfg.Ext = DefaultExt
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create highlights dir: %w", err)
	}
	return &Sink{
		dir:    cfg.Dir,
		ext:    cfg.Ext,
		index:  cfg.Index,
		logger: logging.WithComponent(logging.OrDiscard(cfg.Logger), "highlights"),
	}, nil
}

func (s *Sink) Dir() string { return s.dir }
func (s *Sink) Ext() string { return s.ext }

// Save copies clip into the destination folder under its own name. Saving
// the same clip again refreshes its copy; a different clip with a name
// already taken is refused with a contract violation.
func (s *Sink) Save(ctx context.Context, clip pathmap.PathRef, note Note) (*Destination, error) {
	d, err := s.save(ctx, clip, note)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindNone {
			kind = "io_error"
		}
		metrics.IncHighlightSave(string(kind))
		s.logger.Warn("highlight not saved", "clip", logging.SanitizePath(clip.Raw), "error", err)
		return nil, err
	}
	metrics.IncHighlightSave("saved")
	s.logger.Info("highlight saved", "name", d.Name, "bytes", d.Bytes, "source", logging.SanitizePath(d.SourcePath))
	return d, nil
}

func (s *Sink) save(ctx context.Context, clip pathmap.PathRef, note Note) (*Destination, error) {
	if !clip.IsLocal() {
		return nil, &apperr.Error{Kind: apperr.KindContractViolation, Path: clip.Raw,
			Err: fmt.Errorf("clip is in the %s namespace", clip.Namespace)}
	}
	if !pathmap.HasExt(clip.Raw, s.ext) {
		return nil, &apperr.Error{Kind: apperr.KindContractViolation, Path: clip.Raw,
			Err: fmt.Errorf("expected a %s clip", s.ext)}
	}

	info, err := os.Stat(clip.Raw)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInputNotFound, Path: clip.Raw, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &apperr.Error{Kind: apperr.KindInputNotFound, Path: clip.Raw,
			Err: errors.New("not a regular file")}
	}

	name := filepath.Base(clip.Raw)
	dest := filepath.Join(s.dir, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !samePath(clip.Raw, dest) {
		if err := s.checkTaken(ctx, name, dest, clip.Raw); err != nil {
			return nil, err
		}
		if err := copyAtomic(clip.Raw, dest); err != nil {
			return nil, fmt.Errorf("copy %s: %w", name, err)
		}
	}

	d := &Destination{
		ID:         uuid.NewString(),
		Name:       name,
		Path:       dest,
		SourcePath: clip.Raw,
		Bytes:      info.Size(),
		Keyword:    note.Keyword,
		Excerpt:    note.Excerpt,
		RunID:      note.RunID,
		SavedAt:    time.Now(),
	}
	if note.Segment.Valid() {
		seg := *note.Segment
		d.Segment = &seg
	}
	if s.index != nil {
		if err := s.index.Record(ctx, d); err != nil {
			s.logger.Warn("failed to index highlight", "name", name, "error", err)
		}
	}
	return d, nil
}

// checkTaken refuses to replace dest unless it already holds src. The index
// row decides when there is one; otherwise the bytes must match.
func (s *Sink) checkTaken(ctx context.Context, name, dest, src string) error {
	if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}

	if s.index != nil {
		prev, err := s.index.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", name, err)
		}
		if prev != nil {
			if samePath(prev.SourcePath, src) {
				return nil
			}
			return &apperr.Error{Kind: apperr.KindContractViolation, Path: src,
				Err: fmt.Errorf("highlight %s already saved from %s", name, prev.SourcePath)}
		}
	}

	same, err := sameContent(src, dest)
	if err != nil {
		return fmt.Errorf("compare %s: %w", name, err)
	}
	if !same {
		return &apperr.Error{Kind: apperr.KindContractViolation, Path: src,
			Err: fmt.Errorf("highlight %s already holds a different clip", name)}
	}
	return nil
}

func sameContent(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	ia, err := fa.Stat()
	if err != nil {
		return false, err
	}
	ib, err := fb.Stat()
	if err != nil {
		return false, err
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}

	bufA := make([]byte, 32*1024)
	bufB := make([]byte, 32*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA == io.EOF || errA == io.ErrUnexpectedEOF {
			return errB == io.EOF || errB == io.ErrUnexpectedEOF, nil
		}
		if errA != nil {
			return false, errA
		}
		if errB != nil {
			return false, errB
		}
	}
}

// copyAtomic writes src to a pending file next to dst and renames it into
// place, so readers never observe a partial clip.
func copyAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	pf, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0644))
	if err != nil {
		return err
	}
	defer pf.Cleanup()

	if _, err := io.Copy(pf, in); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// List returns saved highlights newest first. Without an index the
// destination folder is listed instead.
func (s *Sink) List(ctx context.Context) ([]*Destination, error) {
	if s.index != nil {
		return s.index.List(ctx, 0)
	}
	return s.listDir()
}

func (s *Sink) listDir() ([]*Destination, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []*Destination
	for _, e := range entries {
		if e.IsDir() || !pathmap.HasExt(e.Name(), s.ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, &Destination{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			Bytes:   info.Size(),
			SavedAt: info.ModTime(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

// Open opens a saved highlight by name for streaming. Names containing a
// path separator are rejected.
func (s *Sink) Open(name string) (*os.File, fs.FileInfo, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, nil, &apperr.Error{Kind: apperr.KindContractViolation, Path: name, Err: errors.New("invalid highlight name")}
	}
	if !pathmap.HasExt(name, s.ext) {
		return nil, nil, &apperr.Error{Kind: apperr.KindContractViolation, Path: name, Err: fmt.Errorf("expected a %s clip", s.ext)}
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, nil, &apperr.Error{Kind: apperr.KindInputNotFound, Path: name, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}
