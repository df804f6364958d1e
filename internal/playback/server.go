// Package playback streams saved highlight clips with byte-range support so
// browsers can seek.
package playback

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/heimdex/highlighter/internal/logging"
)

// Opener resolves a clip name to an open file. highlights.Sink satisfies it.
type Opener interface {
	Open(name string) (*os.File, fs.FileInfo, error)
}

type Server struct {
	clips  Opener
	logger *slog.Logger
}

func NewServer(clips Opener, logger *slog.Logger) *Server {
	return &Server{clips: clips, logger: logging.WithComponent(logging.OrDiscard(logger), "playback")}
}

// ServeClip writes the named clip, honoring a single Range span. Errors from
// the Opener are returned before anything is written so the caller can map
// them to a status.
func (s *Server) ServeClip(w http.ResponseWriter, r *http.Request, name string) error {
	f, info, err := s.clips.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	size := info.Size()
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	span, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case err == ErrUnsatisfiable:
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err != nil || span == nil:
		// Malformed ranges fall back to the whole clip.
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		s.copy(w, f, size, name)
		return nil
	}

	if _, err := f.Seek(span.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", name, err)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", span.Length()))
	w.Header().Set("Content-Range", span.Header(size))
	w.WriteHeader(http.StatusPartialContent)
	s.copy(w, f, span.Length(), name)
	return nil
}

func (s *Server) copy(w io.Writer, f *os.File, n int64, name string) {
	if _, err := io.CopyN(w, f, n); err != nil {
		s.logger.Debug("clip stream interrupted", "clip", name, "error", err)
	}
}
