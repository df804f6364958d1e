package export

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/heimdex/highlighter/internal/highlights"
)

// ErrEmptyReel is returned when none of the highlights can be placed on a
// timeline.
var ErrEmptyReel = errors.New("no highlights with a known source segment")

// Reel is the set of saved highlights that can be located in their source
// videos, in source order.
type Reel struct {
	Title     string
	FrameRate float64
	Clips     []Clip
	Skipped   []string // highlight names with no source segment
}

// NewReel places each highlight at its segment of the source video. keyword,
// when set, keeps only highlights saved for that keyword (case-insensitive).
func NewReel(title string, frameRate float64, keyword string, saved []*highlights.Destination) *Reel {
	r := &Reel{
		Title:     SanitizeName(title, maxTitleLen),
		FrameRate: frameRate,
		Skipped:   []string{},
	}
	if r.Title == "" {
		r.Title = DefaultTitle
	}
	if r.FrameRate <= 0 {
		r.FrameRate = DefaultFrameRate
	}

	for _, d := range saved {
		if keyword != "" && !strings.EqualFold(d.Keyword, keyword) {
			continue
		}
		if !d.Segment.Valid() {
			r.Skipped = append(r.Skipped, d.Name)
			continue
		}
		name := SanitizeName(strings.TrimSuffix(d.Name, filepath.Ext(d.Name)), maxClipNameLen)
		if name == "" {
			name = d.ID
		}
		r.Clips = append(r.Clips, Clip{
			Name:      name,
			MediaPath: d.Segment.SourceVideo,
			StartMs:   d.Segment.StartMs,
			EndMs:     d.Segment.EndMs,
		})
	}

	sort.SliceStable(r.Clips, func(i, j int) bool {
		if r.Clips[i].MediaPath != r.Clips[j].MediaPath {
			return r.Clips[i].MediaPath < r.Clips[j].MediaPath
		}
		return r.Clips[i].StartMs < r.Clips[j].StartMs
	})
	return r
}

// EDL renders the reel. It fails with ErrEmptyReel when there is nothing to
// place.
func (r *Reel) EDL() (string, error) {
	if len(r.Clips) == 0 {
		return "", ErrEmptyReel
	}
	return renderEDL(r.Title, r.FrameRate, r.Clips), nil
}

// Write renders the reel to <dir>/<title>.edl, replacing any earlier export
// atomically.
func (r *Reel) Write(dir string) (*Result, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return nil, err
	}
	edl, err := r.EDL()
	if err != nil {
		return nil, err
	}
	out := filepath.Join(dir, r.Title+".edl")
	if err := renameio.WriteFile(out, []byte(edl), 0o644); err != nil {
		return nil, err
	}
	return &Result{Format: "edl", Path: out, ClipCount: len(r.Clips), Skipped: r.Skipped}, nil
}
