// Package export turns saved highlights into an edit decision list so the
// reel can be conformed from the uncut sources in an NLE.
package export

const (
	DefaultTitle     = "highlights"
	DefaultFrameRate = 30.0

	maxTitleLen    = 120
	maxClipNameLen = 160
)

// Clip is one event on the reel: a span of a source video.
type Clip struct {
	Name      string
	MediaPath string
	StartMs   int
	EndMs     int
}

func (c Clip) DurationMs() int { return c.EndMs - c.StartMs }

// Result describes a written reel.
type Result struct {
	Format    string   `json:"format"`
	Path      string   `json:"path"`
	ClipCount int      `json:"clip_count"`
	Skipped   []string `json:"skipped"`
}
