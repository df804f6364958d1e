package batch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/heimdex/highlighter/internal/highlights"
)

const (
	// TimestampsName is the cut list the split stage leaves in its output
	// folder: one "HH:MM:SS HH:MM:SS" line per clip, clip_N on line N.
	TimestampsName = "timestamps.txt"
	// SourceVideoName is the uncut video the split stage unpacks next to
	// the clips. It is not a clip.
	SourceVideoName = "video.mp4"
)

// ReadTimestamps parses a cut list. Lines that do not hold two timestamps
// keep their slot as a zero segment so indices still line up with clip
// numbers.
func ReadTimestamps(p string) ([][2]int, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out [][2]int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var span [2]int
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 {
			start, err1 := parseClock(fields[0])
			end, err2 := parseClock(fields[1])
			if err1 == nil && err2 == nil {
				span = [2]int{start, end}
			}
		}
		out = append(out, span)
	}
	return out, sc.Err()
}

// parseClock reads HH:MM:SS (or MM:SS) into milliseconds.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		total = total*60 + n
	}
	return total * 1000, nil
}

// clipNumber extracts N from "clip_N.mp4".
func clipNumber(clipPath string) (int, bool) {
	stem := strings.TrimSuffix(filepath.Base(clipPath), filepath.Ext(clipPath))
	i := strings.LastIndexByte(stem, '_')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(stem[i+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// SegmentFor locates a clip in its source video using the cut list beside
// it. It returns nil when the folder is not a split output or the clip has
// no usable line.
func SegmentFor(clipPath string) *highlights.Segment {
	dir := filepath.Dir(clipPath)
	source := filepath.Join(dir, SourceVideoName)
	if _, err := os.Stat(source); err != nil {
		return nil
	}
	n, ok := clipNumber(clipPath)
	if !ok {
		return nil
	}
	spans, err := ReadTimestamps(filepath.Join(dir, TimestampsName))
	if err != nil || n >= len(spans) {
		return nil
	}
	seg := &highlights.Segment{SourceVideo: source, StartMs: spans[n][0], EndMs: spans[n][1]}
	if !seg.Valid() {
		return nil
	}
	return seg
}

// isSourceVideo reports whether p is the uncut video inside a split output
// folder.
func isSourceVideo(p string) bool {
	if filepath.Base(p) != SourceVideoName {
		return false
	}
	_, err := os.Stat(filepath.Join(filepath.Dir(p), TimestampsName))
	return err == nil
}
