package batch

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/heimdex/highlighter/internal/pathmap"
)

// Discover walks root and returns every file with the clip extension in
// walk order. The order is never re-sorted; it is the order rows appear in
// the report. The uncut source left in a split output folder is skipped.
func Discover(root, ext string) ([]string, error) {
	var clips []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// unreadable subfolder: skip it, keep walking
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if isSidecar(d.Name()) {
			return nil
		}
		if pathmap.HasExt(d.Name(), ext) && !isSourceVideo(path) {
			clips = append(clips, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clips, nil
}

// isSidecar matches AppleDouble resource-fork files ("._clip_1.mp4")
// left behind by macOS copies.
func isSidecar(name string) bool {
	return strings.HasPrefix(name, "._")
}
