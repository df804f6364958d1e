package batch

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/klauspost/compress/gzip"

	"github.com/heimdex/highlighter/internal/pathmap"
)

const (
	TranscriptName = "transcript.txt"

	// ExcerptNA marks a row whose sub-pipeline did not produce a transcript.
	ExcerptNA = "N/A"

	maxExcerptRunes    = 80
	maxTranscriptBytes = 16 << 20
)

var errNoTranscript = errors.New("no " + TranscriptName + " in package")

// ReadTranscript returns the transcript text held at p. p may be a package
// archive, a folder holding result.tar.gz, or a folder holding the
// transcript itself.
func ReadTranscript(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		if plain := filepath.Join(p, TranscriptName); fileExists(plain) {
			return readPlain(plain)
		}
		p = filepath.Join(p, pathmap.DefaultResultName)
	}
	return readFromArchive(p)
}

func readPlain(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, maxTranscriptBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readFromArchive(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(p), err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return "", errNoTranscript
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", filepath.Base(p), err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Base(hdr.Name)
		if isSidecar(name) || name != TranscriptName {
			continue
		}
		b, err := io.ReadAll(io.LimitReader(tr, maxTranscriptBytes))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Contains reports a case-insensitive substring match.
func Contains(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// Excerpt returns at most 80 runes of text: a window around the first
// match of keyword, or the start of the text when there is none.
// Whitespace runs are collapsed first.
func Excerpt(text, keyword string) string {
	runes := []rune(strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " "))
	if len(runes) <= maxExcerptRunes {
		return string(runes)
	}

	pos := indexFold(runes, []rune(keyword))
	if pos < 0 {
		return string(runes[:maxExcerptRunes])
	}

	start := pos - (maxExcerptRunes-len([]rune(keyword)))/2
	if start < 0 {
		start = 0
	}
	end := start + maxExcerptRunes
	if end > len(runes) {
		end = len(runes)
		start = end - maxExcerptRunes
	}
	return string(runes[start:end])
}

// indexFold finds needle in haystack comparing rune by rune with simple
// case folding, so the result is a rune offset into the original text.
func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}
