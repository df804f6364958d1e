package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestReadTranscript(t *testing.T) {
	dir := t.TempDir()

	archive := filepath.Join(dir, "pkg", "result.tar.gz")
	writeArchive(t, archive, map[string]string{
		"._transcript.txt":       "junk",
		"out/transcript.txt":     "hello caffeine",
		"out/prepared_audio.wav": "RIFF",
	})

	plainDir := filepath.Join(dir, "plain")
	if err := os.MkdirAll(plainDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(plainDir, TranscriptName), []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}

	empty := filepath.Join(dir, "empty", "result.tar.gz")
	writeArchive(t, empty, map[string]string{"audio.wav": "RIFF"})

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"archive file", archive, "hello caffeine", false},
		{"folder with result archive", filepath.Dir(archive), "hello caffeine", false},
		{"folder with plain transcript", plainDir, "plain text", false},
		{"archive without transcript", empty, "", true},
		{"missing", filepath.Join(dir, "nope.tar.gz"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadTranscript(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadTranscript() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ReadTranscript() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	if !Contains("Too much CAFFEINE", "caffeine") {
		t.Error("case-insensitive match failed")
	}
	if Contains("decaf", "caffeine") {
		t.Error("unexpected match")
	}
	if Contains("anything", "") {
		t.Error("empty keyword matched")
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 20) + "then the CAFFEINE kicked in " + strings.Repeat("dolor sit ", 20)

	tests := []struct {
		name, text, keyword string
		check               func(t *testing.T, got string)
	}{
		{"short text returned whole", "hello\n\nworld", "x", func(t *testing.T, got string) {
			if got != "hello world" {
				t.Errorf("got %q", got)
			}
		}},
		{"window contains match", long, "caffeine", func(t *testing.T, got string) {
			if !strings.Contains(got, "CAFFEINE") {
				t.Errorf("excerpt %q lacks the match", got)
			}
		}},
		{"no match is prefix", long, "tea", func(t *testing.T, got string) {
			if !strings.HasPrefix(long, got) {
				t.Errorf("excerpt %q is not a prefix", got)
			}
		}},
		{"match at end", strings.Repeat("a ", 100) + "caffeine", "caffeine", func(t *testing.T, got string) {
			if !strings.HasSuffix(got, "caffeine") {
				t.Errorf("excerpt %q lacks trailing match", got)
			}
		}},
		{"multibyte", strings.Repeat("카페인 ", 40), "카페인", func(t *testing.T, got string) {
			if !utf8.ValidString(got) {
				t.Errorf("excerpt split a rune: %q", got)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Excerpt(tt.text, tt.keyword)
			if n := utf8.RuneCountInString(got); n > maxExcerptRunes {
				t.Errorf("excerpt has %d runes, max %d", n, maxExcerptRunes)
			}
			tt.check(t, got)
		})
	}
}

func TestDiscover_WalkOrderAndFilter(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"clip_1.mp4",
		"clip_2.MP4",
		"notes.txt",
		"._clip_1.mp4",
		"sub/clip_3.mp4",
	}
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Discover(root, ".mp4")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{
		filepath.Join(root, "clip_1.mp4"),
		filepath.Join(root, "clip_2.MP4"),
		filepath.Join(root, "sub", "clip_3.mp4"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Discover() mismatch (-want +got):\n%s", diff)
	}

	if _, err := Discover(filepath.Join(root, "missing"), ".mp4"); err == nil {
		t.Error("Discover() on a missing root returned no error")
	}
}
