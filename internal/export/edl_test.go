package export

import (
	"strings"
	"testing"
)

func TestRenderEDL_SingleClip(t *testing.T) {
	clips := []Clip{{Name: "clip_1", MediaPath: "/media/outputs/video/video.mp4", StartMs: 0, EndMs: 2000}}

	edl := renderEDL("Caffeine", 30.0, clips)

	for _, want := range []string{
		"TITLE: Caffeine",
		"FCM: NON-DROP FRAME",
		"001  AX       V     C        00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00",
		"* FROM CLIP NAME:  clip_1",
		"* MEDIA PATH:  /media/outputs/video/video.mp4",
	} {
		if !strings.Contains(edl, want) {
			t.Fatalf("EDL missing %q:\n%s", want, edl)
		}
	}
}

func TestRenderEDL_RecordSideIsContiguous(t *testing.T) {
	clips := []Clip{
		{Name: "clip_1", MediaPath: "/v.mp4", StartMs: 10000, EndMs: 11000},
		{Name: "clip_4", MediaPath: "/v.mp4", StartMs: 40000, EndMs: 41500},
	}

	edl := renderEDL("Multi", 30.0, clips)

	if !strings.Contains(edl, "001  AX       V     C        00:00:10:00 00:00:11:00 00:00:00:00 00:00:01:00") {
		t.Fatalf("first event mismatch:\n%s", edl)
	}
	if !strings.Contains(edl, "002  AX       V     C        00:00:40:00 00:00:41:15 00:00:01:00 00:00:02:15") {
		t.Fatalf("second event mismatch or bad record offset:\n%s", edl)
	}
}

func TestRenderEDL_DropFrame(t *testing.T) {
	edl := renderEDL("Drop", 29.97, []Clip{{Name: "c", MediaPath: "/x.mp4", EndMs: 1000}})
	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("expected drop frame FCM:\n%s", edl)
	}
}

func TestTimecode(t *testing.T) {
	tests := []struct {
		name string
		ms   int
		fps  int
		want string
	}{
		{name: "zero", ms: 0, fps: 30, want: "00:00:00:00"},
		{name: "one second", ms: 1000, fps: 30, want: "00:00:01:00"},
		{name: "half second", ms: 500, fps: 30, want: "00:00:00:15"},
		{name: "one minute", ms: 60000, fps: 30, want: "00:01:00:00"},
		{name: "one hour", ms: 3600000, fps: 30, want: "01:00:00:00"},
		{name: "25 fps", ms: 1040, fps: 25, want: "00:00:01:01"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := timecode(tc.ms, tc.fps); got != tc.want {
				t.Fatalf("timecode(%d, %d) = %q, want %q", tc.ms, tc.fps, got, tc.want)
			}
		})
	}
}
