package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// fakeRunner stands in for ffmpeg and ffprobe so sampling logic can be tested
// without decoding real video. Each ffmpeg call records its seek position and
// returns bytes derived from it, so identical inputs yield identical frames.
type fakeRunner struct {
	probeJSON string
	probeErr  error
	frameErr  error
	emptyOut  bool
	seeks     []float64
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	if name == "ffprobe" {
		if f.probeErr != nil {
			return nil, f.probeErr
		}
		return []byte(f.probeJSON), nil
	}

	if f.frameErr != nil {
		return nil, f.frameErr
	}

	seek := seekArg(args)
	f.seeks = append(f.seeks, seek)
	if f.emptyOut {
		return nil, nil
	}
	return []byte(fmt.Sprintf("jpeg@%.3f", seek)), nil
}

func seekArg(args []string) float64 {
	for i, arg := range args {
		if arg == "-ss" && i+1 < len(args) {
			v, _ := strconv.ParseFloat(args[i+1], 64)
			return v
		}
	}
	return -1
}

func probeJSON(duration float64, frameRate string) string {
	return fmt.Sprintf(`{
		"format": {"duration": "%g"},
		"streams": [
			{"codec_type": "audio", "avg_frame_rate": "0/0", "r_frame_rate": "0/0"},
			{"codec_type": "video", "avg_frame_rate": "%s", "r_frame_rate": "%s"}
		]
	}`, duration, frameRate, frameRate)
}

func newTestSampler(cfg Config, runner *fakeRunner) *Sampler {
	s := New(cfg)
	s.run = runner.run
	return s
}

func writeTestVideo(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write test video: %v", err)
	}
	return path
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		interval  float64
		maxFrames int
		want      []float64
	}{
		{
			name:      "intervalDividesDuration",
			duration:  12,
			interval:  2,
			maxFrames: 10,
			want:      []float64{0, 2, 4, 6, 8, 10, 12},
		},
		{
			name:      "cappedAtMaxFrames",
			duration:  30,
			interval:  1,
			maxFrames: 10,
			want:      []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		},
		{
			name:      "shorterThanOneInterval",
			duration:  1,
			interval:  5,
			maxFrames: 10,
			want:      []float64{0},
		},
		{
			name:      "fractionalRemainder",
			duration:  5.5,
			interval:  2,
			maxFrames: 10,
			want:      []float64{0, 2, 4},
		},
		{
			name:      "subSecondInterval",
			duration:  2,
			interval:  0.5,
			maxFrames: 10,
			want:      []float64{0, 0.5, 1, 1.5, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := plan(tt.duration, Config{IntervalSeconds: tt.interval, MaxFrames: tt.maxFrames})
			if len(got) != len(tt.want) {
				t.Fatalf("plan() returned %d timestamps, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("plan()[%d] = %g, want %g", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSampleFrameSequence(t *testing.T) {
	runner := &fakeRunner{probeJSON: probeJSON(12, "30/1")}
	s := newTestSampler(Config{IntervalSeconds: 2, MaxFrames: 10}, runner)
	path := writeTestVideo(t, []byte("video data"))

	set, err := s.Sample(context.Background(), path)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	if len(set.Frames) != 7 {
		t.Fatalf("got %d frames, want 7", len(set.Frames))
	}
	if set.Duration != 12 {
		t.Errorf("Duration = %g, want 12", set.Duration)
	}

	for i, frame := range set.Frames {
		if frame.Index != i {
			t.Errorf("frame %d has Index %d", i, frame.Index)
		}
		if len(frame.Data) == 0 {
			t.Errorf("frame %d has no data", i)
		}
		if i > 0 && frame.Timestamp <= set.Frames[i-1].Timestamp {
			t.Errorf("timestamps not strictly increasing at %d: %g after %g",
				i, frame.Timestamp, set.Frames[i-1].Timestamp)
		}
	}

	if last := set.Frames[6].Timestamp; last != 12 {
		t.Errorf("last timestamp = %g, want 12", last)
	}
}

func TestSampleSeeksInsideVideo(t *testing.T) {
	runner := &fakeRunner{probeJSON: probeJSON(10, "25/1")}
	s := newTestSampler(Config{IntervalSeconds: 2, MaxFrames: 10}, runner)
	path := writeTestVideo(t, []byte("video data"))

	if _, err := s.Sample(context.Background(), path); err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	// The final timestamp lands on the duration; the decode must seek just
	// short of it or ffmpeg would emit nothing.
	for _, seek := range runner.seeks {
		if seek >= 10 {
			t.Errorf("seek %g is at or past the video end", seek)
		}
	}
	last := runner.seeks[len(runner.seeks)-1]
	if last < 10-1.0/25-0.001 {
		t.Errorf("final seek %g backed off more than one frame", last)
	}
}

func TestSampleDeterminism(t *testing.T) {
	path := writeTestVideo(t, []byte("video data"))
	cfg := Config{IntervalSeconds: 3, MaxFrames: 5}

	first, err := newTestSampler(cfg, &fakeRunner{probeJSON: probeJSON(20, "24/1")}).Sample(context.Background(), path)
	if err != nil {
		t.Fatalf("first Sample() error = %v", err)
	}
	second, err := newTestSampler(cfg, &fakeRunner{probeJSON: probeJSON(20, "24/1")}).Sample(context.Background(), path)
	if err != nil {
		t.Fatalf("second Sample() error = %v", err)
	}

	if len(first.Frames) != len(second.Frames) {
		t.Fatalf("frame counts differ: %d vs %d", len(first.Frames), len(second.Frames))
	}
	for i := range first.Frames {
		if first.Frames[i].Timestamp != second.Frames[i].Timestamp {
			t.Errorf("frame %d timestamps differ: %g vs %g",
				i, first.Frames[i].Timestamp, second.Frames[i].Timestamp)
		}
		if !bytes.Equal(first.Frames[i].Data, second.Frames[i].Data) {
			t.Errorf("frame %d data differs between runs", i)
		}
	}
}

func TestSampleFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		video  func(t *testing.T) string
	}{
		{
			name:   "missingFile",
			runner: &fakeRunner{probeJSON: probeJSON(10, "30/1")},
			video: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nope.mp4")
			},
		},
		{
			name:   "emptyFile",
			runner: &fakeRunner{probeJSON: probeJSON(10, "30/1")},
			video: func(t *testing.T) string {
				return writeTestVideo(t, nil)
			},
		},
		{
			name:   "probeFails",
			runner: &fakeRunner{probeErr: errors.New("moov atom not found")},
			video: func(t *testing.T) string {
				return writeTestVideo(t, []byte("not a video"))
			},
		},
		{
			name:   "probeGarbage",
			runner: &fakeRunner{probeJSON: "not json"},
			video: func(t *testing.T) string {
				return writeTestVideo(t, []byte("data"))
			},
		},
		{
			name:   "decodeFails",
			runner: &fakeRunner{probeJSON: probeJSON(10, "30/1"), frameErr: errors.New("invalid data")},
			video: func(t *testing.T) string {
				return writeTestVideo(t, []byte("data"))
			},
		},
		{
			name:   "decodeProducesNothing",
			runner: &fakeRunner{probeJSON: probeJSON(10, "30/1"), emptyOut: true},
			video: func(t *testing.T) string {
				return writeTestVideo(t, []byte("data"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSampler(Config{IntervalSeconds: 1, MaxFrames: 10}, tt.runner)
			set, err := s.Sample(context.Background(), tt.video(t))
			if set != nil {
				t.Errorf("Sample() returned a partial set on failure")
			}
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Sample() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestSampleShortVideo(t *testing.T) {
	runner := &fakeRunner{probeJSON: probeJSON(1, "30/1")}
	s := newTestSampler(Config{IntervalSeconds: 5, MaxFrames: 10}, runner)
	path := writeTestVideo(t, []byte("video data"))

	set, err := s.Sample(context.Background(), path)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(set.Frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(set.Frames))
	}
	if set.Frames[0].Timestamp != 0 {
		t.Errorf("timestamp = %g, want 0", set.Frames[0].Timestamp)
	}
}
