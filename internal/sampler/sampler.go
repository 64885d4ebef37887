package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrDecode marks a video that could not be read at all: corrupt container,
// unsupported codec, or an empty upload. It is structural, never retried.
var ErrDecode = errors.New("video could not be decoded")

// Frame is one sampled still image. Index is the 0-based position in the
// sampled sequence; Timestamp is the source position in seconds.
type Frame struct {
	Index     int
	Timestamp float64
	Data      []byte
}

type FrameSet struct {
	Frames   []Frame
	Duration float64
}

type Config struct {
	IntervalSeconds float64
	MaxFrames       int
}

// execRunner runs a command and returns its stdout. Injected in tests.
type execRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Sampler extracts frames from a video at a fixed time cadence. It is
// stateless across calls; concurrent Sample invocations are safe.
type Sampler struct {
	ffmpegPath  string
	ffprobePath string
	cfg         Config
	run         execRunner
}

func New(cfg Config) *Sampler {
	return &Sampler{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		cfg:         cfg,
		run:         runCommand,
	}
}

// Sample steps through the video in increments of IntervalSeconds and decodes
// the frame at each step, up to MaxFrames. The result is either a fully
// formed set or an error; no partial sets. Output is deterministic for the
// same input and config.
func (s *Sampler) Sample(ctx context.Context, videoPath string) (*FrameSet, error) {
	if info, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	} else if info.Size() == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrDecode)
	}

	meta, err := s.probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	timestamps := plan(meta.Duration, s.cfg)
	frames := make([]Frame, 0, len(timestamps))
	for i, ts := range timestamps {
		data, err := s.decodeAt(ctx, videoPath, ts, meta)
		if err != nil {
			return nil, fmt.Errorf("frame %d at %.2fs: %w", i, ts, err)
		}
		frames = append(frames, Frame{Index: i, Timestamp: ts, Data: data})
	}

	return &FrameSet{Frames: frames, Duration: meta.Duration}, nil
}

// plan returns the sample timestamps: 0, i, 2i, ... while the step stays
// within the video, capped at MaxFrames. A video shorter than one interval
// still yields its first frame.
func plan(duration float64, cfg Config) []float64 {
	count := int(math.Floor(duration/cfg.IntervalSeconds)) + 1
	if count < 1 {
		count = 1
	}
	if count > cfg.MaxFrames {
		count = cfg.MaxFrames
	}

	timestamps := make([]float64, count)
	for i := range timestamps {
		timestamps[i] = float64(i) * cfg.IntervalSeconds
	}
	return timestamps
}

func (s *Sampler) decodeAt(ctx context.Context, videoPath string, ts float64, meta *probeInfo) ([]byte, error) {
	seek := ts
	if seek >= meta.Duration {
		// The final step can land past the last packet; back off by one
		// frame so the tail frame still decodes.
		frameDur := 0.05
		if meta.FrameRate > 0 {
			frameDur = 1.0 / meta.FrameRate
		}
		seek = math.Max(0, meta.Duration-frameDur)
	}

	out, err := s.run(ctx, s.ffmpegPath,
		"-v", "error",
		"-ss", formatSeconds(seek),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", ErrDecode)
	}
	return out, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %v: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
