package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"videoscribe/internal/sampler"
	"videoscribe/internal/storage"
)

type Sampler interface {
	Sample(ctx context.Context, videoPath string) (*sampler.FrameSet, error)
}

type Describer interface {
	Describe(ctx context.Context, frames []sampler.Frame) (string, error)
}

type Archiver interface {
	Store(ctx context.Context, videoName string, frames []sampler.Frame, description string) error
}

// Pipeline runs one video through sampling then description. It holds no
// per-video state, so concurrent Process calls are independent.
type Pipeline struct {
	sampler   Sampler
	describer Describer
	store     *storage.Local
	archive   Archiver
}

// FrameRef points at a persisted frame. Path is relative to the frame dir
// and doubles as the URL path under /frames/.
type FrameRef struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Path      string  `json:"path"`
}

type Result struct {
	VideoName   string     `json:"video_name"`
	Description string     `json:"description"`
	Frames      []FrameRef `json:"frames"`
}

func New(s Sampler, d Describer, store *storage.Local, archive Archiver) *Pipeline {
	return &Pipeline{
		sampler:   s,
		describer: d,
		store:     store,
		archive:   archive,
	}
}

// Process samples the video, persists the frames for display, and requests a
// description. A sampling failure short-circuits before the remote call; a
// description failure discards the persisted frames so nothing partial
// survives.
func (p *Pipeline) Process(ctx context.Context, videoPath, videoName string) (*Result, error) {
	slog.Info("Sampling frames...", "video", videoName)
	set, err := p.sampler.Sample(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}

	refs, err := p.store.SaveFrames(videoName, set.Frames)
	if err != nil {
		return nil, fmt.Errorf("save frames: %w", err)
	}

	slog.Info("Requesting description...", "video", videoName, "frames", len(set.Frames))
	description, err := p.describer.Describe(ctx, set.Frames)
	if err != nil {
		if rmErr := p.store.RemoveFrames(videoName); rmErr != nil {
			slog.Warn("Failed to discard frames after describe failure", "video", videoName, "error", rmErr)
		}
		return nil, fmt.Errorf("describe: %w", err)
	}

	if p.archive != nil {
		if err := p.archive.Store(ctx, videoName, set.Frames, description); err != nil {
			slog.Warn("Failed to archive analysis", "video", videoName, "error", err)
		}
	}

	frames := make([]FrameRef, len(set.Frames))
	for i, frame := range set.Frames {
		frames[i] = FrameRef{
			Index:     frame.Index,
			Timestamp: frame.Timestamp,
			Path:      refs[i],
		}
	}

	return &Result{
		VideoName:   videoName,
		Description: description,
		Frames:      frames,
	}, nil
}
