package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"videoscribe/internal/sampler"
)

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Local manages the upload scratch directory and the per-video frame
// directories that get served as static assets.
type Local struct {
	uploadDir string
	frameDir  string
}

func NewLocal(uploadDir, frameDir string) *Local {
	return &Local{
		uploadDir: uploadDir,
		frameDir:  frameDir,
	}
}

func (s *Local) EnsureDirectories() error {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}
	if err := os.MkdirAll(s.frameDir, 0755); err != nil {
		return fmt.Errorf("create frame directory: %w", err)
	}
	return nil
}

func (s *Local) FrameDir() string { return s.frameDir }

// SaveUpload writes the uploaded video to the scratch directory and returns
// its path plus the name used for the frame directory. The name is prefixed
// with a timestamp so concurrent uploads of the same file don't collide.
func (s *Local) SaveUpload(r io.Reader, filename string) (path, videoName string, err error) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	safe := sanitizeForPath(base)
	if safe == "" {
		safe = "video"
	}
	if len(safe) > 50 {
		safe = safe[:50]
	}

	stamp := strings.ReplaceAll(time.Now().Format("20060102_150405.000"), ".", "")
	videoName = fmt.Sprintf("%s_%s", stamp, safe)
	path = filepath.Join(s.uploadDir, videoName+filepath.Ext(filename))

	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create upload file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(path)
		return "", "", fmt.Errorf("write upload: %w", err)
	}

	return path, videoName, nil
}

// SaveFrames writes the sampled frames under a per-video subdirectory and
// returns their paths relative to the frame dir, in frame order. These
// relative paths double as URL paths for the static frame handler.
func (s *Local) SaveFrames(videoName string, frames []sampler.Frame) ([]string, error) {
	dir := filepath.Join(s.frameDir, videoName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create frame directory: %w", err)
	}

	refs := make([]string, 0, len(frames))
	for _, frame := range frames {
		name := fmt.Sprintf("frame_%04d.jpg", frame.Index)
		if err := os.WriteFile(filepath.Join(dir, name), frame.Data, 0644); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("write frame %d: %w", frame.Index, err)
		}
		refs = append(refs, filepath.ToSlash(filepath.Join(videoName, name)))
	}

	return refs, nil
}

func (s *Local) RemoveUpload(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// RemoveFrames discards a video's frame directory. Used when a later stage
// fails, so no partial artifacts are left behind.
func (s *Local) RemoveFrames(videoName string) error {
	if err := os.RemoveAll(filepath.Join(s.frameDir, videoName)); err != nil {
		return fmt.Errorf("remove frames: %w", err)
	}
	return nil
}

func sanitizeForPath(s string) string {
	s = strings.ToLower(s)
	s = sanitizeRegex.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
