package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeInfo struct {
	Duration  float64
	FrameRate float64
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

func (s *Sampler) probe(ctx context.Context, videoPath string) (*probeInfo, error) {
	out, err := s.run(ctx, s.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", ErrDecode, err)
	}

	duration, err := strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return nil, fmt.Errorf("%w: no usable duration (%q)", ErrDecode, probed.Format.Duration)
	}

	info := &probeInfo{Duration: duration}
	for _, stream := range probed.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.FrameRate = parseRate(stream.AvgFrameRate)
		if info.FrameRate == 0 {
			info.FrameRate = parseRate(stream.RFrameRate)
		}
		return info, nil
	}

	return nil, fmt.Errorf("%w: no video stream", ErrDecode)
}

// parseRate converts an ffprobe rational like "30000/1001" to frames per
// second. Returns 0 for missing or degenerate rates ("0/0").
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}

	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
