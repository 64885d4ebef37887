package sampler

import (
	"context"
	"errors"
	"testing"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name          string
		probeJSON     string
		wantErr       bool
		wantDuration  float64
		wantFrameRate float64
	}{
		{
			name:          "validVideo",
			probeJSON:     probeJSON(8.5, "30000/1001"),
			wantDuration:  8.5,
			wantFrameRate: 30000.0 / 1001.0,
		},
		{
			name: "fallsBackToRFrameRate",
			probeJSON: `{
				"format": {"duration": "4"},
				"streams": [{"codec_type": "video", "avg_frame_rate": "0/0", "r_frame_rate": "25/1"}]
			}`,
			wantDuration:  4,
			wantFrameRate: 25,
		},
		{
			name: "noVideoStream",
			probeJSON: `{
				"format": {"duration": "10"},
				"streams": [{"codec_type": "audio", "avg_frame_rate": "0/0", "r_frame_rate": "0/0"}]
			}`,
			wantErr: true,
		},
		{
			name:      "missingDuration",
			probeJSON: `{"format": {}, "streams": [{"codec_type": "video"}]}`,
			wantErr:   true,
		},
		{
			name:      "zeroDuration",
			probeJSON: `{"format": {"duration": "0"}, "streams": [{"codec_type": "video"}]}`,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSampler(Config{IntervalSeconds: 1, MaxFrames: 10}, &fakeRunner{probeJSON: tt.probeJSON})

			info, err := s.probe(context.Background(), "clip.mp4")
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Errorf("probe() error = %v, want ErrDecode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("probe() error = %v", err)
			}

			if info.Duration != tt.wantDuration {
				t.Errorf("Duration = %g, want %g", info.Duration, tt.wantDuration)
			}
			if info.FrameRate != tt.wantFrameRate {
				t.Errorf("FrameRate = %g, want %g", info.FrameRate, tt.wantFrameRate)
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		name string
		rate string
		want float64
	}{
		{name: "ntscRational", rate: "30000/1001", want: 30000.0 / 1001.0},
		{name: "wholeRational", rate: "25/1", want: 25},
		{name: "degenerate", rate: "0/0", want: 0},
		{name: "plainNumber", rate: "24", want: 24},
		{name: "empty", rate: "", want: 0},
		{name: "garbage", rate: "abc/def", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRate(tt.rate); got != tt.want {
				t.Errorf("parseRate(%q) = %g, want %g", tt.rate, got, tt.want)
			}
		})
	}
}
