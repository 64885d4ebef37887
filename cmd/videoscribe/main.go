package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"videoscribe/internal/pipeline"
	"videoscribe/internal/sampler"
	"videoscribe/internal/server"
	"videoscribe/internal/storage"
	"videoscribe/internal/vision"
	"videoscribe/pkg/config"
	"videoscribe/pkg/httputil"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	setupLogger()

	switch cmd {
	case "serve":
		runServe()
	case "describe":
		runDescribe()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: videoscribe <command> [options]

Commands:
  serve       Run the upload web server
  describe    Describe a single local video and print the result

Serve options:
  -port       Port to listen on (overrides PORT)

Describe options:
  -video      Path to the video file (required)
  -interval   Seconds between sampled frames
  -max-frames Maximum number of frames to sample

Examples:
  videoscribe serve
  videoscribe serve -port 9090
  videoscribe describe -video clip.mp4
  videoscribe describe -video clip.mp4 -interval 2 -max-frames 8`)
}

func setupLogger() {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: "15:04:05",
		}),
	))
}

func runServe() {
	port := flag.String("port", "", "Port to listen on")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storage.NewLocal(cfg.Server.UploadDir, cfg.Server.FrameDir)
	if err := store.EnsureDirectories(); err != nil {
		slog.Error("Failed to prepare directories", "error", err)
		os.Exit(1)
	}

	var archiver pipeline.Archiver
	var lister server.ArchiveLister
	if cfg.GCS.Enabled {
		archive, err := storage.NewGCSArchive(ctx, cfg.GCSBucket, cfg.GCS.Prefix)
		if err != nil {
			slog.Error("Failed to set up GCS archive", "error", err)
			os.Exit(1)
		}
		defer func() { _ = archive.Close() }()
		archiver = archive
		lister = archive
	}

	pipe := pipeline.New(newSampler(cfg), newDescriber(cfg), store, archiver)
	srv := server.New(pipe, store, lister, cfg.Server.MaxUploadMB)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port, "archival", cfg.GCS.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}

func runDescribe() {
	videoPath := flag.String("video", "", "Path to the video file")
	interval := flag.Float64("interval", 0, "Seconds between sampled frames")
	maxFrames := flag.Int("max-frames", 0, "Maximum number of frames to sample")
	flag.Parse()

	if *videoPath == "" {
		slog.Error("Please provide a video with -video")
		os.Exit(1)
	}

	cfg := config.Load()
	if *interval > 0 {
		cfg.Sampling.IntervalSeconds = *interval
	}
	if *maxFrames > 0 {
		cfg.Sampling.MaxFrames = *maxFrames
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Sampling frames...", "video", *videoPath,
		"interval", cfg.Sampling.IntervalSeconds, "maxFrames", cfg.Sampling.MaxFrames)
	set, err := newSampler(cfg).Sample(ctx, *videoPath)
	if err != nil {
		slog.Error("Sampling failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Requesting description...", "frames", len(set.Frames))
	description, err := newDescriber(cfg).Describe(ctx, set.Frames)
	if err != nil {
		slog.Error("Description failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(description)
}

func newSampler(cfg *config.Config) *sampler.Sampler {
	return sampler.New(sampler.Config{
		IntervalSeconds: cfg.Sampling.IntervalSeconds,
		MaxFrames:       cfg.Sampling.MaxFrames,
	})
}

func newDescriber(cfg *config.Config) *vision.Client {
	return vision.NewClient(cfg.APIKey, vision.Options{
		BaseURL:   cfg.Vision.BaseURL,
		Model:     cfg.Vision.Model,
		MaxTokens: cfg.Vision.MaxTokens,
		Timeout:   cfg.RequestTimeout(),
		Retry: httputil.RetryConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.InitialDelay(),
			MaxDelay:     cfg.MaxDelay(),
			Multiplier:   cfg.Retry.Multiplier,
		},
	})
}
