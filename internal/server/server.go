package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"videoscribe/internal/pipeline"
	"videoscribe/internal/sampler"
	"videoscribe/internal/storage"
	"videoscribe/internal/vision"
)

//go:embed templates/index.html
var templatesFS embed.FS

type Processor interface {
	Process(ctx context.Context, videoPath, videoName string) (*pipeline.Result, error)
}

// ArchiveLister is satisfied by storage.GCSArchive. Nil when archival is off.
type ArchiveLister interface {
	List(ctx context.Context) ([]string, error)
}

type Server struct {
	processor      Processor
	store          *storage.Local
	archives       ArchiveLister
	maxUploadBytes int64
	tmpl           *template.Template
}

type frameView struct {
	URL       string
	Index     int
	Timestamp float64
}

type pageData struct {
	Error       string
	Description string
	Frames      []frameView
}

func New(processor Processor, store *storage.Local, archives ArchiveLister, maxUploadMB int64) *Server {
	return &Server{
		processor:      processor,
		store:          store,
		archives:       archives,
		maxUploadBytes: maxUploadMB << 20,
		tmpl:           template.Must(template.ParseFS(templatesFS, "templates/index.html")),
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/process", s.handleProcess).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.archives != nil {
		r.HandleFunc("/archives", s.handleArchives).Methods(http.MethodGet)
	}
	r.PathPrefix("/frames/").Handler(
		http.StripPrefix("/frames/", http.FileServer(http.Dir(s.store.FrameDir()))),
	)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, pageData{})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("video")
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, pageData{Error: "No video file in the request."})
		return
	}
	defer func() { _ = file.Close() }()

	videoPath, videoName, err := s.store.SaveUpload(file, header.Filename)
	if err != nil {
		slog.Error("Failed to store upload", "filename", header.Filename, "error", err)
		s.renderPage(w, http.StatusInternalServerError, pageData{Error: "Failed to store the uploaded video."})
		return
	}
	// The upload is scratch input; the frames persist for display.
	defer func() {
		if err := s.store.RemoveUpload(videoPath); err != nil {
			slog.Warn("Failed to remove upload", "path", videoPath, "error", err)
		}
	}()

	result, err := s.processor.Process(r.Context(), videoPath, videoName)
	if err != nil {
		slog.Error("Processing failed", "video", videoName, "error", err)
		s.renderPage(w, statusFor(err), pageData{Error: userMessage(err)})
		return
	}

	frames := make([]frameView, len(result.Frames))
	for i, ref := range result.Frames {
		frames[i] = frameView{
			URL:       "/frames/" + ref.Path,
			Index:     ref.Index,
			Timestamp: ref.Timestamp,
		}
	}

	s.renderPage(w, http.StatusOK, pageData{
		Description: result.Description,
		Frames:      frames,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "videoscribe",
	})
}

func (s *Server) handleArchives(w http.ResponseWriter, r *http.Request) {
	names, err := s.archives.List(r.Context())
	if err != nil {
		slog.Error("Failed to list archives", "error", err)
		http.Error(w, "failed to list archives", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"archives": names})
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.Execute(w, data); err != nil {
		slog.Error("Failed to render page", "error", err)
	}
}

// userMessage maps the failure taxonomy to something actionable for the
// person who uploaded the video.
func userMessage(err error) string {
	switch {
	case errors.Is(err, sampler.ErrDecode):
		return "Could not read your video. Make sure it is a valid, non-empty video file."
	case errors.Is(err, vision.ErrAuth):
		return "The description service rejected this server's credentials. Check the server configuration."
	case errors.Is(err, vision.ErrRateLimit), errors.Is(err, vision.ErrTransport):
		return "Could not reach the description service. Please try again in a moment."
	case errors.Is(err, vision.ErrEmptyResponse), errors.Is(err, vision.ErrUpstream):
		return "The description service returned no usable answer for this video."
	default:
		return fmt.Sprintf("Processing failed: %v", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sampler.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, vision.ErrAuth):
		return http.StatusInternalServerError
	case errors.Is(err, vision.ErrRateLimit), errors.Is(err, vision.ErrTransport),
		errors.Is(err, vision.ErrEmptyResponse), errors.Is(err, vision.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
