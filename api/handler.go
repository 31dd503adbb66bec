package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/facturaIA/captcha-ocr-service/internal/config"
	"github.com/facturaIA/captcha-ocr-service/internal/models"
	"github.com/facturaIA/captcha-ocr-service/internal/ocr"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

const (
	healthTimeout = 5 * time.Second
	// sampleURLTTL bounds presigned links handed out by /api/recognitions.
	sampleURLTTL = 15 * time.Minute
)

// RecognitionStore persists the recognition audit log.
type RecognitionStore interface {
	SaveRecognition(ctx context.Context, rec *models.Recognition) error
	ListRecognitions(ctx context.Context, limit int) ([]models.Recognition, error)
	Stats(ctx context.Context) ([]models.BackendStats, error)
	Ping(ctx context.Context) error
}

// SampleArchive keeps a copy of submitted images.
type SampleArchive interface {
	SaveSample(ctx context.Context, backend, id string, data []byte, contentType string) (string, error)
	GetPresignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	Bucket() string
}

// Handler handles HTTP requests for captcha recognition
type Handler struct {
	config     *config.Config
	dispatcher *ocr.Dispatcher
	store      RecognitionStore
	archive    SampleArchive
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithStore enables the audit log endpoints.
func WithStore(s RecognitionStore) Option { return func(h *Handler) { h.store = s } }

// WithArchive stores every submitted sample.
func WithArchive(a SampleArchive) Option { return func(h *Handler) { h.archive = a } }

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.logger = l } }

// NewHandler creates a new API handler
func NewHandler(cfg *config.Config, dispatcher *ocr.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		config:     cfg,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	limit := cfg.Server.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	h.sem = semaphore.NewWeighted(limit)
	return h
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Recognition
	router.HandleFunc("/api/ocr/{backend}", h.RecognizeUpload).Methods("POST")
	router.HandleFunc("/api/ocr/{backend}/base64", h.RecognizeBase64).Methods("POST")
	router.HandleFunc("/api/backends", h.ListBackends).Methods("GET")

	// Audit log
	router.HandleFunc("/api/recognitions", h.GetRecognitions).Methods("GET")
	router.HandleFunc("/api/stats", h.GetStats).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	// Routes kept for existing captcha clients
	router.HandleFunc("/ocr/captcha", h.legacyUpload("tesseract")).Methods("POST")
	router.HandleFunc("/ocr/captcha-base64", h.legacyBase64("tesseract")).Methods("POST")
	router.HandleFunc("/ocr/captcha-easy", h.legacyUpload(config.FallbackName)).Methods("POST")
	router.HandleFunc("/ocr/captcha-easy-base64", h.legacyBase64(config.FallbackName)).Methods("POST")
	router.HandleFunc("/ocr/by-base64", h.legacyBase64("library")).Methods("POST")
	router.HandleFunc("/api/v1/ocr", h.RecognizeDefault).Methods("POST")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status         string                   `json:"status"`
	Version        string                   `json:"version"`
	Timestamp      string                   `json:"timestamp"`
	Uptime         string                   `json:"uptime"`
	Memory         MemoryStats              `json:"memory"`
	DefaultBackend string                   `json:"defaultBackend"`
	Backends       map[string]ServiceStatus `json:"backends"`
	Database       ServiceStatus            `json:"database"`
	Storage        ServiceStatus            `json:"storage"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

type versioner interface {
	Version(ctx context.Context) (string, error)
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	// Memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	backends := h.checkBackends(ctx)
	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		DefaultBackend: h.config.OCR.DefaultBackend,
		Backends:       backends,
		Database:       h.checkDatabase(ctx),
		Storage:        h.checkStorage(),
	}

	// No usable backend means the service cannot do its job.
	status := http.StatusOK
	available := 0
	for _, s := range backends {
		if s.Available {
			available++
		}
	}
	if available == 0 {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// checkBackends probes every registered backend concurrently.
func (h *Handler) checkBackends(ctx context.Context) map[string]ServiceStatus {
	names := h.dispatcher.Backends()
	statuses := make([]ServiceStatus, len(names))

	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			statuses[i] = h.checkBackend(ctx, name)
			return nil
		})
	}
	g.Wait()

	out := make(map[string]ServiceStatus, len(names))
	for i, name := range names {
		out[name] = statuses[i]
	}
	return out
}

func (h *Handler) checkBackend(ctx context.Context, name string) ServiceStatus {
	r, ok := h.dispatcher.Backend(name)
	if !ok {
		return ServiceStatus{Error: "not registered"}
	}
	if hc, ok := r.(ocr.HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return ServiceStatus{Error: err.Error()}
		}
	}
	status := ServiceStatus{Available: true}
	if v, ok := r.(versioner); ok {
		if version, err := v.Version(ctx); err == nil {
			status.Version = version
		}
	}
	return status
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase(ctx context.Context) ServiceStatus {
	if h.store == nil {
		return ServiceStatus{Error: "database not configured"}
	}
	if err := h.store.Ping(ctx); err != nil {
		return ServiceStatus{Error: err.Error()}
	}
	return ServiceStatus{Available: true, Version: "PostgreSQL"}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if h.archive == nil {
		return ServiceStatus{Error: "storage not configured"}
	}
	return ServiceStatus{Available: true, Version: "MinIO S3 bucket " + h.archive.Bucket()}
}

// ListBackends reports the registered backends and their availability.
func (h *Handler) ListBackends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	statuses := h.checkBackends(ctx)
	names := h.dispatcher.Backends()
	out := make([]models.BackendInfo, 0, len(names))
	for _, name := range names {
		s := statuses[name]
		out = append(out, models.BackendInfo{
			Name:      name,
			Default:   name == h.config.OCR.DefaultBackend,
			Available: s.Available,
			Error:     s.Error,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"backends": out,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, models.ErrorResponse{Success: false, Error: message})
}
