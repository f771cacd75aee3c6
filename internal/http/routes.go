package httpx

import (
	"log/slog"
	"net/http"

	"github.com/voiceloop/gatehouse/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Intake *service.IntakeService
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Intake}
	registerJobRoutes(mux, jobHandlers)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/gates/{gate}/response", h.RespondToGate)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.CancelJob)
}
