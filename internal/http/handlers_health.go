package httpx

import (
	"io"
	"net/http"
)

const healthBody = `{"status":"ok"}`

// healthHandler answers liveness and readiness probes. It reports process
// health only; job store reachability surfaces through the API endpoints.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	// A short write here means the client already hung up.
	_, _ = io.WriteString(w, healthBody)
}
