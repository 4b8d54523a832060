package httphandler

import (
	"net/http"

	"github.com/stellar/go/support/render/httpjson"

	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// ServiceID is the canonical service name reported by health checks.
const ServiceID = "grid-x-coordinator"

// HealthResponse is the liveness probe payload. It carries no dependency
// checks: the process answering at all is the signal.
type HealthResponse struct {
	Status    string  `json:"status"`
	Service   string  `json:"service"`
	Timestamp float64 `json:"timestamp"`
}

// HealthHandler implements a simple handler that returns the health response.
type HealthHandler struct{}

// ServeHTTP implements the http.Handler interface.
func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpjson.Render(w, HealthResponse{
		Status:    "healthy",
		Service:   ServiceID,
		Timestamp: utils.NowEpoch(),
	}, httpjson.JSON)
}
