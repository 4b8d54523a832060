package httphandler

import (
	"net/http"
	"time"

	"github.com/stellar/go/support/render/httpjson"

	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/dispatch"
	"github.com/gridx-network/gridx-coordinator/internal/serve/httperror"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// StatusHandler reports a coarse operational summary: worker counts from the
// store, the in-memory queue depth, and the process uptime.
type StatusHandler struct {
	Models    *data.Models
	Queue     *dispatch.Queue
	Version   string
	StartedAt time.Time
}

type StatusResponse struct {
	Service   string               `json:"service"`
	Version   string               `json:"version"`
	Uptime    float64              `json:"uptime"`
	Workers   StatusWorkersSummary `json:"workers"`
	QueueSize int                  `json:"queue_size"`
	Timestamp float64              `json:"timestamp"`
}

// StatusWorkersSummary counts worker rows; active covers idle and busy, i.e.
// everything not marked offline.
type StatusWorkersSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workers, err := h.Models.Workers.GetAll(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve workers", err, nil).Render(w)
		return
	}

	active := 0
	for _, worker := range workers {
		if worker.Status == data.IdleWorkerStatus || worker.Status == data.BusyWorkerStatus {
			active++
		}
	}

	httpjson.Render(w, StatusResponse{
		Service:   "Grid-X Coordinator",
		Version:   h.Version,
		Uptime:    time.Since(h.StartedAt).Seconds(),
		Workers:   StatusWorkersSummary{Total: len(workers), Active: active},
		QueueSize: h.Queue.Len(),
		Timestamp: utils.NowEpoch(),
	}, httpjson.JSON)
}
