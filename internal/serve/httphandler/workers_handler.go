package httphandler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stellar/go/support/http/httpdecode"
	"github.com/stellar/go/support/log"
	"github.com/stellar/go/support/render/httpjson"

	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/serve/httperror"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// WorkersHandler serves the HTTP-side worker surface: the roster, the
// registration fallback for workers that cannot hold a socket open, and
// heartbeats. Socket-attached workers use the session hub instead.
type WorkersHandler struct {
	Models *data.Models
}

type RegisterWorkerRequest struct {
	ID      string       `json:"id"`
	Caps    data.JSONMap `json:"caps"`
	IP      string       `json:"ip"`
	OwnerID string       `json:"owner_id"`
}

type RegisterWorkerResponse struct {
	Success  bool   `json:"success"`
	WorkerID string `json:"worker_id"`
	Status   string `json:"status"`
}

type HeartbeatRequest struct {
	ID string `json:"id"`
}

type HeartbeatResponse struct {
	Success   bool    `json:"success"`
	WorkerID  string  `json:"worker_id"`
	Timestamp float64 `json:"timestamp"`
}

// GetWorkers lists every registered worker as a bare array. Auth tokens never
// serialize.
func (h WorkersHandler) GetWorkers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workers, err := h.Models.Workers.GetAll(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve workers", err, nil).Render(w)
		return
	}

	httpjson.Render(w, workers, httpjson.JSON)
}

// RegisterWorker upserts a worker row over HTTP. Re-registration refreshes
// ip, caps and status but keeps the lifetime counters.
func (h WorkersHandler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqBody RegisterWorkerRequest
	if err := httpdecode.DecodeJSON(r, &reqBody); err != nil {
		err = fmt.Errorf("decoding the request body: %w", err)
		log.Ctx(ctx).Error(err)
		httperror.BadRequest("", err, nil).Render(w)
		return
	}

	if reqBody.ID == "" {
		httperror.BadRequest("Missing 'id' in body", nil, nil).Render(w)
		return
	}
	if !utils.IsValidUUID(reqBody.ID) {
		httperror.BadRequest("Invalid worker ID format", nil, nil).Render(w)
		return
	}

	caps := reqBody.Caps
	if len(caps) == 0 {
		caps = data.JSONMap{"cpu_cores": 1, "gpu_count": 0}
	}

	ip := reqBody.IP
	if ip == "" {
		ip = "http-worker"
	}
	ip = utils.SanitizeString(ip, 255)

	ownerID := utils.SanitizeString(reqBody.OwnerID, 64)
	if ownerID != "" && !utils.IsValidUserID(ownerID) {
		httperror.BadRequest(fmt.Sprintf("Invalid owner_id: %s", ownerID), nil, nil).Render(w)
		return
	}

	worker, err := h.Models.Workers.Upsert(ctx, data.Worker{
		ID:      reqBody.ID,
		OwnerID: ownerID,
		IP:      ip,
		Caps:    caps,
		Status:  data.IdleWorkerStatus,
	})
	if err != nil {
		httperror.InternalError(ctx, "Cannot register worker", err, nil).Render(w)
		return
	}

	log.Ctx(ctx).Infof("🔧 worker %s registered via HTTP, owner=%s", worker.ID, ownerID)

	httpjson.Render(w, RegisterWorkerResponse{
		Success:  true,
		WorkerID: worker.ID,
		Status:   "registered",
	}, httpjson.JSON)
}

// HeartbeatByPath handles POST /workers/{id}/heartbeat.
func (h WorkersHandler) HeartbeatByPath(w http.ResponseWriter, r *http.Request) {
	h.touchHeartbeat(w, r, chi.URLParam(r, "id"))
}

// HeartbeatByBody handles POST /workers/heartbeat with the id in the body.
func (h WorkersHandler) HeartbeatByBody(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqBody HeartbeatRequest
	if err := httpdecode.DecodeJSON(r, &reqBody); err != nil {
		err = fmt.Errorf("decoding the request body: %w", err)
		log.Ctx(ctx).Error(err)
		httperror.BadRequest("", err, nil).Render(w)
		return
	}

	if reqBody.ID == "" {
		httperror.BadRequest("Missing 'id' in body", nil, nil).Render(w)
		return
	}

	h.touchHeartbeat(w, r, reqBody.ID)
}

// touchHeartbeat refreshes last_heartbeat. An unknown worker id is not an
// error: the row may have been created by a registration the worker retries
// next, and heartbeats must stay cheap to answer.
func (h WorkersHandler) touchHeartbeat(w http.ResponseWriter, r *http.Request, workerID string) {
	ctx := r.Context()

	if !utils.IsValidUUID(workerID) {
		httperror.BadRequest("Invalid worker ID format", nil, nil).Render(w)
		return
	}

	if err := h.Models.Workers.TouchHeartbeat(ctx, workerID); err != nil && !errors.Is(err, data.ErrRecordNotFound) {
		httperror.InternalError(ctx, "Cannot record heartbeat", err, nil).Render(w)
		return
	}

	httpjson.Render(w, HeartbeatResponse{
		Success:   true,
		WorkerID:  workerID,
		Timestamp: utils.NowEpoch(),
	}, httpjson.JSON)
}
