package httphandler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stellar/go/support/http/httpdecode"
	"github.com/stellar/go/support/log"
	"github.com/stellar/go/support/render/httpjson"

	"github.com/gridx-network/gridx-coordinator/internal/credits"
	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/dispatch"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/serve/httperror"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// MaxCodeSizeBytes is the submission ceiling for job code.
const MaxCodeSizeBytes = 1_000_000

type JobsHandler struct {
	Models         *data.Models
	Engine         *credits.Engine
	Queue          *dispatch.Queue
	Dispatcher     *dispatch.Dispatcher
	MonitorService monitor.MonitorServiceInterface
}

// SubmitJobRequest is the POST /jobs body. Code is decoded loosely so that a
// missing or mistyped field surfaces as its own validation message, and the
// timeout rides inside the limits object.
type SubmitJobRequest struct {
	UserID   string         `json:"user_id"`
	Code     any            `json:"code"`
	Language string         `json:"language"`
	Limits   map[string]any `json:"limits"`
}

type SubmitJobResponse struct {
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Reserved float64 `json:"reserved"`
	Message  string  `json:"message"`
}

// SubmitJob validates the submission, reserves the worst-case cost from the
// submitter's balance, persists the job and enqueues it. The reservation
// happens before the insert so a crash between the two can never produce a
// free job; a failed insert refunds it.
func (h JobsHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqBody SubmitJobRequest
	if err := httpdecode.DecodeJSON(r, &reqBody); err != nil {
		err = fmt.Errorf("decoding the request body: %w", err)
		log.Ctx(ctx).Error(err)
		httperror.BadRequest("", err, nil).Render(w)
		return
	}

	code, ok := reqBody.Code.(string)
	if !ok || code == "" {
		httperror.BadRequest("Missing or invalid 'code' field", nil, nil).Render(w)
		return
	}
	if len(code) > MaxCodeSizeBytes {
		httperror.BadRequest("Code exceeds maximum size of 1MB", nil, nil).Render(w)
		return
	}

	language := data.Language(reqBody.Language)
	if reqBody.Language == "" {
		language = data.LanguagePython
	}
	if err := language.Validate(); err != nil {
		httperror.BadRequest(fmt.Sprintf("Unsupported language: %s", reqBody.Language), err, nil).Render(w)
		return
	}

	userID := reqBody.UserID
	if userID == "" {
		userID = "demo"
	}
	if !utils.IsValidUserID(userID) {
		httperror.BadRequest(fmt.Sprintf("Invalid user_id: %s", userID), nil, nil).Render(w)
		return
	}

	code = utils.SanitizeString(code, MaxCodeSizeBytes)
	userID = utils.SanitizeString(userID, 64)

	timeout := timeoutSeconds(reqBody.Limits, h.Engine.Config().DefaultJobTimeout)
	reserved := h.Engine.MaxReserve(timeout)

	balance, err := h.Engine.EnsureUser(ctx, userID)
	if err != nil {
		httperror.InternalError(ctx, "Cannot ensure user account", err, nil).Render(w)
		return
	}
	if balance < reserved {
		msg := fmt.Sprintf("Insufficient credits. Reserve required: %v (based on timeout), have %v", reserved, balance)
		httperror.PaymentRequired(msg, nil, map[string]interface{}{
			"required": reserved,
			"balance":  balance,
		}).Render(w)
		return
	}

	deducted, err := h.Engine.Reserve(ctx, userID, reserved)
	if err != nil {
		httperror.InternalError(ctx, "Cannot reserve credits", err, nil).Render(w)
		return
	}
	if !deducted {
		balance, err = h.Engine.Balance(ctx, userID)
		if err != nil {
			httperror.InternalError(ctx, "Cannot read user balance", err, nil).Render(w)
			return
		}
		httperror.PaymentRequired(fmt.Sprintf("Failed to deduct credits. Balance: %v", balance), nil, nil).Render(w)
		return
	}

	job, err := h.Models.Jobs.Insert(ctx, data.Job{
		ID:       uuid.NewString(),
		UserID:   userID,
		Code:     code,
		Language: language,
		Limits:   data.JSONMap{"timeout_s": timeout},
		Cost:     reserved,
	})
	if err != nil {
		log.Ctx(ctx).Errorf("job creation failed: %v, refunding %v credits to %s", err, reserved, userID)
		if refundErr := h.Engine.Refund(ctx, userID, reserved); refundErr != nil {
			log.Ctx(ctx).Errorf("refunding %v credits to %s: %v", reserved, userID, refundErr)
		}
		httperror.InternalError(ctx, "Job creation failed", err, nil).Render(w)
		return
	}

	h.Queue.Push(job.ID)
	h.Dispatcher.Kick()

	if monitorErr := h.MonitorService.MonitorCounters(monitor.JobsSubmittedCounterTag, map[string]string{
		"language": string(language),
	}); monitorErr != nil {
		log.Ctx(ctx).Errorf("Error trying to monitor jobs submitted counter: %s", monitorErr)
	}

	log.Ctx(ctx).Infof("📦 job %s submitted by user %s, reserved=%v (time-based)", job.ID, userID, reserved)

	httpjson.Render(w, SubmitJobResponse{
		JobID:    job.ID,
		Status:   string(data.QueuedJobStatus),
		Reserved: reserved,
		Message:  "Charged by compute time when job completes; unused reserve refunded.",
	}, httpjson.JSON)
}

// GetJobs lists the submitter's jobs, newest first, as a bare array.
func (h JobsHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httperror.BadRequest("user_id query parameter is required", nil, nil).Render(w)
		return
	}
	if !utils.IsValidUserID(userID) {
		httperror.BadRequest(fmt.Sprintf("Invalid user_id: %s", userID), nil, nil).Render(w)
		return
	}

	limit := 50
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	jobs, err := h.Models.Jobs.ListBySubmitter(ctx, userID, limit)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve jobs", err, nil).Render(w)
		return
	}

	httpjson.Render(w, jobs, httpjson.JSON)
}

func (h JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := chi.URLParam(r, "id")
	if !utils.IsValidUUID(jobID) {
		httperror.BadRequest("Invalid job ID format", nil, nil).Render(w)
		return
	}

	job, err := h.Models.Jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("Job not found", err, nil).Render(w)
		} else {
			httperror.InternalError(ctx, "Cannot retrieve job", err, nil).Render(w)
		}
		return
	}

	httpjson.Render(w, job, httpjson.JSON)
}

// timeoutSeconds pulls limits.timeout_s as an int. Absent, zero or
// uncoercible values fall back to def, so sloppy clients still get priced on
// the default window instead of being rejected.
func timeoutSeconds(limits map[string]any, def int) int {
	raw, ok := limits["timeout_s"]
	if !ok || raw == nil {
		return def
	}

	switch t := raw.(type) {
	case float64:
		if t == 0 {
			return def
		}
		return int(t)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(t)); err == nil && parsed != 0 {
			return parsed
		}
		return def
	default:
		return def
	}
}
