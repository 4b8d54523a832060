// Package session owns the worker side of the coordinator: it upgrades
// worker connections, walks each one through the hello handshake and feeds
// the dispatcher with the frames that arrive afterwards.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/dispatch"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/registry"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
	"github.com/gridx-network/gridx-coordinator/pkg/wire"
)

const (
	wsReadBuffer  = 1024
	wsWriteBuffer = 1024
)

// Hub accepts worker channel connections and runs one session per
// connection. It carries the shared dependencies every session needs.
type Hub struct {
	registry             *registry.Registry
	dispatcher           *dispatch.Dispatcher
	models               *data.Models
	monitorService       monitor.MonitorServiceInterface
	allowUnauthenticated bool

	upgrader websocket.Upgrader
}

type HubOptions struct {
	Registry       *registry.Registry
	Dispatcher     *dispatch.Dispatcher
	Models         *data.Models
	MonitorService monitor.MonitorServiceInterface

	// AllowUnauthenticated admits hellos without owner and token. Off by
	// default; only meant for closed lab networks running legacy workers.
	AllowUnauthenticated bool
}

func NewHub(opts HubOptions) *Hub {
	return &Hub{
		registry:             opts.Registry,
		dispatcher:           opts.Dispatcher,
		models:               opts.Models,
		monitorService:       opts.MonitorService,
		allowUnauthenticated: opts.AllowUnauthenticated,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadBuffer,
			WriteBufferSize: wsWriteBuffer,
			// workers are non-browser clients, origin checks do not apply
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// WorkerHandler upgrades the request and runs the session until the
// connection dies.
func (h *Hub) WorkerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Ctx(r.Context()).Warnf("upgrading worker connection: %v", err)
			return
		}
		newSession(h, conn).run(r.Context())
	}
}

// UnknownPathHandler upgrades and immediately closes with CloseUnknownPath,
// so a misconfigured worker sees an actionable close code instead of a bare
// HTTP error.
func (h *Hub) UnknownPathHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(wire.CloseUnknownPath, "Not Found")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// resolveHello applies the authentication rules to a hello frame and returns
// the canonical worker id. A non-empty rejectReason means the session must
// be refused with an auth_error and close 4401, having written nothing.
//
// The rules, in order: a hello without owner and token is only admitted when
// AllowUnauthenticated is on. A known owner must present the stored token —
// on a match the worker row registered under (owner, token) is adopted when
// one exists, otherwise the presented or a generated id is used. An unknown
// owner is registered on the spot.
func (h *Hub) resolveHello(ctx context.Context, hello wire.Hello) (workerID string, rejectReason string) {
	ownerID := strings.TrimSpace(hello.OwnerID)
	authToken := strings.TrimSpace(hello.AuthToken)

	workerID = strings.TrimSpace(hello.WorkerID)
	if workerID != "" && !utils.IsValidUUID(workerID) {
		log.Ctx(ctx).Warnf("replacing malformed worker id %q from hello", utils.TruncateString(workerID, 12))
		workerID = ""
	}
	if workerID == "" {
		workerID = uuid.NewString()
	}

	if ownerID == "" || authToken == "" {
		if !h.allowUnauthenticated {
			log.Ctx(ctx).Warnf("❌ rejecting unauthenticated hello (worker %s)", workerID)
			return "", "Authentication failed: owner_id and auth_token are required"
		}
		log.Ctx(ctx).Warnf("⚠️ worker %s connected without authentication", workerID)
		return workerID, ""
	}

	tokenMatches, err := h.models.UserAuth.Verify(ctx, ownerID, authToken)
	switch {
	case err == nil && tokenMatches:
		existing, getErr := h.models.Workers.GetByOwnerAndToken(ctx, ownerID, authToken)
		if getErr == nil {
			log.Ctx(ctx).Infof("✓ worker %s authenticated (owner: %s)", existing.ID, ownerID)
			return existing.ID, ""
		}
		if !errors.Is(getErr, data.ErrRecordNotFound) {
			log.Ctx(ctx).Errorf("looking up worker of owner %s: %v", ownerID, getErr)
			return "", "Authentication failed: internal error"
		}
		log.Ctx(ctx).Infof("✓ new worker %s registered (owner: %s)", workerID, ownerID)
		return workerID, ""

	case err == nil:
		log.Ctx(ctx).Warnf("❌ authentication failed for owner %s (wrong token)", ownerID)
		return "", "Authentication failed: Invalid password for this username"

	case errors.Is(err, data.ErrRecordNotFound):
		// brand-new owner: the worker upsert after accept stores the pair
		log.Ctx(ctx).Infof("✓ new owner %s registered with worker %s", ownerID, workerID)
		return workerID, ""

	default:
		log.Ctx(ctx).Errorf("verifying auth of owner %s: %v", ownerID, err)
		return "", "Authentication failed: internal error"
	}
}

func (h *Hub) countSession(ctx context.Context, event monitor.SessionEvent) {
	if h.monitorService == nil {
		return
	}
	labels := monitor.SessionLabels{Event: event}
	if err := h.monitorService.MonitorCounters(monitor.WorkerSessionsCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("Error trying to monitor worker session counter: %s", err)
	}
}
