package serve

import (
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	supporthttp "github.com/stellar/go/support/http"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/session"
)

// WSServeOptions configures the worker channel listener. It runs on its own
// port so operators can firewall the worker fleet separately from the public
// API.
type WSServeOptions struct {
	Port        int
	Environment string

	Hub *session.Hub
}

func WSServe(opts WSServeOptions, httpServer HTTPServerInterface) error {
	if opts.Hub == nil {
		return fmt.Errorf("session hub cannot be nil for WSServe")
	}

	wsAddr := fmt.Sprintf(":%d", opts.Port)
	wsServerConfig := supporthttp.Config{
		ListenAddr: wsAddr,
		Handler:    handleWSHttp(opts),
		// Timeouts cover only the upgrade handshake. Once the connection is
		// hijacked the session pumps manage their own deadlines.
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         2 * time.Minute,
		ShutdownGracePeriod: 10 * time.Second,
		OnStarting: func() {
			log.Info("Starting Grid-X Coordinator Worker Channel Server")
			log.Infof("Listening on %s", wsAddr)
		},
		OnStopping: func() {
			log.Info("Stopping Grid-X Coordinator Worker Channel Server")
		},
	}

	httpServer.Run(wsServerConfig)
	return nil
}

func handleWSHttp(opts WSServeOptions) *chi.Mux {
	mux := chi.NewMux()

	mux.Get("/ws/worker", opts.Hub.WorkerHandler())
	// Any other path gets an upgrade followed by an actionable close code, so
	// misconfigured workers fail loudly instead of hanging on a 404 page.
	mux.NotFound(opts.Hub.UnknownPathHandler())

	return mux
}
