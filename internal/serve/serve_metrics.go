package serve

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	supporthttp "github.com/stellar/go/support/http"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/internal/monitor"
)

// MetricsServeOptions configures the standalone metrics listener. It gets its
// own port so operators can keep /metrics off the public API surface.
type MetricsServeOptions struct {
	Port        int
	Environment string

	MonitorService monitor.MonitorServiceInterface
	MetricType     monitor.MetricType
}

// MetricsServe blocks serving /metrics until the process shuts down.
func MetricsServe(opts MetricsServeOptions, httpServer HTTPServerInterface) error {
	handler, err := metricsHandler(opts.MonitorService)
	if err != nil {
		return fmt.Errorf("building metrics handler: %w", err)
	}

	metricsAddr := fmt.Sprintf(":%d", opts.Port)
	httpServer.Run(supporthttp.Config{
		ListenAddr:   metricsAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  2 * time.Minute,
		OnStarting: func() {
			log.Infof("Starting %s Metrics Server", opts.MetricType)
			log.Infof("Listening on %s", metricsAddr)
		},
		OnStopping: func() {
			log.Infof("Stopping %s Metrics Server", opts.MetricType)
		},
	})

	return nil
}

func metricsHandler(monitorService monitor.MonitorServiceInterface) (http.Handler, error) {
	metricHttpHandler, err := monitorService.GetMetricHttpHandler()
	if err != nil {
		return nil, fmt.Errorf("getting metric http handler: %w", err)
	}

	mux := chi.NewMux()
	mux.Handle("/metrics", metricHttpHandler)
	return mux, nil
}
