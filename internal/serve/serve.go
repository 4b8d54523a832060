package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	supporthttp "github.com/stellar/go/support/http"
	"github.com/stellar/go/support/log"

	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/internal/crashtracker"
	"github.com/gridx-network/gridx-coordinator/internal/credits"
	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/dispatch"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/registry"
	"github.com/gridx-network/gridx-coordinator/internal/serve/httperror"
	"github.com/gridx-network/gridx-coordinator/internal/serve/httphandler"
	"github.com/gridx-network/gridx-coordinator/internal/serve/middleware"
)

// Submission rate limit per client IP. Generous for legitimate clients, but a
// single runaway loop cannot flood the queue.
const (
	SubmitRateLimit       = 30
	SubmitRateLimitWindow = time.Minute
)

type HTTPServerInterface interface {
	Run(conf supporthttp.Config)
}

type HTTPServer struct{}

func (h *HTTPServer) Run(conf supporthttp.Config) {
	supporthttp.Run(conf)
}

type ServeOptions struct {
	Environment        string
	GitCommit          string
	Port               int
	Version            string
	StartedAt          time.Time
	MonitorService     monitor.MonitorServiceInterface
	DBConnectionPool   db.DBConnectionPool
	Models             *data.Models
	CreditsEngine      *credits.Engine
	Registry           *registry.Registry
	Queue              *dispatch.Queue
	Dispatcher         *dispatch.Dispatcher
	CorsAllowedOrigins []string
	CrashTrackerClient crashtracker.CrashTrackerClient
}

// SetupDependencies wires the API server into the dependencies it shares with
// the channel listener and the scheduler. The caller builds the pool, models,
// queue and dispatcher, because all three servers operate on the same
// instances.
func (opts *ServeOptions) SetupDependencies() error {
	// Set crash tracker LogAndReportErrors as DefaultReportErrorFunc
	httperror.SetDefaultReportErrorFunc(opts.CrashTrackerClient.LogAndReportErrors)

	if opts.Models == nil {
		return fmt.Errorf("data models cannot be nil for Serve")
	}
	if opts.Queue == nil || opts.Dispatcher == nil || opts.Registry == nil {
		return fmt.Errorf("dispatch dependencies cannot be nil for Serve")
	}
	if opts.CreditsEngine == nil {
		return fmt.Errorf("credits engine cannot be nil for Serve")
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}

	funcMetrics := []struct {
		tag   monitor.MetricTag
		help  string
		value func() float64
	}{
		{monitor.QueueSizeTag, "Number of jobs waiting in the dispatch queue", func() float64 { return float64(opts.Queue.Len()) }},
		{monitor.ConnectedWorkersTag, "Number of live worker sessions", func() float64 { return float64(opts.Registry.Count()) }},
	}
	for _, fm := range funcMetrics {
		registerErr := opts.MonitorService.RegisterFunctionMetric(monitor.FuncGaugeType, monitor.FuncMetricOptions{
			Namespace: monitor.DefaultNamespace, Subservice: string(monitor.DispatchSubservice), Name: string(fm.tag),
			Help:     fm.help,
			Function: fm.value,
		})
		if registerErr != nil {
			return fmt.Errorf("error registering function metric %s: %w", fm.tag, registerErr)
		}
	}

	return nil
}

func Serve(opts ServeOptions, httpServer HTTPServerInterface) error {
	err := opts.SetupDependencies()
	if err != nil {
		return fmt.Errorf("error starting dependencies: %w", err)
	}

	defer opts.CrashTrackerClient.FlushEvents(2 * time.Second)
	defer opts.CrashTrackerClient.Recover()

	listenAddr := fmt.Sprintf(":%d", opts.Port)
	serverConfig := supporthttp.Config{
		ListenAddr:          listenAddr,
		Handler:             handleHTTP(opts),
		TCPKeepAlive:        time.Minute * 3,
		ShutdownGracePeriod: time.Second * 50,
		ReadTimeout:         time.Second * 5,
		WriteTimeout:        time.Second * 35,
		IdleTimeout:         time.Minute * 2,
		OnStarting: func() {
			log.Info("Starting Grid-X Coordinator API Server")
			log.Infof("Listening on %s", listenAddr)
		},
		OnStopping: func() {
			log.Info("Closing the database connection...")
			if err := db.CloseConnectionPoolIfNeeded(context.Background(), opts.DBConnectionPool); err != nil {
				log.Errorf("error closing database connection: %s", err.Error())
			}

			log.Info("Stopping Grid-X Coordinator API Server")
		},
	}
	httpServer.Run(serverConfig)
	return nil
}

func handleHTTP(o ServeOptions) *chi.Mux {
	mux := chi.NewMux()

	// Middleware
	mux.Use(middleware.CorsMiddleware(o.CorsAllowedOrigins))
	mux.Use(chimiddleware.RequestID)
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.RecoverHandler)
	mux.Use(middleware.MetricsRequestHandler(o.MonitorService))

	mux.Route("/jobs", func(r chi.Router) {
		jobsHandler := httphandler.JobsHandler{
			Models:         o.Models,
			Engine:         o.CreditsEngine,
			Queue:          o.Queue,
			Dispatcher:     o.Dispatcher,
			MonitorService: o.MonitorService,
		}
		r.With(middleware.RateLimitMiddleware(SubmitRateLimit, SubmitRateLimitWindow)).
			Post("/", jobsHandler.SubmitJob)
		r.Get("/", jobsHandler.GetJobs)
		r.Get("/{id}", jobsHandler.GetJob)
	})

	mux.Route("/workers", func(r chi.Router) {
		workersHandler := httphandler.WorkersHandler{Models: o.Models}
		r.Get("/", workersHandler.GetWorkers)
		r.Post("/register", workersHandler.RegisterWorker)
		r.Post("/heartbeat", workersHandler.HeartbeatByBody)
		r.Post("/{id}/heartbeat", workersHandler.HeartbeatByPath)
	})

	creditsHandler := httphandler.CreditsHandler{Engine: o.CreditsEngine}
	mux.Get("/credits/{user_id}", creditsHandler.GetCredits)

	mux.Get("/health", httphandler.HealthHandler{}.ServeHTTP)
	mux.Get("/status", httphandler.StatusHandler{
		Models:    o.Models,
		Queue:     o.Queue,
		Version:   o.Version,
		StartedAt: o.StartedAt,
	}.ServeHTTP)

	return mux
}
