package cmd

import (
	"context"
	"go/types"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
	"github.com/stellar/go/support/config"
	"github.com/stellar/go/support/log"

	cmdUtils "github.com/gridx-network/gridx-coordinator/cmd/utils"
	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/internal/crashtracker"
	"github.com/gridx-network/gridx-coordinator/internal/credits"
	"github.com/gridx-network/gridx-coordinator/internal/data"
	"github.com/gridx-network/gridx-coordinator/internal/dispatch"
	"github.com/gridx-network/gridx-coordinator/internal/monitor"
	"github.com/gridx-network/gridx-coordinator/internal/registry"
	"github.com/gridx-network/gridx-coordinator/internal/scheduler"
	"github.com/gridx-network/gridx-coordinator/internal/scheduler/jobs"
	"github.com/gridx-network/gridx-coordinator/internal/serve"
	"github.com/gridx-network/gridx-coordinator/internal/session"
)

type ServeCommand struct{}

type ServerServiceInterface interface {
	StartServe(opts serve.ServeOptions, httpServer serve.HTTPServerInterface)
	StartWSServe(opts serve.WSServeOptions, httpServer serve.HTTPServerInterface)
	StartMetricsServe(opts serve.MetricsServeOptions, httpServer serve.HTTPServerInterface)
	GetSchedulerJobRegistrars(ctx context.Context, serveOpts serve.ServeOptions, watchdogOpts jobs.StuckJobsWatchdogJobOptions) ([]scheduler.SchedulerJobRegisterOption, error)
}

type ServerService struct{}

var _ ServerServiceInterface = (*ServerService)(nil)

func (s *ServerService) StartServe(opts serve.ServeOptions, httpServer serve.HTTPServerInterface) {
	err := serve.Serve(opts, httpServer)
	if err != nil {
		log.Fatalf("Error starting server: %s", err.Error())
	}
}

func (s *ServerService) StartWSServe(opts serve.WSServeOptions, httpServer serve.HTTPServerInterface) {
	err := serve.WSServe(opts, httpServer)
	if err != nil {
		log.Fatalf("Error starting worker channel server: %s", err.Error())
	}
}

func (s *ServerService) StartMetricsServe(opts serve.MetricsServeOptions, httpServer serve.HTTPServerInterface) {
	err := serve.MetricsServe(opts, httpServer)
	if err != nil {
		log.Fatalf("Error starting metrics server: %s", err.Error())
	}
}

func (s *ServerService) GetSchedulerJobRegistrars(ctx context.Context, serveOpts serve.ServeOptions, watchdogOpts jobs.StuckJobsWatchdogJobOptions) ([]scheduler.SchedulerJobRegisterOption, error) {
	watchdogOpts.Models = serveOpts.Models
	watchdogOpts.Registry = serveOpts.Registry
	watchdogOpts.Dispatcher = serveOpts.Dispatcher

	return []scheduler.SchedulerJobRegisterOption{
		scheduler.WithStuckJobsWatchdogJobOption(watchdogOpts),
		scheduler.WithQueueStatsJobOption(serveOpts.Queue, serveOpts.Registry),
	}, nil
}

func (c *ServeCommand) Command(serverService ServerServiceInterface, monitorService monitor.MonitorServiceInterface) *cobra.Command {
	serveOpts := serve.ServeOptions{}
	wsServeOpts := serve.WSServeOptions{}
	metricsServeOpts := serve.MetricsServeOptions{}
	crashTrackerOptions := crashtracker.CrashTrackerOptions{}
	creditsConfig := credits.Config{}
	watchdogOptions := jobs.StuckJobsWatchdogJobOptions{}
	dbPoolOptions := cmdUtils.DBPoolOptions{}
	allowUnauthWorkers := false

	configOpts := config.ConfigOptions{
		{
			Name:        "http-port",
			EnvVar:      "GRIDX_HTTP_PORT",
			Usage:       "Port where the job API server will be listening on",
			OptType:     types.Int,
			ConfigKey:   &serveOpts.Port,
			FlagDefault: 8081,
			Required:    true,
		},
		{
			Name:        "ws-port",
			EnvVar:      "GRIDX_WS_PORT",
			Usage:       "Port where the worker channel server will be listening on",
			OptType:     types.Int,
			ConfigKey:   &wsServeOpts.Port,
			FlagDefault: 8080,
			Required:    true,
		},
		{
			Name:        "metrics-port",
			EnvVar:      "GRIDX_METRICS_PORT",
			Usage:       "Port where the metrics server will be listening on",
			OptType:     types.Int,
			ConfigKey:   &metricsServeOpts.Port,
			FlagDefault: 8082,
			Required:    true,
		},
		{
			Name:           "metrics-type",
			EnvVar:         "GRIDX_METRICS_TYPE",
			Usage:          `Metric monitor type. Options: "PROMETHEUS"`,
			OptType:        types.String,
			CustomSetValue: cmdUtils.SetConfigOptionMetricType,
			ConfigKey:      &metricsServeOpts.MetricType,
			FlagDefault:    "PROMETHEUS",
			Required:       true,
		},
		{
			Name:           "cors-allowed-origins",
			EnvVar:         "GRIDX_CORS_ALLOWED_ORIGINS",
			Usage:          `Cors URLs that are allowed to access the endpoints, separated by ","`,
			OptType:        types.String,
			CustomSetValue: cmdUtils.SetCorsAllowedOrigins,
			ConfigKey:      &serveOpts.CorsAllowedOrigins,
			FlagDefault:    "*",
			Required:       true,
		},
		{
			Name:        "allow-unauth-workers",
			EnvVar:      "GRIDX_ALLOW_UNAUTH_WORKERS",
			Usage:       "Accept legacy hello frames carrying no owner id and no auth token. Only meant for closed lab networks.",
			OptType:     types.Bool,
			ConfigKey:   &allowUnauthWorkers,
			FlagDefault: false,
			Required:    false,
		},
		cmdUtils.CrashTrackerTypeConfigOption(&crashTrackerOptions.CrashTrackerType),
	}
	configOpts = append(configOpts, cmdUtils.CreditEngineConfigOptions(&creditsConfig)...)
	configOpts = append(configOpts, cmdUtils.WatchdogConfigOptions(&watchdogOptions)...)
	configOpts = append(configOpts, cmdUtils.DBPoolConfigOptions(&dbPoolOptions)...)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Grid-X Coordinator",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			chainedPersistentPreRun(cmd, args)

			configOpts.Require()
			err := configOpts.SetValues()
			if err != nil {
				log.Fatalf("Error setting values of config options: %s", err.Error())
			}

			metricOptions := monitor.MetricOptions{
				MetricType:  metricsServeOpts.MetricType,
				Environment: globalOptions.Environment,
			}
			err = monitorService.Start(metricOptions)
			if err != nil {
				log.Fatalf("Error creating monitor service: %s", err.Error())
			}

			globalOptions.PopulateCrashTrackerOptions(&crashTrackerOptions)

			serveOpts.Environment = globalOptions.Environment
			serveOpts.GitCommit = globalOptions.GitCommit
			serveOpts.Version = globalOptions.Version
			serveOpts.MonitorService = monitorService

			wsServeOpts.Environment = globalOptions.Environment

			metricsServeOpts.MonitorService = monitorService
			metricsServeOpts.Environment = globalOptions.Environment
		},
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()

			crashTrackerClient, err := crashtracker.GetClient(ctx, crashTrackerOptions)
			if err != nil {
				log.Ctx(ctx).Fatalf("error creating crash tracker client: %s", err.Error())
			}
			serveOpts.CrashTrackerClient = crashTrackerClient

			// Prepare the database file and run pending migrations
			if err = db.EnsureDirFor(globalOptions.DatabasePath); err != nil {
				log.Ctx(ctx).Fatalf("error preparing database directory: %v", err)
			}
			dsn := db.SQLiteDSN(globalOptions.DatabasePath)
			numMigrationsRun, err := db.Migrate(dsn, migrate.Up, 0)
			if err != nil {
				log.Ctx(ctx).Fatalf("error migrating database: %v", err)
			}
			if numMigrationsRun > 0 {
				log.Ctx(ctx).Infof("Successfully applied %d migrations.", numMigrationsRun)
			}

			// Open the connection pool shared by every server
			poolConfig := db.DBPoolConfig{
				MaxOpenConns:    dbPoolOptions.DBMaxOpenConns,
				MaxIdleConns:    dbPoolOptions.DBMaxIdleConns,
				ConnMaxIdleTime: time.Duration(dbPoolOptions.DBConnMaxIdleTimeSeconds) * time.Second,
				ConnMaxLifetime: time.Duration(dbPoolOptions.DBConnMaxLifetimeSeconds) * time.Second,
			}
			basePool, err := db.OpenDBConnectionPoolWithConfig(dsn, poolConfig)
			if err != nil {
				log.Ctx(ctx).Fatalf("error creating DB connection pool: %v", err)
			}
			dbConnectionPool, err := db.NewDBConnectionPoolWithMetrics(ctx, basePool, monitorService)
			if err != nil {
				log.Ctx(ctx).Fatalf("error creating DB connection pool with metrics: %v", err)
			}
			serveOpts.DBConnectionPool = dbConnectionPool

			models, err := data.NewModels(dbConnectionPool)
			if err != nil {
				log.Ctx(ctx).Fatalf("error creating models: %v", err)
			}
			serveOpts.Models = models

			creditsEngine, err := credits.NewEngine(creditsConfig, models)
			if err != nil {
				log.Ctx(ctx).Fatalf("error creating credits engine: %v", err)
			}
			serveOpts.CreditsEngine = creditsEngine

			// Dispatch plumbing shared by the API, the worker sessions and
			// the watchdog.
			workerRegistry := registry.New()
			queue := dispatch.NewQueue()
			dispatcher := dispatch.NewDispatcher(queue, workerRegistry, models, creditsEngine, monitorService)
			serveOpts.Registry = workerRegistry
			serveOpts.Queue = queue
			serveOpts.Dispatcher = dispatcher

			// The dispatch queue is memory-only: reload the ids of jobs that
			// were still queued when the previous process exited.
			queuedIDs, err := models.Jobs.ListQueuedIDs(ctx)
			if err != nil {
				log.Ctx(ctx).Fatalf("error reloading queued jobs: %v", err)
			}
			for _, jobID := range queuedIDs {
				queue.Push(jobID)
			}
			if len(queuedIDs) > 0 {
				log.Ctx(ctx).Infof("Reloaded %d queued jobs into the dispatch queue", len(queuedIDs))
			}

			wsServeOpts.Hub = session.NewHub(session.HubOptions{
				Registry:             workerRegistry,
				Dispatcher:           dispatcher,
				Models:               models,
				MonitorService:       monitorService,
				AllowUnauthenticated: allowUnauthWorkers,
			})

			go dispatcher.Run(ctx)

			log.Ctx(ctx).Info("Starting Scheduler Service...")
			schedulerJobRegistrars, err := serverService.GetSchedulerJobRegistrars(ctx, serveOpts, watchdogOptions)
			if err != nil {
				log.Ctx(ctx).Fatalf("Error getting scheduler job registrars: %v", err)
			}
			go scheduler.StartScheduler(crashTrackerClient.Clone(), schedulerJobRegistrars...)

			log.Ctx(ctx).Info("Starting Metrics Server...")
			go serverService.StartMetricsServe(metricsServeOpts, &serve.HTTPServer{})

			log.Ctx(ctx).Info("Starting Worker Channel Server...")
			go serverService.StartWSServe(wsServeOpts, &serve.HTTPServer{})

			// Blocks until shutdown, the other servers ride on its lifecycle.
			log.Ctx(ctx).Info("Starting Coordinator API Server...")
			serverService.StartServe(serveOpts, &serve.HTTPServer{})
		},
	}
	err := configOpts.Init(cmd)
	if err != nil {
		log.Fatalf("Error initializing a config option: %s", err.Error())
	}

	return cmd
}
