package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/raidmeter/encounters/internal/config"
	"github.com/raidmeter/encounters/internal/database"
	"github.com/raidmeter/encounters/internal/encounter"
	"github.com/raidmeter/encounters/internal/httphelper"
	"github.com/raidmeter/encounters/internal/metrics"
	"github.com/raidmeter/encounters/pkg/log"
	"golang.org/x/sync/errgroup"
)

var (
	BuildVersion = "master" //nolint:gochecknoglobals
	BuildCommit  = ""       //nolint:gochecknoglobals
	BuildDate    = ""       //nolint:gochecknoglobals
)

// App holds the wired components shared by every command.
type App struct {
	staticConfig config.Static
	database     database.Database
	registry     *prometheus.Registry
	maintenance  *encounter.Maintenance
	encounters   encounter.Encounters
	sentry       *sentry.Client
	logCloser    func()
}

func NewApp() (*App, error) {
	staticConfig, errStatic := config.ReadStaticConfig(cfgFile)
	if errStatic != nil {
		slog.Error("Failed to read static config", log.ErrAttr(errStatic))

		return nil, errStatic
	}

	return &App{staticConfig: staticConfig, registry: prometheus.NewRegistry()}, nil
}

// Init configures logging and opens the store. With autoMigrate the schema is brought up to date as
// part of opening and any failure there is fatal.
func (a *App) Init(ctx context.Context, autoMigrate bool) error {
	conf := a.staticConfig

	a.setupSentry()
	a.logCloser = log.MustCreateLogger(ctx, conf.Logging.File, log.ParseLevel(conf.Logging.Level), a.sentry != nil, BuildVersion)

	slog.Info("Starting encounters...",
		slog.String("version", BuildVersion),
		slog.String("commit", BuildCommit),
		slog.String("date", BuildDate))

	dbConn := database.New(database.Opts{
		Dir:         conf.Database.Dir,
		File:        conf.Database.File,
		BusyTimeout: conf.Database.BusyTimeout,
		AutoMigrate: autoMigrate,
		LogQueries:  conf.Database.LogQueries,
	})
	if errConnect := dbConn.Connect(ctx); errConnect != nil {
		slog.Error("Cannot initialize database", log.ErrAttr(errConnect))

		return errConnect
	}

	a.database = dbConn

	engineMetrics, errMetrics := metrics.New(a.registry)
	if errMetrics != nil {
		return errMetrics
	}

	repository := encounter.NewRepository(a.database)
	a.maintenance = encounter.NewMaintenance(repository, conf.Maintenance.QueueSize, conf.Maintenance.VacuumInterval, engineMetrics)
	a.encounters = encounter.NewEncounters(repository, a.maintenance, engineMetrics)

	return nil
}

func (a *App) setupSentry() {
	if a.staticConfig.General.SentryDSN == "" {
		return
	}

	sentryClient, err := log.NewSentryClient(a.staticConfig.General.SentryDSN, 0.25, BuildVersion, a.staticConfig.General.Mode.String())
	if err != nil {
		slog.Error("Failed to setup sentry client", log.ErrAttr(err))

		return
	}

	a.sentry = sentryClient
}

func (a *App) createRouter() (http.Handler, error) {
	conf := a.staticConfig

	router, errRouter := httphelper.CreateRouter(httphelper.RouterOpts{
		HTTPLogEnabled:    conf.Logging.HTTPEnabled,
		LogLevel:          log.ParseLevel(conf.Logging.Level),
		Mode:              conf.General.Mode.String(),
		SentryDSN:         conf.General.SentryDSN,
		Version:           BuildVersion,
		PProfEnabled:      conf.HTTP.PProfEnabled,
		PrometheusEnabled: conf.HTTP.PrometheusEnabled,
		StaticPath:        conf.HTTP.StaticPath,
		CORSOrigins:       conf.HTTP.CORSOrigins,
	})
	if errRouter != nil {
		return nil, errRouter
	}

	encounter.NewEncountersHandler(router, a.encounters)

	if conf.HTTP.PrometheusEnabled {
		metrics.NewHandler(router, a.registry)
	}

	return router, nil
}

// Serve runs the HTTP service and the maintenance worker until the process is signalled.
func (a *App) Serve(rootCtx context.Context) error {
	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, errRouter := a.createRouter()
	if errRouter != nil {
		slog.Error("Could not setup router", log.ErrAttr(errRouter))

		return errRouter
	}

	httpServer := httphelper.NewServer(a.staticConfig.HTTP.Addr(), router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.maintenance.Start(groupCtx)

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		slog.Info("Shutting down HTTP service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx) //nolint:contextcheck
	})

	group.Go(func() error {
		slog.Info("Starting HTTP server", slog.String("address", a.staticConfig.HTTP.Addr()))

		if errServe := httpServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			slog.Error("HTTP server returned error", log.ErrAttr(errServe))

			return errServe
		}

		return nil
	})

	errGroup := group.Wait()

	slog.Info("Exiting...")

	return errGroup
}

func (a *App) Close() {
	if a.database != nil {
		if errClose := a.database.Close(); errClose != nil {
			slog.Error("Failed to close database cleanly", log.ErrAttr(errClose))
		}
	}

	if a.sentry != nil {
		a.sentry.Flush(2 * time.Second)
	}

	if a.logCloser != nil {
		a.logCloser()
	}
}

// withApp builds and initializes the App for a single command run.
func withApp(ctx context.Context, autoMigrate bool, run func(app *App) error) error {
	app, errApp := NewApp()
	if errApp != nil {
		return errApp
	}

	defer app.Close()

	if errInit := app.Init(ctx, autoMigrate); errInit != nil {
		return errInit
	}

	return run(app)
}
