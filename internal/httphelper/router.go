package httphelper

import (
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/Depado/ginprom"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/raidmeter/encounters/pkg/log"
	sloggin "github.com/samber/slog-gin"
)

var ErrStaticPathError = errors.New("could not load static path")

type RouterOpts struct {
	HTTPLogEnabled    bool
	LogLevel          log.Level
	Mode              string
	SentryDSN         string
	Version           string
	PProfEnabled      bool
	PrometheusEnabled bool
	StaticPath        string
	CORSOrigins       []string
}

// CreateRouter constructs a new router using gin.Engine with the provided RouterOpts.
func CreateRouter(opts RouterOpts) (*gin.Engine, error) {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(recoveryHandler())
	engine.Use(errorHandler())

	if opts.HTTPLogEnabled {
		useSloggin(engine, opts.LogLevel)
	}

	if opts.SentryDSN != "" {
		useSentry(engine, opts.Version)
	}

	if opts.PProfEnabled {
		pprof.Register(engine)
	}

	useCors(engine, opts.CORSOrigins, opts.Mode == gin.DebugMode)

	if opts.PrometheusEnabled {
		usePrometheus(engine)
	}

	if opts.StaticPath != "" {
		if err := useStatic(engine, opts.StaticPath); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

func useCors(engine *gin.Engine, origins []string, devMode bool) {
	engine.Use(useSecure(devMode))

	if len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.ExposeHeaders = append(corsConfig.ExposeHeaders, "Encounters-AppVersion")
		corsConfig.AllowWildcard = true

		engine.Use(cors.New(corsConfig))
	} else {
		slog.Debug("No cors origins defined, disabling")
	}
}

func usePrometheus(engine *gin.Engine) {
	prom := ginprom.New(func(prom *ginprom.Prometheus) {
		prom.Namespace = "encounters"
		prom.Subsystem = "http"
	})
	engine.Use(prom.Instrument())
}

// useStatic serves the display layer bundle. API routes registered later take precedence since
// the static middleware only answers requests for files that exist.
func useStatic(engine *gin.Engine, staticPath string) error {
	absStaticPath, errStaticPath := filepath.Abs(staticPath)
	if errStaticPath != nil {
		return errors.Join(errStaticPath, ErrStaticPathError)
	}

	engine.Use(static.Serve("/", static.LocalFile(absStaticPath, false)))

	return nil
}

func useSloggin(engine *gin.Engine, level log.Level) {
	logConfig := sloggin.Config{
		DefaultLevel: log.ToSlogLevel(level),
	}

	engine.Use(sloggin.NewWithConfig(slog.Default(), logConfig))
}
