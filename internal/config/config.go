// Package config loads the static process configuration from encounters.yml and ENCOUNTERS_ prefixed
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

var (
	ErrReadConfig     = errors.New("failed to read config file")
	ErrFormatConfig   = errors.New("config file format invalid")
	ErrDecodeDuration = errors.New("failed to decode duration")
	ErrInvalidConfig  = errors.New("invalid config value")
)

type RunMode string

const (
	ReleaseMode RunMode = "release"
	DebugMode   RunMode = "debug"
	TestMode    RunMode = "test"
)

func (rm RunMode) String() string {
	return string(rm)
}

type General struct {
	Mode      RunMode `mapstructure:"mode"`
	SentryDSN string  `mapstructure:"sentry_dsn"`
}

type Database struct {
	// Dir holds the store file. It is injected into the store at construction.
	Dir         string `mapstructure:"dir"`
	File        string `mapstructure:"file"`
	BusyTimeout int    `mapstructure:"busy_timeout"`
	LogQueries  bool   `mapstructure:"log_queries"`
}

type HTTP struct {
	Host              string   `mapstructure:"host"`
	Port              int      `mapstructure:"port"`
	CORSOrigins       []string `mapstructure:"cors_origins"`
	StaticPath        string   `mapstructure:"static_path"`
	PrometheusEnabled bool     `mapstructure:"prometheus_enabled"`
	PProfEnabled      bool     `mapstructure:"pprof_enabled"`
}

// Addr returns the address in host:port format.
func (h HTTP) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

type Logging struct {
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	HTTPEnabled bool   `mapstructure:"http_enabled"`
}

type Maintenance struct {
	VacuumInterval time.Duration `mapstructure:"vacuum_interval"`
	QueueSize      int           `mapstructure:"queue_size"`
}

type Static struct {
	General     General     `mapstructure:"general"`
	Database    Database    `mapstructure:"database"`
	HTTP        HTTP        `mapstructure:"http"`
	Logging     Logging     `mapstructure:"logging"`
	Maintenance Maintenance `mapstructure:"maintenance"`
}

// ReadStaticConfig loads the config file, falling back to defaults when none exists. An explicit
// configFile must exist.
func ReadStaticConfig(configFile string) (Static, error) {
	reader := viper.New()
	setDefaultConfigValues(reader)

	if configFile != "" {
		reader.SetConfigFile(configFile)
	}

	var config Static

	if errReadConfig := reader.ReadInConfig(); errReadConfig != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(errReadConfig, &notFound) {
			return config, errors.Join(errReadConfig, ErrReadConfig)
		}
	}

	if errUnmarshal := reader.Unmarshal(&config, viper.DecodeHook(mapstructure.DecodeHookFunc(decodeDuration()))); errUnmarshal != nil {
		return config, errors.Join(errUnmarshal, ErrFormatConfig)
	}

	if config.Database.Dir == "" {
		return config, fmt.Errorf("%w: database.dir", ErrInvalidConfig)
	}

	return config, nil
}
