package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const defaultDataDir = ".encounters"

// decodeDuration parses duration strings (1s,1m,1h,etc.) into a real time.Duration type.
func decodeDuration() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, target reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || target != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		value, _ := data.(string)

		duration, errDuration := time.ParseDuration(value)
		if errDuration != nil {
			return nil, errors.Join(errDuration, fmt.Errorf("%w: %s", ErrDecodeDuration, target.String()))
		}

		return duration, nil
	}
}

func setDefaultConfigValues(reader *viper.Viper) {
	dataDir := defaultDataDir

	if home, errHomeDir := homedir.Dir(); errHomeDir == nil {
		reader.AddConfigPath(home)
		dataDir = filepath.Join(home, defaultDataDir)
	}

	reader.AddConfigPath(".")
	reader.SetConfigName("encounters")
	reader.SetConfigType("yml")
	reader.SetEnvPrefix("encounters")
	reader.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	reader.AutomaticEnv()

	defaultConfig := map[string]any{
		"general.mode":                ReleaseMode,
		"general.sentry_dsn":          "",
		"database.dir":                dataDir,
		"database.file":               "encounters.db",
		"database.busy_timeout":       5000,
		"database.log_queries":        false,
		"http.host":                   "127.0.0.1",
		"http.port":                   6007,
		"http.cors_origins":           []string{},
		"http.static_path":            "",
		"http.prometheus_enabled":     false,
		"http.pprof_enabled":          false,
		"logging.level":               "info",
		"logging.file":                "",
		"logging.http_enabled":        false,
		"maintenance.vacuum_interval": "5m",
		"maintenance.queue_size":      8,
	}

	for configKey, value := range defaultConfig {
		reader.SetDefault(configKey, value)
	}
}
