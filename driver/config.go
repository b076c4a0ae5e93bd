package driver

import (
	"net/url"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvIngestAPI = "LOG_INGEST_API"
	EnvLogLevel  = "LOG_LEVEL"
)

const defaultIngestURL = "http://localhost:8080"

// Config holds the process-wide settings. It is a plain value; every new
// processor receives its own copy.
type Config struct {
	// IngestURL is the base URL of the log collector. Records are posted
	// to IngestURL + "/logs".
	IngestURL string

	// LogLevel is the plugin's own logging verbosity.
	LogLevel logrus.Level
}

// ConfigFromEnv builds a Config from the environment. Unset variables fall
// back to defaults; invalid values are startup errors.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		IngestURL: defaultIngestURL,
		LogLevel:  logrus.InfoLevel,
	}

	if v := os.Getenv(EnvIngestAPI); v != "" {
		if _, err := url.ParseRequestURI(v); err != nil {
			return Config{}, errors.Wrapf(err, "invalid %s %q", EnvIngestAPI, v)
		}
		cfg.IngestURL = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		lvl, err := logrus.ParseLevel(v)
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid %s %q", EnvLogLevel, v)
		}
		cfg.LogLevel = lvl
	}

	return cfg, nil
}
