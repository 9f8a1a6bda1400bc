// Package config resolves client settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the platform endpoints and the reconnect policy.
const (
	DefaultTrackingURL          = "ws://localhost:8084/ws/gps"
	DefaultTicketURL            = "http://localhost:8083"
	DefaultLokiURL              = "http://localhost:3100"
	DefaultReconnectBaseDelay   = time.Second
	DefaultReconnectMaxAttempts = 5
	DefaultFlushInterval        = 10 * time.Second
	DefaultBODSDatasetID        = "699"
)

// Settings is the resolved client configuration.
type Settings struct {
	TrackingURL          string
	TicketURL            string
	AuthToken            string
	ReconnectBaseDelay   time.Duration
	ReconnectMaxAttempts int

	LokiURL       string
	LokiUser      string
	LokiPassword  string
	FlushInterval time.Duration

	BODSAPIKey    string
	BODSDatasetID string
}

// LoadEnvFile loads variables from envFile (default ".env") without
// overriding ones already set. A missing file is not an error.
func LoadEnvFile(envFile string) (bool, error) {
	if envFile == "" {
		envFile = ".env"
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found", "path", envFile)
		return false, nil
	}

	if err := godotenv.Load(envFile); err != nil {
		return false, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	slog.Debug("Loaded .env file", "path", envFile)
	return true, nil
}

// Load reads envFile (if present) and resolves Settings from URBANMOVE_* variables.
func Load(envFile string) (Settings, error) {
	if _, err := LoadEnvFile(envFile); err != nil {
		return Settings{}, err
	}

	s := Settings{
		TrackingURL:   GetEnv("URBANMOVE_TRACKING_URL", DefaultTrackingURL),
		TicketURL:     GetEnv("URBANMOVE_TICKET_URL", DefaultTicketURL),
		AuthToken:     GetEnv("URBANMOVE_AUTH_TOKEN", ""),
		LokiURL:       GetEnv("URBANMOVE_LOKI_URL", DefaultLokiURL),
		LokiUser:      GetEnv("URBANMOVE_LOKI_USER", ""),
		LokiPassword:  GetEnv("URBANMOVE_LOKI_PASSWORD", ""),
		BODSAPIKey:    GetEnv("URBANMOVE_BODS_API_KEY", ""),
		BODSDatasetID: GetEnv("URBANMOVE_BODS_DATASET_ID", DefaultBODSDatasetID),
	}

	var err error
	if s.ReconnectBaseDelay, err = durationEnv("URBANMOVE_RECONNECT_BASE_DELAY", DefaultReconnectBaseDelay); err != nil {
		return Settings{}, err
	}
	if s.FlushInterval, err = durationEnv("URBANMOVE_FLUSH_INTERVAL", DefaultFlushInterval); err != nil {
		return Settings{}, err
	}
	if s.ReconnectMaxAttempts, err = intEnv("URBANMOVE_RECONNECT_MAX_ATTEMPTS", DefaultReconnectMaxAttempts); err != nil {
		return Settings{}, err
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the tracking client cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if s.TrackingURL == "" {
		errs = append(errs, errors.New("tracking URL is required"))
	}
	if s.ReconnectBaseDelay <= 0 {
		errs = append(errs, errors.New("reconnect base delay must be positive"))
	}
	if s.ReconnectMaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect max attempts must not be negative"))
	}
	if s.FlushInterval <= 0 {
		errs = append(errs, errors.New("flush interval must be positive"))
	}
	return errors.Join(errs...)
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
