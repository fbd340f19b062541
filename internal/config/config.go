package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	BackendURL  string // BEACON_BACKEND_URL (required): SOS backend base URL
	AuthToken   string // BEACON_AUTH_TOKEN (optional, opaque bearer credential)
	DatabaseURL string // BEACON_DATABASE_URL (required): local session store
	NATSURL     string // BEACON_NATS_URL (optional, empty = no push channel, poll only)
	ControlAddr string // BEACON_CONTROL_ADDR (default "127.0.0.1:7320")

	// Engine timing
	PollInterval      time.Duration // BEACON_POLL_INTERVAL (default 10s)
	HeartbeatInterval time.Duration // BEACON_HEARTBEAT_INTERVAL (default 60s)
	FixWindow         time.Duration // BEACON_FIX_WINDOW (default 30s): max fix age at activation

	// Location source
	FixFile string // BEACON_FIX_FILE (optional): JSON file holding the latest position fix

	// Alert command hooks
	AlertStartCmd string // BEACON_ALERT_START_CMD (optional)
	AlertStopCmd  string // BEACON_ALERT_STOP_CMD (optional)

	// History archive
	ArchiveInterval   time.Duration // BEACON_ARCHIVE_INTERVAL (default 3m; 0 = disabled)
	ArchiveS3Bucket   string        // BEACON_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // BEACON_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // BEACON_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // BEACON_ARCHIVE_S3_KEY (default "beacon/sessions.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		BackendURL:        os.Getenv("BEACON_BACKEND_URL"),
		AuthToken:         os.Getenv("BEACON_AUTH_TOKEN"),
		DatabaseURL:       os.Getenv("BEACON_DATABASE_URL"),
		NATSURL:           os.Getenv("BEACON_NATS_URL"),
		ControlAddr:       envOrDefault("BEACON_CONTROL_ADDR", "127.0.0.1:7320"),
		FixFile:           os.Getenv("BEACON_FIX_FILE"),
		AlertStartCmd:     os.Getenv("BEACON_ALERT_START_CMD"),
		AlertStopCmd:      os.Getenv("BEACON_ALERT_STOP_CMD"),
		ArchiveS3Bucket:   os.Getenv("BEACON_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("BEACON_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("BEACON_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Key:      envOrDefault("BEACON_ARCHIVE_S3_KEY", "beacon/sessions.jsonl"),
	}
	if c.BackendURL == "" {
		return nil, fmt.Errorf("BEACON_BACKEND_URL is required")
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("BEACON_DATABASE_URL is required")
	}

	var err error
	if c.PollInterval, err = durationEnv("BEACON_POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if c.HeartbeatInterval, err = durationEnv("BEACON_HEARTBEAT_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if c.FixWindow, err = durationEnv("BEACON_FIX_WINDOW", 30*time.Second); err != nil {
		return nil, err
	}
	if c.ArchiveInterval, err = durationEnv("BEACON_ARCHIVE_INTERVAL", 3*time.Minute); err != nil {
		return nil, err
	}

	return c, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
