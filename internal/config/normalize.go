package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeJobs()
	c.normalizeQueue()
	c.normalizeWorkers()
	c.normalizeConvert()
	c.normalizeStorage()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeJobs() {
	if c.Jobs.TTLSeconds <= 0 {
		c.Jobs.TTLSeconds = defaultJobTTLSeconds
	}
	if c.Jobs.SweepIntervalSeconds <= 0 {
		c.Jobs.SweepIntervalSeconds = defaultJobSweepInterval
	}
}

func (c *Config) normalizeQueue() {
	if c.Queue.AttemptCap <= 0 {
		c.Queue.AttemptCap = defaultAttemptCap
	}
	if c.Queue.BackoffBaseSeconds <= 0 {
		c.Queue.BackoffBaseSeconds = defaultBackoffBaseSeconds
	}
	if c.Queue.LeaseTTLSeconds <= 0 {
		c.Queue.LeaseTTLSeconds = defaultLeaseTTLSeconds
	}
	if c.Queue.HeartbeatIntervalSeconds <= 0 {
		c.Queue.HeartbeatIntervalSeconds = defaultHeartbeatInterval
	}
	if c.Queue.PollIntervalSeconds <= 0 {
		c.Queue.PollIntervalSeconds = defaultPollInterval
	}
	if c.Queue.CompletedRetentionSeconds <= 0 {
		c.Queue.CompletedRetentionSeconds = defaultCompletedRetention
	}
	if c.Queue.DeadRetentionSeconds <= 0 {
		c.Queue.DeadRetentionSeconds = defaultDeadRetention
	}
	if c.Queue.MaintenanceInterval <= 0 {
		c.Queue.MaintenanceInterval = defaultMaintenanceEvery
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Concurrency <= 0 {
		c.Workers.Concurrency = defaultConcurrency
	}
	if c.Workers.RateLimitMax <= 0 {
		c.Workers.RateLimitMax = defaultRateLimitMax
	}
	if c.Workers.RateLimitWindowSeconds <= 0 {
		c.Workers.RateLimitWindowSeconds = defaultRateLimitWindowSecs
	}
}

func (c *Config) normalizeConvert() {
	c.Convert.FFmpegBinary = strings.TrimSpace(c.Convert.FFmpegBinary)
	if c.Convert.FFmpegBinary == "" {
		c.Convert.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Convert.FFmpegTimeout <= 0 {
		c.Convert.FFmpegTimeout = defaultFFmpegTimeout
	}
	if c.Convert.JPEGQuality <= 0 || c.Convert.JPEGQuality > 100 {
		c.Convert.JPEGQuality = defaultJPEGQuality
	}
	if c.Convert.ArchiveMaxFile <= 0 {
		c.Convert.ArchiveMaxFile = defaultArchiveMaxFile
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.SigningSecret = strings.TrimSpace(c.Storage.SigningSecret)
	if c.Storage.SigningSecret == "" {
		if value, ok := os.LookupEnv("FILEFORGE_SIGNING_SECRET"); ok {
			c.Storage.SigningSecret = strings.TrimSpace(value)
		}
	}
	if c.Storage.DownloadTTLSeconds <= 0 {
		c.Storage.DownloadTTLSeconds = defaultDownloadTTLSeconds
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	if c.Storage.PublicBaseURL == "" {
		c.Storage.PublicBaseURL = "http://" + c.Paths.APIBind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
