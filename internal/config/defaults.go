package config

const (
	defaultDataDir    = "~/.local/share/fileforge/data"
	defaultStorageDir = "~/.local/share/fileforge/storage"
	defaultLogDir     = "~/.local/share/fileforge/logs"
	defaultTempDir    = "~/.local/share/fileforge/tmp"
	defaultAPIBind    = "127.0.0.1:8740"

	defaultJobTTLSeconds      = 86400
	defaultJobSweepInterval   = 300
	defaultAttemptCap         = 3
	defaultBackoffBaseSeconds = 1
	defaultLeaseTTLSeconds    = 120
	defaultHeartbeatInterval  = 15
	defaultPollInterval       = 1
	defaultCompletedRetention = 3600
	defaultDeadRetention      = 86400
	defaultMaintenanceEvery   = 30

	defaultConcurrency         = 3
	defaultRateLimitMax        = 10
	defaultRateLimitWindowSecs = 60

	defaultFFmpegBinary   = "ffmpeg"
	defaultFFmpegTimeout  = 1800
	defaultJPEGQuality    = 90
	defaultArchiveMaxFile = int64(1) << 31

	defaultDownloadTTLSeconds = 3600
	defaultNotifyTimeout      = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StorageDir: defaultStorageDir,
			LogDir:     defaultLogDir,
			TempDir:    defaultTempDir,
			APIBind:    defaultAPIBind,
		},
		Jobs: Jobs{
			TTLSeconds:           defaultJobTTLSeconds,
			SweepIntervalSeconds: defaultJobSweepInterval,
		},
		Queue: Queue{
			AttemptCap:                defaultAttemptCap,
			BackoffBaseSeconds:        defaultBackoffBaseSeconds,
			LeaseTTLSeconds:           defaultLeaseTTLSeconds,
			HeartbeatIntervalSeconds:  defaultHeartbeatInterval,
			PollIntervalSeconds:       defaultPollInterval,
			CompletedRetentionSeconds: defaultCompletedRetention,
			DeadRetentionSeconds:      defaultDeadRetention,
			MaintenanceInterval:       defaultMaintenanceEvery,
		},
		Workers: Workers{
			Concurrency:            defaultConcurrency,
			RateLimitMax:           defaultRateLimitMax,
			RateLimitWindowSeconds: defaultRateLimitWindowSecs,
		},
		Convert: Convert{
			FFmpegBinary:   defaultFFmpegBinary,
			FFmpegTimeout:  defaultFFmpegTimeout,
			JPEGQuality:    defaultJPEGQuality,
			ArchiveMaxFile: defaultArchiveMaxFile,
		},
		Storage: Storage{
			DownloadTTLSeconds: defaultDownloadTTLSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
