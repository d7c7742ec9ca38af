package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"jobs.ttl_seconds":                  c.Jobs.TTLSeconds,
		"jobs.sweep_interval_seconds":       c.Jobs.SweepIntervalSeconds,
		"queue.attempt_cap":                 c.Queue.AttemptCap,
		"queue.backoff_base_seconds":        c.Queue.BackoffBaseSeconds,
		"queue.poll_interval_seconds":       c.Queue.PollIntervalSeconds,
		"queue.completed_retention_seconds": c.Queue.CompletedRetentionSeconds,
		"queue.dead_retention_seconds":      c.Queue.DeadRetentionSeconds,
	}); err != nil {
		return err
	}
	if c.Queue.HeartbeatIntervalSeconds <= 0 {
		return errors.New("queue.heartbeat_interval_seconds must be positive")
	}
	if c.Queue.LeaseTTLSeconds <= c.Queue.HeartbeatIntervalSeconds {
		return errors.New("queue.lease_ttl_seconds must be greater than queue.heartbeat_interval_seconds")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Concurrency <= 0 {
		return errors.New("workers.concurrency must be positive")
	}
	if c.Workers.RateLimitMax <= 0 {
		return errors.New("workers.rate_limit_max must be positive")
	}
	if c.Workers.RateLimitWindowSeconds <= 0 {
		return errors.New("workers.rate_limit_window_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
