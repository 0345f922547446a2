package config

import (
	"fmt"
	"net/url"
)

func validate(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required")
	}
	if _, err := url.Parse(cfg.API.BaseURL); err != nil {
		return fmt.Errorf("config: invalid api.base_url: %w", err)
	}
	if cfg.Restart.MaxAttempts < 1 {
		return fmt.Errorf("config: restart.max_attempts must be >= 1")
	}
	if cfg.Restart.PollInterval <= 0 {
		return fmt.Errorf("config: restart.poll_interval must be > 0")
	}
	if cfg.Alerts.WebhookURL != "" {
		if _, err := url.Parse(cfg.Alerts.WebhookURL); err != nil {
			return fmt.Errorf("config: invalid alerts.webhook_url: %w", err)
		}
	}
	if cfg.Watchdog.Enabled {
		if cfg.Watchdog.Interval <= 0 {
			return fmt.Errorf("config: watchdog.interval must be > 0")
		}
		if cfg.Watchdog.Cooldown <= 0 {
			return fmt.Errorf("config: watchdog.cooldown must be > 0")
		}
	}
	return nil
}

// validateServices checks each service entry. Problems here are
// recoverable: the daemon keeps serving with an empty managed set.
func validateServices(cfg *Config) error {
	seen := make(map[string]bool)
	for i, svc := range cfg.Services {
		if svc.ID == "" {
			return &ServiceListError{Err: fmt.Errorf("service %d missing id", i)}
		}
		if svc.Credential == "" {
			return &ServiceListError{Err: fmt.Errorf("service %q missing credential", svc.ID)}
		}
		if seen[svc.ID] {
			return &ServiceListError{Err: fmt.Errorf("duplicate service id %q", svc.ID)}
		}
		seen[svc.ID] = true

		if cfg.Watchdog.Enabled && svc.HealthURL == "" {
			return &ServiceListError{Err: fmt.Errorf("service %q missing health_url (required with watchdog enabled)", svc.ID)}
		}
	}
	return nil
}
