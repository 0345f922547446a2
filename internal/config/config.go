package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen       string    `yaml:"listen"`
	SharedSecret string    `yaml:"shared_secret"`
	Debug        bool      `yaml:"debug"`
	API          API       `yaml:"api"`
	Restart      Restart   `yaml:"restart"`
	Services     []Service `yaml:"services"`
	Watchdog     Watchdog  `yaml:"watchdog"`
	Alerts       Alerts    `yaml:"alerts"`
	Relay        Relay     `yaml:"relay"`
}

// API describes the remote service-management API.
type API struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Restart holds the state-machine timing and attempt policy.
type Restart struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	SuspendTimeout    time.Duration `yaml:"suspend_timeout"`
	ResumeTimeout     time.Duration `yaml:"resume_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	BackoffStep       time.Duration `yaml:"backoff_step"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	SuspendedStatuses []string      `yaml:"suspended_statuses"`
	ResumedStatuses   []string      `yaml:"resumed_statuses"`
}

// Service identifies one managed remote service and the credential
// authorized to act on it. HealthURL is only needed for watchdog
// coverage.
type Service struct {
	ID          string `yaml:"id" json:"serviceId"`
	Credential  string `yaml:"credential" json:"credential"`
	DisplayName string `yaml:"display_name" json:"displayName"`
	HealthURL   string `yaml:"health_url" json:"-"`
}

// Name returns the display name, falling back to the service ID.
func (s Service) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ID
}

type Watchdog struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	Cooldown     time.Duration `yaml:"cooldown"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type Alerts struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Relay configures the optional NATS event relay. Disabled when URL is
// empty.
type Relay struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// ServiceListError marks a malformed service list. The caller is
// expected to continue with an empty managed-service set rather than
// exit.
type ServiceListError struct {
	Err error
}

func (e *ServiceListError) Error() string { return fmt.Sprintf("service list: %v", e.Err) }
func (e *ServiceListError) Unwrap() error { return e.Err }

// Load reads and validates the config file. Environment variables
// RESTARTER_SHARED_SECRET and RESTARTER_SERVICES (a JSON array of
// {credential, serviceId, displayName} objects) override the file.
//
// A malformed service list is reported as *ServiceListError alongside a
// usable Config carrying zero services; any other error means the
// config is unusable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	svcErr := applyEnv(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	if svcErr == nil {
		svcErr = validateServices(cfg)
	}
	if svcErr != nil {
		cfg.Services = nil
		return cfg, svcErr
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("RESTARTER_SHARED_SECRET"); v != "" {
		cfg.SharedSecret = v
	}
	envBool("RESTARTER_DEBUG", &cfg.Debug)
	envInt("RESTARTER_MAX_ATTEMPTS", &cfg.Restart.MaxAttempts)
	envDuration("RESTARTER_SUSPEND_TIMEOUT", &cfg.Restart.SuspendTimeout)
	envDuration("RESTARTER_RESUME_TIMEOUT", &cfg.Restart.ResumeTimeout)
	envDuration("RESTARTER_POLL_INTERVAL", &cfg.Restart.PollInterval)
	envDuration("RESTARTER_BACKOFF_STEP", &cfg.Restart.BackoffStep)
	envDuration("RESTARTER_SETTLE_DELAY", &cfg.Restart.SettleDelay)
	envDuration("RESTARTER_WATCHDOG_INTERVAL", &cfg.Watchdog.Interval)
	envDuration("RESTARTER_WATCHDOG_COOLDOWN", &cfg.Watchdog.Cooldown)

	if v := os.Getenv("RESTARTER_SERVICES"); v != "" {
		var services []Service
		if err := json.Unmarshal([]byte(v), &services); err != nil {
			return &ServiceListError{Err: fmt.Errorf("RESTARTER_SERVICES: %w", err)}
		}
		cfg.Services = services
	}
	cfg.Services = append(cfg.Services, envServices()...)
	return nil
}

// envServices collects discrete RESTARTER_SERVICE_<n>_ID / _CREDENTIAL /
// _HEALTH_URL / _NAME variable groups, numbered from 1. This is the
// watchdog-variant config surface: statically wired service/health-URL
// pairs without a config file.
func envServices() []Service {
	var services []Service
	for n := 1; ; n++ {
		prefix := fmt.Sprintf("RESTARTER_SERVICE_%d_", n)
		id := os.Getenv(prefix + "ID")
		if id == "" {
			return services
		}
		services = append(services, Service{
			ID:          id,
			Credential:  os.Getenv(prefix + "CREDENTIAL"),
			DisplayName: os.Getenv(prefix + "NAME"),
			HealthURL:   os.Getenv(prefix + "HEALTH_URL"),
		})
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.API.RequestTimeout == 0 {
		cfg.API.RequestTimeout = 10 * time.Second
	}

	r := &cfg.Restart
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.SuspendTimeout == 0 {
		r.SuspendTimeout = 60 * time.Second
	}
	if r.ResumeTimeout == 0 {
		r.ResumeTimeout = 180 * time.Second
	}
	if r.PollInterval == 0 {
		r.PollInterval = 5 * time.Second
	}
	if r.BackoffStep == 0 {
		r.BackoffStep = 2 * time.Second
	}
	if r.SettleDelay == 0 {
		r.SettleDelay = 2 * time.Second
	}
	if len(r.SuspendedStatuses) == 0 {
		r.SuspendedStatuses = []string{"suspended", "stopped", "inactive"}
	}
	if len(r.ResumedStatuses) == 0 {
		r.ResumedStatuses = []string{"running", "live", "healthy", "active"}
	}

	w := &cfg.Watchdog
	if w.Interval == 0 {
		w.Interval = 5 * time.Minute
	}
	if w.Cooldown == 0 {
		w.Cooldown = 20 * time.Minute
	}
	if w.ProbeTimeout == 0 {
		w.ProbeTimeout = 5 * time.Second
	}
}
