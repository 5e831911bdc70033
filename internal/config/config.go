package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/policy"
)

// Config is the runtime configuration derived from the policy document.
type Config struct {
	PolicyFile *policy.PolicyFile
	PolicyPath string

	HookAddr      string
	DashboardAddr string
	StatePath     string
	RegoPolicy    string

	PolicyURL      string
	ReloadInterval time.Duration

	IncidentSink string
	ReportSink   string
	ReportPeriod api.ReportPeriod
	UserID       string
}

// Load reads a policy YAML file and produces a runtime Config.
func Load(path string) (*Config, error) {
	pf, err := policy.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return fromPolicy(pf, path)
}

// LoadBytes parses YAML data and produces a runtime Config.
func LoadBytes(data []byte) (*Config, error) {
	pf, err := policy.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return fromPolicy(pf, "")
}

func fromPolicy(pf *policy.PolicyFile, path string) (*Config, error) {
	cfg := &Config{
		PolicyFile:   pf,
		PolicyPath:   path,
		PolicyURL:    pf.Settings.PolicyURL,
		IncidentSink: pf.Settings.IncidentSink,
		ReportSink:   pf.Settings.ReportSink,
		UserID:       pf.Settings.UserID,
		RegoPolicy:   expandHome(pf.Settings.RegoPolicy),
	}

	cfg.HookAddr = pf.Settings.HookAddr
	if cfg.HookAddr == "" {
		cfg.HookAddr = DefaultHookAddr
	}

	cfg.DashboardAddr = pf.Settings.DashboardAddr
	if cfg.DashboardAddr == "" {
		cfg.DashboardAddr = DefaultDashboardAddr
	}

	cfg.StatePath = pf.Settings.StatePath
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath()
	}
	cfg.StatePath = expandHome(cfg.StatePath)

	if pf.Settings.ReloadInterval != "" {
		d, err := time.ParseDuration(pf.Settings.ReloadInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid reload_interval %q: %w", pf.Settings.ReloadInterval, err)
		}
		cfg.ReloadInterval = d
	} else {
		cfg.ReloadInterval = DefaultReloadInterval
	}

	cfg.ReportPeriod = api.ReportPeriod(pf.Settings.ReportPeriod)
	if cfg.ReportPeriod == "" {
		cfg.ReportPeriod = api.PeriodDaily
	}

	return cfg, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
