package config

import "time"

const (
	DefaultHookAddr       = "127.0.0.1:8127"
	DefaultDashboardAddr  = "127.0.0.1:8130"
	DefaultReloadInterval = 15 * time.Minute
)

// DefaultStatePath returns the default local state database path.
func DefaultStatePath() string {
	return "~/.webward/state.db"
}
