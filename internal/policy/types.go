package policy

import "time"

// PolicyFile represents the top-level versioned policy document.
type PolicyFile struct {
	Version    int                 `yaml:"version" json:"version"`
	Blocked    []string            `yaml:"blocked" json:"blocked"`
	Moderate   []string            `yaml:"moderate" json:"moderate"`
	Categories map[string]HostRule `yaml:"categories,omitempty" json:"categories,omitempty"`
	// Quotas maps a domain to its daily visible-usage limit in minutes.
	Quotas   map[string]int `yaml:"quotas,omitempty" json:"quotas,omitempty"`
	Settings Settings       `yaml:"settings" json:"settings"`
}

// HostRule holds the scope-level categorization rule for one host.
type HostRule struct {
	// ScopePattern is a regexp with one capture group that extracts the
	// scope identifier from the request path, e.g. `^/r/([^/]+)`.
	ScopePattern  string    `yaml:"scope_pattern" json:"scope_pattern"`
	Restricted    []string  `yaml:"restricted,omitempty" json:"restricted,omitempty"`
	Encouraged    []string  `yaml:"encouraged,omitempty" json:"encouraged,omitempty"`
	Discretionary []string  `yaml:"discretionary,omitempty" json:"discretionary,omitempty"`
	WorkHours     WorkHours `yaml:"work_hours,omitempty" json:"work_hours,omitempty"`
}

// WorkHours is a local-time half-open window [Start, End) in hours.
type WorkHours struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// Contains reports whether t falls inside the window.
func (w WorkHours) Contains(t time.Time) bool {
	if w.Start == 0 && w.End == 0 {
		return false
	}
	h := t.Hour()
	return h >= w.Start && h < w.End
}

// Settings contains global runtime settings carried in the policy document.
type Settings struct {
	// StrictMode blocks moderate-listed domains outright.
	StrictMode bool   `yaml:"strict_mode" json:"strict_mode"`
	UserID     string `yaml:"user_id,omitempty" json:"user_id,omitempty"`
	// PolicyURL is the remote policy source; empty disables refetch.
	PolicyURL      string `yaml:"policy_url,omitempty" json:"policy_url,omitempty"`
	ReloadInterval string `yaml:"reload_interval,omitempty" json:"reload_interval,omitempty"`
	RegoPolicy     string `yaml:"rego_policy,omitempty" json:"rego_policy,omitempty"`
	IncidentSink   string `yaml:"incident_sink,omitempty" json:"incident_sink,omitempty"`
	ReportSink     string `yaml:"report_sink,omitempty" json:"report_sink,omitempty"`
	ReportPeriod   string `yaml:"report_period,omitempty" json:"report_period,omitempty"`
	HookAddr       string `yaml:"hook_addr,omitempty" json:"hook_addr,omitempty"`
	DashboardAddr  string `yaml:"dashboard_addr,omitempty" json:"dashboard_addr,omitempty"`
	StatePath      string `yaml:"state_path,omitempty" json:"state_path,omitempty"`
}

// Allowance is a time-boxed exception granted through the override
// workflow. At expiry it is removed entirely, never flagged.
type Allowance struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Reason    string    `json:"reason"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the allowance is unexpired at t.
func (a *Allowance) Active(t time.Time) bool {
	return t.Before(a.ExpiresAt)
}
