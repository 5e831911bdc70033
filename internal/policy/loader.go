package policy

import (
	"fmt"
	"os"
	"regexp"

	"github.com/webward/webward/api"
	"gopkg.in/yaml.v3"
)

// LoadFile reads and validates a YAML policy document.
func LoadFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("reading policy file: %w", err)}
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates YAML policy data. Any schema error
// rejects the whole document.
func LoadBytes(data []byte) (*PolicyFile, error) {
	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, &LoadError{Err: fmt.Errorf("parsing policy YAML: %w", err)}
	}
	if err := validate(&pf); err != nil {
		return nil, &LoadError{Err: err}
	}
	return &pf, nil
}

func validate(pf *PolicyFile) error {
	if pf.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d (expected 1)", pf.Version)
	}

	for i, d := range pf.Blocked {
		if d == "" {
			return fmt.Errorf("blocked[%d]: empty domain", i)
		}
		pf.Blocked[i] = api.NormalizeDomain(d)
	}
	for i, d := range pf.Moderate {
		if d == "" {
			return fmt.Errorf("moderate[%d]: empty domain", i)
		}
		pf.Moderate[i] = api.NormalizeDomain(d)
	}

	normalized := make(map[string]HostRule, len(pf.Categories))
	for host, rule := range pf.Categories {
		if host == "" {
			return fmt.Errorf("categories: empty host")
		}
		if rule.ScopePattern == "" {
			return fmt.Errorf("categories[%q]: scope_pattern is required", host)
		}
		re, err := regexp.Compile(rule.ScopePattern)
		if err != nil {
			return fmt.Errorf("categories[%q]: scope_pattern invalid: %w", host, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("categories[%q]: scope_pattern needs one capture group", host)
		}
		if err := validateWorkHours(rule.WorkHours); err != nil {
			return fmt.Errorf("categories[%q]: %w", host, err)
		}
		normalized[api.NormalizeDomain(host)] = rule
	}
	pf.Categories = normalized

	quotas := make(map[string]int, len(pf.Quotas))
	for domain, minutes := range pf.Quotas {
		if minutes <= 0 {
			return fmt.Errorf("quotas[%q]: daily minutes must be positive, got %d", domain, minutes)
		}
		quotas[api.NormalizeDomain(domain)] = minutes
	}
	pf.Quotas = quotas

	if p := pf.Settings.ReportPeriod; p != "" {
		switch api.ReportPeriod(p) {
		case api.PeriodDaily, api.PeriodWeekly, api.PeriodMonthly:
		default:
			return fmt.Errorf("settings.report_period: invalid period %q", p)
		}
	}

	return nil
}

func validateWorkHours(w WorkHours) error {
	if w.Start == 0 && w.End == 0 {
		return nil
	}
	if w.Start < 0 || w.End > 24 || w.Start >= w.End {
		return fmt.Errorf("work_hours: invalid window [%d, %d)", w.Start, w.End)
	}
	return nil
}
