package api

import (
	"net/url"
	"strings"
	"time"
)

// Verdict represents the outcome of a navigation decision.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictBlock Verdict = "block"
)

// BlockReason identifies which enforcement layer produced a block.
type BlockReason string

const (
	ReasonBlocklist  BlockReason = "blocklist"
	ReasonQuota      BlockReason = "quota"
	ReasonCategory   BlockReason = "category"
	ReasonCustomRule BlockReason = "custom_rule"
	ReasonBehavioral BlockReason = "behavioral"
	ReasonModerate   BlockReason = "moderate"
)

// NavigationEvent is a single pre-load navigation observed by the hook.
// It is ephemeral: consumed by the decision engine and discarded.
type NavigationEvent struct {
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	Path      string    `json:"path"`
	TabID     string    `json:"tab_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseNavigation builds a NavigationEvent from a raw URL.
func ParseNavigation(rawURL, tabID string, ts time.Time) (*NavigationEvent, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &NavigationEvent{
		URL:       rawURL,
		Domain:    NormalizeDomain(u.Hostname()),
		Path:      u.Path,
		TabID:     tabID,
		Timestamp: ts,
	}, nil
}

// NormalizeDomain lowercases a hostname and strips a leading "www." label.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return strings.TrimPrefix(host, "www.")
}

// Decision is the verdict for one navigation event.
type Decision struct {
	Verdict Verdict     `json:"verdict"`
	Reason  BlockReason `json:"reason,omitempty"`
	// Rule names the blocklist entry, scope, or custom rule that matched.
	Rule string `json:"rule,omitempty"`
	// Message is the human-readable interstitial text. It is the only
	// detail that ever reaches the navigated page.
	Message string `json:"message,omitempty"`
}

// Allowed reports whether the navigation may proceed.
func (d *Decision) Allowed() bool { return d.Verdict == VerdictAllow }

// TabState is the visibility state of a browser tab.
type TabState string

const (
	TabActive TabState = "active"
	TabHidden TabState = "hidden"
)

// TabEvent reports a tab focus or visibility transition.
type TabEvent struct {
	TabID     string    `json:"tab_id"`
	Domain    string    `json:"domain"`
	State     TabState  `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckRequest is used by the CLI `check` command and the dashboard API.
type CheckRequest struct {
	URL   string `json:"url"`
	TabID string `json:"tab_id,omitempty"`
}

// CheckResponse is the result of a dry-run policy check.
type CheckResponse struct {
	Verdict Verdict     `json:"verdict"`
	Reason  BlockReason `json:"reason,omitempty"`
	Rule    string      `json:"rule,omitempty"`
	Message string      `json:"message,omitempty"`
}
