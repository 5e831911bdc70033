package api

import "time"

// IncidentType classifies an audit incident.
type IncidentType string

const (
	IncidentBlocklistHit     IncidentType = "blocklist_hit"
	IncidentQuotaExceeded    IncidentType = "quota_exceeded"
	IncidentCategoryBlock    IncidentType = "category_block"
	IncidentCustomRuleBlock  IncidentType = "custom_rule_block"
	IncidentBehavioralBlock  IncidentType = "behavioral_block"
	IncidentModerateBlock    IncidentType = "moderate_block"
	IncidentSuspiciousSearch IncidentType = "suspicious_search"
	IncidentEmergencyUnlock  IncidentType = "emergency_unlock"
)

// Severity ranks an incident for delivery and reporting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityTable is the fixed type→severity mapping. Severity is derived,
// never supplied by callers.
var severityTable = map[IncidentType]Severity{
	IncidentBlocklistHit:     SeverityHigh,
	IncidentQuotaExceeded:    SeverityMedium,
	IncidentCategoryBlock:    SeverityMedium,
	IncidentCustomRuleBlock:  SeverityMedium,
	IncidentBehavioralBlock:  SeverityHigh,
	IncidentModerateBlock:    SeverityLow,
	IncidentSuspiciousSearch: SeverityMedium,
	IncidentEmergencyUnlock:  SeverityCritical,
}

// SeverityOf returns the fixed severity for an incident type.
// Unknown types rank low.
func SeverityOf(t IncidentType) Severity {
	if s, ok := severityTable[t]; ok {
		return s
	}
	return SeverityLow
}

// Incident is an immutable audit record of an enforcement action or
// override event.
type Incident struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Type      IncidentType `json:"type"`
	Severity  Severity     `json:"severity"`
	Domain    string       `json:"domain,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Details   string       `json:"details,omitempty"`
}

// QueryFilter defines criteria for querying the incident ledger.
// Since and Until form a half-open window [Since, Until).
type QueryFilter struct {
	Since    time.Time    `json:"since,omitempty"`
	Until    time.Time    `json:"until,omitempty"`
	Type     IncidentType `json:"type,omitempty"`
	Severity Severity     `json:"severity,omitempty"`
	Domain   string       `json:"domain,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Offset   int          `json:"offset,omitempty"`
}

// IncidentStats provides summary statistics for the dashboard.
type IncidentStats struct {
	Total      int                  `json:"total"`
	ByType     map[IncidentType]int `json:"by_type"`
	BySeverity map[Severity]int     `json:"by_severity"`
	ByDomain   map[string]int       `json:"by_domain"`
}
