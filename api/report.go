package api

import "time"

// ReportPeriod is a report aggregation window.
type ReportPeriod string

const (
	PeriodDaily   ReportPeriod = "daily"
	PeriodWeekly  ReportPeriod = "weekly"
	PeriodMonthly ReportPeriod = "monthly"
)

// Recommendation is a rule-derived suggestion included in a report.
type Recommendation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Report aggregates incidents over one period. Generation is idempotent
// per (period, start).
type Report struct {
	Period       ReportPeriod         `json:"period"`
	Start        time.Time            `json:"start"`
	End          time.Time            `json:"end"`
	GeneratedAt  time.Time            `json:"generated_at"`
	TotalBlocks  int                  `json:"total_blocks"`
	TotalUnlocks int                  `json:"total_unlocks"`
	ByType       map[IncidentType]int `json:"by_type"`
	TopDomains   []DomainCount        `json:"top_domains"`
	TopKeywords  []KeywordCount       `json:"top_keywords"`
	// PeakHours is a 24-bucket histogram of incidents by local hour.
	PeakHours       [24]int          `json:"peak_hours"`
	Recommendations []Recommendation `json:"recommendations"`
}

// DomainCount pairs a domain with its incident count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// KeywordCount pairs a flagged keyword with its occurrence count.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}
