package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/storage"
)

const (
	topDomainLimit  = 10
	topKeywordLimit = 10
)

// Reporter aggregates the incident ledger into periodic accountability
// reports. Generation is idempotent per (period, start): delivery and
// the generated mark happen at most once, regardless of recipient
// reachability.
type Reporter struct {
	ledger   *Ledger
	db       *storage.DB
	notifier *Notifier
	logger   *slog.Logger
}

// NewReporter creates a reporter. db disables idempotency marks when
// nil; notifier disables delivery when nil.
func NewReporter(ledger *Ledger, db *storage.DB, notifier *Notifier, logger *slog.Logger) *Reporter {
	return &Reporter{ledger: ledger, db: db, notifier: notifier, logger: logger}
}

// PeriodStart returns the canonical local start of the period containing t:
// midnight for daily, Monday midnight for weekly, the 1st for monthly.
func PeriodStart(period api.ReportPeriod, t time.Time) time.Time {
	y, m, d := t.Date()
	switch period {
	case api.PeriodWeekly:
		midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		offset := (int(t.Weekday()) + 6) % 7 // days since Monday
		return midnight.AddDate(0, 0, -offset)
	case api.PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}
}

// NextPeriodStart returns the start of the period following t's.
func NextPeriodStart(period api.ReportPeriod, t time.Time) time.Time {
	start := PeriodStart(period, t)
	switch period {
	case api.PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case api.PeriodMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Generate builds the report for the period containing now, aggregating
// the whole period [start, next period start). The second return reports
// whether this call owned delivery (false if the period was already
// marked generated). Delivery is synchronous: Generate returns only
// after the report has reached the sink or its delivery has failed and
// been logged, so one-shot callers cannot strand a marked period.
func (r *Reporter) Generate(ctx context.Context, period api.ReportPeriod, now time.Time) (*api.Report, bool, error) {
	start := PeriodStart(period, now)
	end := NextPeriodStart(period, now)
	incidents := r.ledger.Query(api.QueryFilter{Since: start, Until: end})

	report := aggregate(period, start, end, now, incidents)
	report.Recommendations = recommend(report)

	first := true
	if r.db != nil {
		inserted, err := r.db.MarkReport(period, start, now)
		if err != nil {
			return nil, false, fmt.Errorf("marking report period: %w", err)
		}
		first = inserted
	}

	if first && r.notifier != nil {
		r.notifier.DeliverReport(ctx, report)
	}

	r.logger.Info("report generated",
		"period", period,
		"start", start,
		"incidents", len(incidents),
		"delivered", first,
	)
	return report, first, nil
}

func aggregate(period api.ReportPeriod, start, end, generatedAt time.Time, incidents []*api.Incident) *api.Report {
	report := &api.Report{
		Period:      period,
		Start:       start,
		End:         end,
		GeneratedAt: generatedAt,
		ByType:      make(map[api.IncidentType]int),
	}

	domains := make(map[string]int)
	keywords := make(map[string]int)
	for _, inc := range incidents {
		report.ByType[inc.Type]++
		report.PeakHours[inc.Timestamp.Hour()]++
		if inc.Domain != "" {
			domains[inc.Domain]++
		}
		if inc.Type == api.IncidentSuspiciousSearch && inc.Details != "" {
			keywords[inc.Details]++
		}
		switch inc.Type {
		case api.IncidentEmergencyUnlock:
			report.TotalUnlocks++
		case api.IncidentSuspiciousSearch:
			// observational, not a block
		default:
			report.TotalBlocks++
		}
	}

	report.TopDomains = topDomains(domains, topDomainLimit)
	report.TopKeywords = topKeywords(keywords, topKeywordLimit)
	return report
}

// recommend derives suggestions from fixed threshold rules.
func recommend(r *api.Report) []api.Recommendation {
	var recs []api.Recommendation
	if r.TotalUnlocks > 2 {
		recs = append(recs, api.Recommendation{
			Code:    "tighten_friction",
			Message: fmt.Sprintf("%d emergency unlocks this period; consider a longer countdown or review of override reasons", r.TotalUnlocks),
		})
	}
	if n := r.ByType[api.IncidentBlocklistHit]; n >= 10 {
		recs = append(recs, api.Recommendation{
			Code:    "review_blocklist_pressure",
			Message: fmt.Sprintf("%d blocklist hits this period; repeated attempts may warrant a conversation rather than more rules", n),
		})
	}
	if n := r.ByType[api.IncidentSuspiciousSearch]; n >= 5 {
		recs = append(recs, api.Recommendation{
			Code:    "enable_strict_mode",
			Message: fmt.Sprintf("%d flagged searches this period; consider enabling strict mode for moderate-listed domains", n),
		})
	}
	if n := r.ByType[api.IncidentQuotaExceeded]; n >= 5 {
		recs = append(recs, api.Recommendation{
			Code:    "review_quota_limits",
			Message: fmt.Sprintf("%d quota blocks this period; daily limits may be set below realistic usage", n),
		})
	}
	return recs
}

func topDomains(counts map[string]int, limit int) []api.DomainCount {
	out := make([]api.DomainCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, api.DomainCount{Domain: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func topKeywords(counts map[string]int, limit int) []api.KeywordCount {
	out := make([]api.KeywordCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, api.KeywordCount{Keyword: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
