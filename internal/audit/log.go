// Package audit keeps the append-only incident ledger and generates
// periodic accountability reports.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/metrics"
	"github.com/webward/webward/internal/storage"
)

// maxIncidents caps the in-memory ledger; the oldest entries evict
// first.
const maxIncidents = 1000

// Ledger is the append-only incident log. Recording is local-first:
// the incident is held in memory and persisted before any delivery is
// attempted, and delivery failures never surface to the caller.
type Ledger struct {
	mu        sync.Mutex
	incidents []*api.Incident
	db        *storage.DB
	notifier  *Notifier
	logger    *slog.Logger

	subMu   sync.RWMutex
	subs    map[int]chan *api.Incident
	nextSub int
}

// NewLedger creates a ledger. db and notifier may be nil.
func NewLedger(db *storage.DB, notifier *Notifier, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:       db,
		notifier: notifier,
		logger:   logger,
		subs:     make(map[int]chan *api.Incident),
	}
}

// Load restores the most recent persisted incidents.
func (l *Ledger) Load() error {
	if l.db == nil {
		return nil
	}
	incidents, err := l.db.LoadIncidents(maxIncidents)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.incidents = incidents
	l.mu.Unlock()
	return nil
}

// Record appends one immutable incident. Severity comes from the fixed
// type table. Critical and high incidents fan out to the sinks in real
// time on a separate goroutine.
func (l *Ledger) Record(typ api.IncidentType, domain, reason, details string, ts time.Time) *api.Incident {
	if ts.IsZero() {
		ts = time.Now()
	}
	inc := &api.Incident{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Type:      typ,
		Severity:  api.SeverityOf(typ),
		Domain:    domain,
		Reason:    reason,
		Details:   details,
	}

	l.mu.Lock()
	if len(l.incidents) >= maxIncidents {
		l.incidents = l.incidents[1:]
	}
	l.incidents = append(l.incidents, inc)
	l.mu.Unlock()

	if l.db != nil {
		if err := l.db.SaveIncident(inc); err != nil {
			l.logger.Error("persisting incident", "id", inc.ID, "error", err)
		}
	}

	metrics.IncidentsTotal.WithLabelValues(string(inc.Type), string(inc.Severity)).Inc()
	l.notifySubscribers(inc)

	if l.notifier != nil && (inc.Severity == api.SeverityCritical || inc.Severity == api.SeverityHigh) {
		go l.notifier.DeliverIncident(context.Background(), inc)
	}

	l.logger.Info("incident recorded",
		"type", inc.Type,
		"severity", inc.Severity,
		"domain", inc.Domain,
	)
	return inc
}

// Query retrieves incidents matching the filter, oldest first.
func (l *Ledger) Query(filter api.QueryFilter) []*api.Incident {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []*api.Incident
	for _, inc := range l.incidents {
		if matchesFilter(inc, filter) {
			results = append(results, inc)
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results
}

// Stats returns aggregate counts for the dashboard.
func (l *Ledger) Stats() *api.IncidentStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := &api.IncidentStats{
		ByType:     make(map[api.IncidentType]int),
		BySeverity: make(map[api.Severity]int),
		ByDomain:   make(map[string]int),
	}
	for _, inc := range l.incidents {
		stats.Total++
		stats.ByType[inc.Type]++
		stats.BySeverity[inc.Severity]++
		if inc.Domain != "" {
			stats.ByDomain[inc.Domain]++
		}
	}
	return stats
}

// Subscribe returns a channel that receives new incidents in real time.
// The returned function cancels the subscription.
func (l *Ledger) Subscribe() (<-chan *api.Incident, func()) {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	ch := make(chan *api.Incident, 100)
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch

	cancel := func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		delete(l.subs, id)
		close(ch)
	}
	return ch, cancel
}

func (l *Ledger) notifySubscribers(inc *api.Incident) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	for _, ch := range l.subs {
		select {
		case ch <- inc:
		default:
			// Drop if subscriber is slow
		}
	}
}

func matchesFilter(inc *api.Incident, f api.QueryFilter) bool {
	if !f.Since.IsZero() && inc.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !inc.Timestamp.Before(f.Until) {
		return false
	}
	if f.Type != "" && inc.Type != f.Type {
		return false
	}
	if f.Severity != "" && inc.Severity != f.Severity {
		return false
	}
	if f.Domain != "" && inc.Domain != f.Domain {
		return false
	}
	return true
}
