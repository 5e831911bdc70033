// Package quota tracks per-domain, per-day visible-usage time and
// enforces daily limits.
package quota

import (
	"log/slog"
	"sync"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/metrics"
	"github.com/webward/webward/internal/storage"
)

// Limits resolves the configured daily limit for a domain.
// *policy.Store satisfies it.
type Limits interface {
	QuotaLimit(domain string) (time.Duration, bool)
}

const dateLayout = "2006-01-02"

type counter struct {
	elapsed  time.Duration
	exceeded bool
}

// Tracker accumulates visible-tab time per (domain, local day). Time
// accrues only while a domain's tab is the active, visible one; once a
// domain exceeds its limit it stays blocked until the next local
// midnight regardless of policy state.
type Tracker struct {
	mu       sync.Mutex
	limits   Limits
	db       *storage.DB
	logger   *slog.Logger
	now      func() time.Time
	date     string
	counters map[string]*counter

	// the currently accruing tab, if any
	activeTab    string
	activeDomain string
	activeSince  time.Time
}

// NewTracker creates a tracker. db may be nil (no persistence).
func NewTracker(limits Limits, db *storage.DB, logger *slog.Logger) *Tracker {
	t := &Tracker{
		limits:   limits,
		db:       db,
		logger:   logger,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
	t.date = t.now().Format(dateLayout)
	return t
}

// SetClock overrides the time source for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// LoadToday restores persisted counters for the current local day.
func (t *Tracker) LoadToday() error {
	if t.db == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rows, err := t.db.LoadQuotas(t.date)
	if err != nil {
		return err
	}
	for _, r := range rows {
		t.counters[r.Domain] = &counter{elapsed: r.Elapsed, exceeded: r.Exceeded}
	}
	return nil
}

// Observe processes a tab focus/visibility transition. Activating a tab
// flushes and supersedes the previous active tab; hiding the active tab
// stops accrual immediately.
func (t *Tracker) Observe(ev api.TabEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := ev.Timestamp
	if now.IsZero() {
		now = t.now()
	}
	t.rolloverLocked(now)
	t.flushLocked(now)

	switch ev.State {
	case api.TabActive:
		t.activeTab = ev.TabID
		t.activeDomain = api.NormalizeDomain(ev.Domain)
		t.activeSince = now
	case api.TabHidden:
		if ev.TabID == t.activeTab {
			t.activeTab = ""
			t.activeDomain = ""
		}
	}
}

// Retarget switches accrual to domain when tabID is the active tab.
// In-tab navigations change the domain without emitting a tab event;
// the allowed navigation itself retargets the accrual so time stops
// charging the previous domain.
func (t *Tracker) Retarget(tabID, domain string, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tabID == "" || tabID != t.activeTab {
		return
	}
	if ts.IsZero() {
		ts = t.now()
	}
	t.rolloverLocked(ts)
	t.flushLocked(ts)
	t.activeDomain = api.NormalizeDomain(domain)
	t.activeSince = ts
}

// Exceeded reports whether domain is over its daily limit, counting any
// in-flight active-tab time.
func (t *Tracker) Exceeded(domain string) bool {
	limit, ok := t.limits.QuotaLimit(domain)
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rolloverLocked(now)
	t.flushLocked(now)

	c, ok := t.counters[domain]
	if !ok {
		return false
	}
	if c.exceeded {
		return true
	}
	if c.elapsed >= limit {
		c.exceeded = true
		t.persistLocked(domain, c)
	}
	return c.exceeded
}

// Elapsed returns today's accumulated time for domain, counting any
// in-flight active-tab time.
func (t *Tracker) Elapsed(domain string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rolloverLocked(now)
	t.flushLocked(now)

	if c, ok := t.counters[domain]; ok {
		return c.elapsed
	}
	return 0
}

// Snapshot returns all of today's counters (for the dashboard).
func (t *Tracker) Snapshot() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rolloverLocked(now)
	t.flushLocked(now)

	out := make(map[string]time.Duration, len(t.counters))
	for d, c := range t.counters {
		out[d] = c.elapsed
	}
	return out
}

// ResetDay clears all counters and exceeded flags atomically. Scheduled
// at each local midnight.
func (t *Tracker) ResetDay() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(t.now())
}

func (t *Tracker) rolloverLocked(now time.Time) {
	if d := now.Format(dateLayout); d != t.date {
		t.resetLocked(now)
	}
}

func (t *Tracker) resetLocked(now time.Time) {
	t.counters = make(map[string]*counter)
	metrics.QuotaSeconds.Reset()
	t.date = now.Format(dateLayout)
	if t.activeTab != "" {
		t.activeSince = now
	}
	if t.db != nil {
		if err := t.db.ClearQuotas(); err != nil {
			t.logger.Error("clearing quota counters", "error", err)
		}
	}
	t.logger.Info("quota counters reset", "date", t.date)
}

// flushLocked accrues in-flight time to the active domain and restarts
// the accrual clock.
func (t *Tracker) flushLocked(now time.Time) {
	if t.activeTab == "" || t.activeDomain == "" {
		return
	}
	delta := now.Sub(t.activeSince)
	t.activeSince = now
	if delta <= 0 {
		return
	}
	c, ok := t.counters[t.activeDomain]
	if !ok {
		c = &counter{}
		t.counters[t.activeDomain] = c
	}
	c.elapsed += delta
	if _, ok := t.limits.QuotaLimit(t.activeDomain); ok {
		metrics.QuotaSeconds.WithLabelValues(t.activeDomain).Set(c.elapsed.Seconds())
	}
	t.persistLocked(t.activeDomain, c)
}

func (t *Tracker) persistLocked(domain string, c *counter) {
	if t.db == nil {
		return
	}
	if err := t.db.UpsertQuota(domain, t.date, c.elapsed, c.exceeded); err != nil {
		t.logger.Error("persisting quota counter", "domain", domain, "error", err)
	}
}
