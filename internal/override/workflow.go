// Package override implements the friction-based emergency override
// workflow: a mandatory countdown plus a written reason buys a
// short-lived temporary allowance, with an audit trail.
package override

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/sched"
	"github.com/webward/webward/internal/storage"
)

// State is one step of the workflow.
type State string

const (
	StateClosed       State = "closed"
	StatePresenting   State = "presenting"
	StateCountingDown State = "counting_down"
	StateEligible     State = "eligible"
	StateGranted      State = "granted"
)

const (
	// CountdownDuration is the fixed friction delay before a request
	// becomes eligible; proceed stays disabled until it elapses.
	CountdownDuration = 60 * time.Second

	// MinReasonLength is the minimum justification length in characters.
	MinReasonLength = 20

	// GrantTTL is how long a granted allowance lasts.
	GrantTTL = 5 * time.Minute
)

// InvalidRequestError rejects a confirm at the workflow boundary: the
// countdown is still running or the reason is too short. No incident is
// recorded.
type InvalidRequestError struct {
	Msg string
}

func (e *InvalidRequestError) Error() string { return "invalid override request: " + e.Msg }

type flow struct {
	state    State
	deadline time.Time
}

// Manager runs at most one workflow per domain. Cancel is reachable
// from every non-closed state and discards all workflow state without
// granting anything.
type Manager struct {
	mu        sync.Mutex
	flows     map[string]*flow
	store     *policy.Store
	ledger    *audit.Ledger
	scheduler *sched.Scheduler
	db        *storage.DB
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a workflow manager. db may be nil.
func NewManager(store *policy.Store, ledger *audit.Ledger, scheduler *sched.Scheduler, db *storage.DB, logger *slog.Logger) *Manager {
	return &Manager{
		flows:     make(map[string]*flow),
		store:     store,
		ledger:    ledger,
		scheduler: scheduler,
		db:        db,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the time source for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Open moves Closed → Presenting for domain. Reopening an in-flight
// workflow returns its current state unchanged.
func (m *Manager) Open(domain string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flows[domain]; ok {
		return m.stateLocked(f)
	}
	m.flows[domain] = &flow{state: StatePresenting}
	return StatePresenting
}

// Start moves Presenting → CountingDown and returns the countdown
// deadline. The deadline is an absolute wall-clock instant.
func (m *Manager) Start(domain string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[domain]
	if !ok || f.state != StatePresenting {
		return time.Time{}, fmt.Errorf("override for %q is not presenting", domain)
	}
	f.state = StateCountingDown
	f.deadline = m.now().Add(CountdownDuration)
	return f.deadline, nil
}

// Status returns the current state and, while counting down, the time
// remaining.
func (m *Manager) Status(domain string) (State, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[domain]
	if !ok {
		return StateClosed, 0
	}
	state := m.stateLocked(f)
	if state == StateCountingDown {
		return state, f.deadline.Sub(m.now())
	}
	return state, 0
}

// stateLocked folds the countdown deadline into the visible state:
// CountingDown becomes Eligible once the deadline passes.
func (m *Manager) stateLocked(f *flow) State {
	if f.state == StateCountingDown && !m.now().Before(f.deadline) {
		f.state = StateEligible
	}
	return f.state
}

// Cancel discards the workflow from any non-closed state. Nothing is
// granted and no incident is recorded.
func (m *Manager) Cancel(domain string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[domain]; !ok {
		return false
	}
	delete(m.flows, domain)
	return true
}

// Confirm moves Eligible → Granted. It validates the full friction
// contract (countdown elapsed AND reason of at least 20 characters),
// then atomically creates the 5-minute allowance, records the
// emergency_unlock incident, and schedules silent revocation at expiry.
// The workflow closes immediately after granting.
func (m *Manager) Confirm(domain, reason string) (*policy.Allowance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flows[domain]
	if !ok {
		return nil, &InvalidRequestError{Msg: "no override workflow open for " + domain}
	}
	switch m.stateLocked(f) {
	case StateEligible:
	case StateCountingDown:
		return nil, &InvalidRequestError{Msg: "countdown still running"}
	default:
		return nil, &InvalidRequestError{Msg: "workflow not eligible"}
	}
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < MinReasonLength {
		return nil, &InvalidRequestError{Msg: fmt.Sprintf("reason must be at least %d characters", MinReasonLength)}
	}

	now := m.now()
	a := m.store.Allow(domain, reason, GrantTTL, now)
	if m.db != nil {
		if err := m.db.SaveAllowance(a); err != nil {
			m.logger.Error("persisting allowance", "id", a.ID, "error", err)
		}
	}
	m.ledger.Record(api.IncidentEmergencyUnlock, domain, reason,
		"allowance "+a.ID, now)
	m.ScheduleRevocation(a)

	delete(m.flows, domain)
	m.logger.Info("override granted", "domain", domain, "expires_at", a.ExpiresAt)
	return a, nil
}

// ScheduleRevocation arms the automatic expiry of an allowance.
// Revocation removes the allowance entirely and silently: no incident.
func (m *Manager) ScheduleRevocation(a *policy.Allowance) {
	id := a.ID
	m.scheduler.At("allowance:"+id, a.ExpiresAt, func() {
		m.store.Revoke(id)
		if m.db != nil {
			if err := m.db.DeleteAllowance(id); err != nil {
				m.logger.Error("deleting expired allowance", "id", id, "error", err)
			}
		}
		m.logger.Info("allowance expired", "id", id)
	})
}

// RestoreAllowances reinstates persisted allowances after a restart,
// rearming their revocation deadlines and dropping expired rows.
func (m *Manager) RestoreAllowances() error {
	if m.db == nil {
		return nil
	}
	rows, err := m.db.LoadAllowances()
	if err != nil {
		return err
	}
	now := m.now()
	for _, a := range rows {
		if !m.store.Restore(a, now) {
			if err := m.db.DeleteAllowance(a.ID); err != nil {
				m.logger.Error("deleting expired allowance", "id", a.ID, "error", err)
			}
			continue
		}
		m.ScheduleRevocation(a)
	}
	return nil
}
