package override

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/sched"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	mgr    *Manager
	store  *policy.Store
	ledger *audit.Ledger
	sched  *sched.Scheduler
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  policy.NewStore(&policy.PolicyFile{Version: 1, Blocked: []string{"pornhub.com"}}),
		ledger: audit.NewLedger(nil, nil, discard()),
		sched:  sched.New(discard()),
		now:    time.Date(2026, 3, 2, 21, 0, 0, 0, time.Local),
	}
	h.mgr = NewManager(h.store, h.ledger, h.sched, nil, discard())
	h.mgr.SetClock(func() time.Time { return h.now })
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

const validReason = "need to check an urgent delivery"

func TestManager_FullGrantFlow(t *testing.T) {
	h := newHarness(t)

	if st := h.mgr.Open("pornhub.com"); st != StatePresenting {
		t.Fatalf("expected presenting, got %s", st)
	}

	deadline, err := h.mgr.Start("pornhub.com")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := deadline.Sub(h.now); got != CountdownDuration {
		t.Errorf("expected 60s countdown, got %s", got)
	}

	h.advance(CountdownDuration)
	if st, _ := h.mgr.Status("pornhub.com"); st != StateEligible {
		t.Fatalf("expected eligible at deadline, got %s", st)
	}

	a, err := h.mgr.Confirm("pornhub.com", validReason)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if a.ExpiresAt.Sub(h.now) != GrantTTL {
		t.Errorf("expected 5m allowance, got %s", a.ExpiresAt.Sub(h.now))
	}

	// The allowance is live in the policy store.
	if _, ok := h.store.Allowance("pornhub.com", h.now); !ok {
		t.Error("expected active allowance in store")
	}

	// Exactly one critical emergency_unlock incident carrying the reason.
	incs := h.ledger.Query(api.QueryFilter{Type: api.IncidentEmergencyUnlock})
	if len(incs) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(incs))
	}
	if incs[0].Severity != api.SeverityCritical {
		t.Errorf("expected critical severity, got %s", incs[0].Severity)
	}
	if incs[0].Reason != validReason {
		t.Errorf("expected reason preserved, got %q", incs[0].Reason)
	}

	// Revocation is armed and the workflow is closed.
	if !h.sched.Pending("allowance:" + a.ID) {
		t.Error("expected revocation scheduled")
	}
	if st, _ := h.mgr.Status("pornhub.com"); st != StateClosed {
		t.Errorf("expected closed after grant, got %s", st)
	}
}

func TestManager_ConfirmDuringCountdown(t *testing.T) {
	h := newHarness(t)
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")
	h.advance(30 * time.Second)

	_, err := h.mgr.Confirm("pornhub.com", validReason)
	var ire *InvalidRequestError
	if !errors.As(err, &ire) {
		t.Fatalf("expected InvalidRequestError, got %v", err)
	}
	if h.ledger.Stats().Total != 0 {
		t.Error("rejected confirm must not record an incident")
	}
}

func TestManager_ConfirmReasonTooShort(t *testing.T) {
	h := newHarness(t)
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")
	h.advance(CountdownDuration)

	tests := []struct {
		name   string
		reason string
	}{
		{"short", "because"},
		{"nineteen chars", "0123456789012345678"},
		{"padding does not count", "    short reason    "},
		{"seven emoji despite byte length", "🚨🚨🚨🚨🚨🚨🚨"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.mgr.Confirm("pornhub.com", tt.reason)
			var ire *InvalidRequestError
			if !errors.As(err, &ire) {
				t.Fatalf("expected InvalidRequestError, got %v", err)
			}
		})
	}

	// Rejection keeps the workflow eligible; a valid reason still works.
	if _, err := h.mgr.Confirm("pornhub.com", validReason); err != nil {
		t.Fatalf("expected grant after fixing the reason: %v", err)
	}
}

func TestManager_TwentySevenCharReasonAfterCountdown(t *testing.T) {
	h := newHarness(t)
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")
	h.advance(60 * time.Second)

	reason := "need prescription pickup now" // 28 chars, over the minimum
	a, err := h.mgr.Confirm("pornhub.com", reason)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if a.Reason != reason {
		t.Errorf("expected reason on allowance, got %q", a.Reason)
	}
}

func TestManager_ReasonLengthCountsRunes(t *testing.T) {
	h := newHarness(t)
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")
	h.advance(CountdownDuration)

	// 22 runes of Cyrillic, well over 20 characters even though each
	// rune is multiple bytes.
	reason := "нужно проверить заказ!"
	if _, err := h.mgr.Confirm("pornhub.com", reason); err != nil {
		t.Fatalf("expected multi-byte reason to count by runes: %v", err)
	}
}

func TestManager_ConfirmWithoutOpen(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.Confirm("pornhub.com", validReason)
	var ire *InvalidRequestError
	if !errors.As(err, &ire) {
		t.Fatalf("expected InvalidRequestError, got %v", err)
	}
}

func TestManager_ConfirmWhilePresenting(t *testing.T) {
	h := newHarness(t)
	h.mgr.Open("pornhub.com")

	_, err := h.mgr.Confirm("pornhub.com", validReason)
	var ire *InvalidRequestError
	if !errors.As(err, &ire) {
		t.Fatalf("expected InvalidRequestError, got %v", err)
	}
}

func TestManager_CancelFromEveryState(t *testing.T) {
	h := newHarness(t)

	// Presenting.
	h.mgr.Open("pornhub.com")
	if !h.mgr.Cancel("pornhub.com") {
		t.Fatal("cancel from presenting")
	}

	// CountingDown.
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")
	if !h.mgr.Cancel("pornhub.com") {
		t.Fatal("cancel from counting down")
	}

	// Eligible.
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")
	h.advance(CountdownDuration)
	if !h.mgr.Cancel("pornhub.com") {
		t.Fatal("cancel from eligible")
	}

	// Closed: nothing to cancel, nothing granted, no incidents.
	if h.mgr.Cancel("pornhub.com") {
		t.Error("cancel on closed workflow must report false")
	}
	if h.ledger.Stats().Total != 0 {
		t.Error("cancel must not record incidents")
	}
	if _, ok := h.store.Allowance("pornhub.com", h.now); ok {
		t.Error("cancel must not grant an allowance")
	}
}

func TestManager_ReopenReturnsCurrentState(t *testing.T) {
	h := newHarness(t)
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")

	if st := h.mgr.Open("pornhub.com"); st != StateCountingDown {
		t.Errorf("expected counting_down on reopen, got %s", st)
	}
}

func TestManager_StatusCountdownRemaining(t *testing.T) {
	h := newHarness(t)
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")
	h.advance(20 * time.Second)

	st, remaining := h.mgr.Status("pornhub.com")
	if st != StateCountingDown {
		t.Fatalf("expected counting_down, got %s", st)
	}
	if remaining != 40*time.Second {
		t.Errorf("expected 40s remaining, got %s", remaining)
	}
}

func TestManager_IndependentPerDomain(t *testing.T) {
	h := newHarness(t)
	h.mgr.Open("pornhub.com")
	h.mgr.Start("pornhub.com")

	if st := h.mgr.Open("reddit.com"); st != StatePresenting {
		t.Errorf("expected fresh workflow for second domain, got %s", st)
	}
}
