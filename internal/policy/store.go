package policy

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns the in-memory policy state: the blocked and moderate
// domain sets, per-host categorization rules, quota limits, and active
// temporary allowances. All access goes through its methods; decision
// precedence is enforced by the engine's evaluation order, never here.
type Store struct {
	mu         sync.RWMutex
	file       *PolicyFile
	blocked    map[string]struct{}
	moderate   map[string]struct{}
	allowances map[string]*Allowance // keyed by domain, one per domain
}

// NewStore creates a Store from a validated policy document.
func NewStore(pf *PolicyFile) *Store {
	s := &Store{allowances: make(map[string]*Allowance)}
	s.setPolicy(pf)
	return s
}

// Replace atomically swaps in a new policy document. Allowances are
// untouched: they outrank policy and expire on their own schedule.
func (s *Store) Replace(pf *PolicyFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPolicy(pf)
}

func (s *Store) setPolicy(pf *PolicyFile) {
	blocked := make(map[string]struct{}, len(pf.Blocked))
	for _, d := range pf.Blocked {
		blocked[d] = struct{}{}
	}
	moderate := make(map[string]struct{}, len(pf.Moderate))
	for _, d := range pf.Moderate {
		moderate[d] = struct{}{}
	}
	s.file = pf
	s.blocked = blocked
	s.moderate = moderate
}

// Current returns the loaded policy document (for dashboard display).
func (s *Store) Current() *PolicyFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file
}

// IsBlocked reports whether domain matches the blocked set exactly or
// as a subdomain suffix.
func (s *Store) IsBlocked(domain string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchSuffix(s.blocked, domain)
}

// IsModerate reports whether domain matches the moderate set exactly or
// as a subdomain suffix.
func (s *Store) IsModerate(domain string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchSuffix(s.moderate, domain)
}

// matchSuffix returns the matching entry for an exact or
// subdomain-suffix hit ("x.example.com" matches "example.com").
func matchSuffix(set map[string]struct{}, domain string) (string, bool) {
	if _, ok := set[domain]; ok {
		return domain, true
	}
	for i := strings.IndexByte(domain, '.'); i >= 0; i = strings.IndexByte(domain, '.') {
		domain = domain[i+1:]
		if _, ok := set[domain]; ok {
			return domain, true
		}
	}
	return "", false
}

// HostRule returns the categorization rule covering domain, matching
// exact-or-suffix like the domain sets.
func (s *Store) HostRule(domain string) (string, *HostRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for host := domain; host != ""; {
		if rule, ok := s.file.Categories[host]; ok {
			return host, &rule, true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return "", nil, false
}

// QuotaLimit returns the daily limit for domain, if one is configured.
func (s *Store) QuotaLimit(domain string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for host := domain; host != ""; {
		if minutes, ok := s.file.Quotas[host]; ok {
			return time.Duration(minutes) * time.Minute, true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return 0, false
}

// StrictMode reports whether moderate-listed domains block outright.
func (s *Store) StrictMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.Settings.StrictMode
}

// Allow inserts a temporary allowance for domain, replacing any
// existing one. Returns the created allowance.
func (s *Store) Allow(domain, reason string, ttl time.Duration, now time.Time) *Allowance {
	a := &Allowance{
		ID:        uuid.New().String(),
		Domain:    domain,
		Reason:    reason,
		GrantedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.mu.Lock()
	s.allowances[domain] = a
	s.mu.Unlock()
	return a
}

// Restore reinstates a persisted allowance, dropping it if already expired.
func (s *Store) Restore(a *Allowance, now time.Time) bool {
	if !a.Active(now) {
		return false
	}
	s.mu.Lock()
	s.allowances[a.Domain] = a
	s.mu.Unlock()
	return true
}

// Allowance returns the active allowance for domain, if any. Expired
// entries are removed outright as a side effect.
func (s *Store) Allowance(domain string, now time.Time) (*Allowance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allowances[domain]
	if !ok {
		return nil, false
	}
	if !a.Active(now) {
		delete(s.allowances, domain)
		return nil, false
	}
	return a, true
}

// Revoke removes the allowance with the given ID. Revocation is silent:
// no incident is recorded.
func (s *Store) Revoke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for domain, a := range s.allowances {
		if a.ID == id {
			delete(s.allowances, domain)
			return true
		}
	}
	return false
}

// Allowances returns all currently held allowances, expired or not.
func (s *Store) Allowances() []*Allowance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Allowance, 0, len(s.allowances))
	for _, a := range s.allowances {
		out = append(out, a)
	}
	return out
}
