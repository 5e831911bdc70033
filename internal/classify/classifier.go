// Package classify performs scope-level categorization for hosts that
// carry sub-scoping rules (e.g. community or channel paths).
package classify

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/webward/webward/internal/policy"
)

// Category is the classification of one scope.
type Category string

const (
	CategoryRestricted    Category = "restricted"
	CategoryEncouraged    Category = "encouraged"
	CategoryDiscretionary Category = "discretionary"
	CategoryUnclassified  Category = "unclassified"
)

// Rules resolves the categorization rule covering a domain.
// *policy.Store satisfies it.
type Rules interface {
	HostRule(domain string) (string, *policy.HostRule, bool)
}

// Result is the outcome of classifying one navigation.
type Result struct {
	Host     string
	Scope    string
	Category Category
	Blocked  bool
	Message  string
}

// Classifier extracts scope identifiers from paths and classifies them
// against curated term lists. Classification is advisory and biased
// toward over-blocking: an unmatched scope defaults to discretionary,
// never to restricted or encouraged.
type Classifier struct {
	rules Rules

	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// New creates a classifier backed by the given rule source.
func New(rules Rules) *Classifier {
	return &Classifier{
		rules: rules,
		cache: make(map[string]*regexp.Regexp),
	}
}

// Evaluate classifies the navigation and decides whether this layer
// blocks it. Restricted blocks unconditionally; encouraged never
// blocks; discretionary blocks inside the host's work-hours window, or
// at any hour when tightened (risk level high). Hosts without a rule
// never block here.
func (c *Classifier) Evaluate(domain, path string, now time.Time, tightened bool) Result {
	host, rule, ok := c.rules.HostRule(domain)
	if !ok {
		return Result{Category: CategoryUnclassified}
	}

	scope := c.extractScope(rule.ScopePattern, path)
	if scope == "" {
		// No scope in the path (e.g. the host's front page): nothing to
		// judge at this granularity.
		return Result{Host: host, Category: CategoryUnclassified}
	}

	res := Result{Host: host, Scope: scope, Category: classifyScope(scope, rule)}

	switch res.Category {
	case CategoryRestricted:
		res.Blocked = true
		res.Message = "this area is restricted"
	case CategoryDiscretionary:
		if tightened {
			res.Blocked = true
			res.Message = "discretionary browsing is paused right now"
		} else if rule.WorkHours.Contains(now) {
			res.Blocked = true
			res.Message = "discretionary browsing is blocked during work hours"
		}
	}
	return res
}

// classifyScope matches the scope against the rule's term lists,
// case-insensitive substring, first-match order restricted >
// encouraged > discretionary. No match defaults to discretionary.
func classifyScope(scope string, rule *policy.HostRule) Category {
	s := strings.ToLower(scope)
	for _, term := range rule.Restricted {
		if strings.Contains(s, strings.ToLower(term)) {
			return CategoryRestricted
		}
	}
	for _, term := range rule.Encouraged {
		if strings.Contains(s, strings.ToLower(term)) {
			return CategoryEncouraged
		}
	}
	for _, term := range rule.Discretionary {
		if strings.Contains(s, strings.ToLower(term)) {
			return CategoryDiscretionary
		}
	}
	return CategoryDiscretionary
}

func (c *Classifier) extractScope(pattern, path string) string {
	re := c.compiled(pattern)
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(path)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// compiled returns the cached regexp for pattern. The loader validated
// it, so a compile failure here means a stale cache entry at worst.
func (c *Classifier) compiled(pattern string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	c.cache[pattern] = re
	return re
}
