// Package risk maintains rolling windows of behavioral samples and
// derives a composite risk score, level, and enforcement action.
package risk

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/webward/webward/internal/storage"
)

// Class is the derived classification of one sample.
type Class string

const (
	ClassRestricted Class = "restricted"
	ClassExplicit   Class = "explicit"
	ClassModerate   Class = "moderate"
	ClassNeutral    Class = "neutral"
)

// Level is a composite risk band.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Action is what the decision engine should do at a risk level.
type Action string

const (
	ActionNormal   Action = "normal"
	ActionMonitor  Action = "monitor"
	ActionEnhanced Action = "enhanced_blocking"
	ActionBlockAll Action = "block_all"
)

// Window capacities; oldest samples evict first.
const (
	maxVisits      = 50
	maxSearches    = 100
	maxNavigations = 200
)

// Sub-score parameters.
const (
	visitLookback     = 10
	searchLookback    = 20
	rapidNavWindow    = 30 * time.Second
	rapidNavThreshold = 5
)

// Snapshot is one deterministic recomputation of the composite score.
// Recomputing against an unchanged window and reference time yields an
// identical snapshot; the score is not monotonic and decays as old
// samples age out.
type Snapshot struct {
	Score  float64 `json:"score"`
	Level  Level   `json:"level"`
	Action Action  `json:"action"`
}

// Scorer holds the bounded sample windows. All sub-scores are
// normalized to [0,1] and combined by fixed weights; the composite is
// clamped to [0,1].
type Scorer struct {
	mu          sync.Mutex
	visits      *window
	searches    *window
	navigations *window
	db          *storage.DB
	logger      *slog.Logger
}

// NewScorer creates an empty scorer. db may be nil (no persistence).
func NewScorer(db *storage.DB, logger *slog.Logger) *Scorer {
	return &Scorer{
		visits:      newWindow(maxVisits),
		searches:    newWindow(maxSearches),
		navigations: newWindow(maxNavigations),
		db:          db,
		logger:      logger,
	}
}

// Replay restores same-day persisted samples into the windows. Called
// once at startup, before any recording.
func (s *Scorer) Replay(since time.Time) error {
	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range []struct {
		kind string
		win  *window
	}{
		{"visit", s.visits},
		{"search", s.searches},
		{"navigation", s.navigations},
	} {
		rows, err := s.db.LoadSamples(w.kind, since, w.win.max)
		if err != nil {
			return err
		}
		for _, r := range rows {
			w.win.push(Sample{Value: r.Value, Class: Class(r.Class), At: r.At})
		}
	}
	return nil
}

// RecordVisit adds a site-visit sample with its derived class.
func (s *Scorer) RecordVisit(domain string, class Class, at time.Time) {
	s.record("visit", s.visits, Sample{Value: domain, Class: class, At: at})
}

// RecordSearch classifies the query, adds a search sample, and returns
// the classification with the matched term (empty when neutral).
func (s *Scorer) RecordSearch(query string, at time.Time) (Class, string) {
	class, term := ClassifySearch(query)
	s.record("search", s.searches, Sample{Value: term, Class: class, At: at})
	return class, term
}

// RecordNavigation adds a navigation sample (rapid-navigation signal).
func (s *Scorer) RecordNavigation(at time.Time) {
	s.record("navigation", s.navigations, Sample{Class: ClassNeutral, At: at})
}

func (s *Scorer) record(kind string, w *window, sample Sample) {
	s.mu.Lock()
	w.push(sample)
	s.mu.Unlock()

	if s.db != nil {
		row := storage.SampleRow{Kind: kind, Value: sample.Value, Class: string(sample.Class), At: sample.At}
		if err := s.db.AddSample(row); err != nil {
			s.logger.Error("persisting behavioral sample", "kind", kind, "error", err)
		}
	}
}

// Score recomputes the composite from the current windows at the given
// reference time.
func (s *Scorer) Score(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	score := s.visitScore()*0.4 +
		s.searchScore() +
		s.rapidNavScore(now)*0.2 +
		timeOfDayScore(now)*0.1

	score = clamp01(score)
	level := levelFor(score)
	return Snapshot{Score: score, Level: level, Action: actionFor(level)}
}

// visitScore is the fraction of the last 10 visits classified
// restricted.
func (s *Scorer) visitScore() float64 {
	recent := s.visits.last(visitLookback)
	if len(recent) == 0 {
		return 0
	}
	restricted := 0
	for _, v := range recent {
		if v.Class == ClassRestricted {
			restricted++
		}
	}
	return float64(restricted) / float64(len(recent))
}

// searchScore carries its weights inline: explicit fraction × 0.3 plus
// moderate fraction × 0.1 over the last 20 searches.
func (s *Scorer) searchScore() float64 {
	recent := s.searches.last(searchLookback)
	if len(recent) == 0 {
		return 0
	}
	explicit, moderate := 0, 0
	for _, q := range recent {
		switch q.Class {
		case ClassExplicit:
			explicit++
		case ClassModerate:
			moderate++
		}
	}
	n := float64(len(recent))
	return float64(explicit)/n*0.3 + float64(moderate)/n*0.1
}

// rapidNavScore is 0.5 when more than 5 navigations landed in the
// trailing 30 seconds, else 0.
func (s *Scorer) rapidNavScore(now time.Time) float64 {
	if s.navigations.countSince(now.Add(-rapidNavWindow)) > rapidNavThreshold {
		return 0.5
	}
	return 0
}

// timeOfDayScore: late night (00–05) 0.3, work hours 0.2, weekend 0.1.
func timeOfDayScore(now time.Time) float64 {
	h := now.Hour()
	weekend := now.Weekday() == time.Saturday || now.Weekday() == time.Sunday
	switch {
	case h < 5:
		return 0.3
	case !weekend && h >= 9 && h < 17:
		return 0.2
	case weekend:
		return 0.1
	}
	return 0
}

func levelFor(score float64) Level {
	switch {
	case score >= 0.8:
		return LevelCritical
	case score >= 0.6:
		return LevelHigh
	case score >= 0.3:
		return LevelMedium
	}
	return LevelLow
}

func actionFor(level Level) Action {
	switch level {
	case LevelCritical:
		return ActionBlockAll
	case LevelHigh:
		return ActionEnhanced
	case LevelMedium:
		return ActionMonitor
	}
	return ActionNormal
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClassifySearch classifies free text against the curated term lists
// and regex clusters. It returns the class and the matched term or
// cluster name.
func ClassifySearch(text string) (Class, string) {
	t := strings.ToLower(text)
	for _, term := range explicitTerms {
		if strings.Contains(t, term) {
			return ClassExplicit, term
		}
	}
	for _, p := range clusterPatterns {
		if p.Regex.MatchString(text) {
			return ClassExplicit, p.Name
		}
	}
	for _, term := range moderateTerms {
		if strings.Contains(t, term) {
			return ClassModerate, term
		}
	}
	return ClassNeutral, ""
}
