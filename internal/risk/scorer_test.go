package risk

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Monday 10:00 local: weekday work hours, time-of-day sub-score 0.2.
var monMorning = time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

// Monday 02:00 local: late night, time-of-day sub-score 0.3.
var monLateNight = time.Date(2026, 3, 2, 2, 0, 0, 0, time.Local)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScorer_EmptyWindows(t *testing.T) {
	s := NewScorer(nil, discard())

	// Saturday 20:00: only the weekend time-of-day component applies.
	at := time.Date(2026, 3, 7, 20, 0, 0, 0, time.Local)
	snap := s.Score(at)
	if !almost(snap.Score, 0.1*0.1) {
		t.Errorf("expected 0.01, got %f", snap.Score)
	}
	if snap.Level != LevelLow || snap.Action != ActionNormal {
		t.Errorf("expected low/normal, got %s/%s", snap.Level, snap.Action)
	}
}

func TestScorer_VisitComponent(t *testing.T) {
	s := NewScorer(nil, discard())

	// 4 of the last 10 visits restricted: visit sub-score 0.4.
	for i := 0; i < 6; i++ {
		s.RecordVisit("example.com", ClassNeutral, monMorning)
	}
	for i := 0; i < 4; i++ {
		s.RecordVisit("bad.example", ClassRestricted, monMorning)
	}

	snap := s.Score(monMorning)
	want := 0.4*0.4 + 0.2*0.1
	if !almost(snap.Score, want) {
		t.Errorf("expected %f, got %f", want, snap.Score)
	}
}

func TestScorer_VisitLookbackLimit(t *testing.T) {
	s := NewScorer(nil, discard())

	// Old restricted visits pushed out of the 10-visit lookback no
	// longer count.
	for i := 0; i < 10; i++ {
		s.RecordVisit("bad.example", ClassRestricted, monMorning)
	}
	for i := 0; i < 10; i++ {
		s.RecordVisit("example.com", ClassNeutral, monMorning)
	}

	snap := s.Score(monMorning)
	if !almost(snap.Score, 0.2*0.1) {
		t.Errorf("expected only time-of-day component, got %f", snap.Score)
	}
}

func TestScorer_SearchComponent(t *testing.T) {
	s := NewScorer(nil, discard())

	// 10 explicit + 5 moderate + 5 neutral of 20 searches:
	// 0.5*0.3 + 0.25*0.1 = 0.175.
	for i := 0; i < 10; i++ {
		s.RecordSearch("free porn videos", monMorning)
	}
	for i := 0; i < 5; i++ {
		s.RecordSearch("sexy outfits", monMorning)
	}
	for i := 0; i < 5; i++ {
		s.RecordSearch("golang generics tutorial", monMorning)
	}

	snap := s.Score(monMorning)
	want := 0.175 + 0.2*0.1
	if !almost(snap.Score, want) {
		t.Errorf("expected %f, got %f", want, snap.Score)
	}
}

func TestScorer_RapidNavigation(t *testing.T) {
	s := NewScorer(nil, discard())

	// 6 navigations inside 30 seconds trips the rapid-navigation flag.
	for i := 0; i < 6; i++ {
		s.RecordNavigation(monMorning.Add(-time.Duration(i) * time.Second))
	}

	snap := s.Score(monMorning)
	want := 0.5*0.2 + 0.2*0.1
	if !almost(snap.Score, want) {
		t.Errorf("expected %f, got %f", want, snap.Score)
	}

	// The same navigations evaluated a minute later no longer count.
	snap = s.Score(monMorning.Add(time.Minute))
	if !almost(snap.Score, 0.2*0.1) {
		t.Errorf("expected flag cleared, got %f", snap.Score)
	}
}

func TestScorer_Determinism(t *testing.T) {
	s := NewScorer(nil, discard())
	for i := 0; i < 7; i++ {
		s.RecordVisit("bad.example", ClassRestricted, monMorning)
	}
	s.RecordSearch("nsfw subreddits", monMorning)

	a := s.Score(monMorning)
	b := s.Score(monMorning)
	if a != b {
		t.Errorf("same window and reference time must yield identical snapshots: %+v vs %+v", a, b)
	}
}

func TestScorer_CriticalBlockAll(t *testing.T) {
	s := NewScorer(nil, discard())

	// Saturate every component late at night:
	// 1.0*0.4 + 1.0*0.3 + 0.5*0.2 + 0.3*0.1 = 0.83.
	for i := 0; i < 10; i++ {
		s.RecordVisit("bad.example", ClassRestricted, monLateNight)
	}
	for i := 0; i < 20; i++ {
		s.RecordSearch("porn", monLateNight)
	}
	for i := 0; i < 6; i++ {
		s.RecordNavigation(monLateNight.Add(-time.Duration(i) * time.Second))
	}

	snap := s.Score(monLateNight)
	if !almost(snap.Score, 0.83) {
		t.Errorf("expected 0.83, got %f", snap.Score)
	}
	if snap.Level != LevelCritical {
		t.Errorf("expected critical, got %s", snap.Level)
	}
	if snap.Action != ActionBlockAll {
		t.Errorf("expected block_all, got %s", snap.Action)
	}
}

func TestScorer_ScoreBounds(t *testing.T) {
	s := NewScorer(nil, discard())
	for i := 0; i < 60; i++ {
		s.RecordVisit("bad.example", ClassRestricted, monLateNight)
		s.RecordSearch("porn", monLateNight)
		s.RecordNavigation(monLateNight)
	}
	snap := s.Score(monLateNight)
	if snap.Score < 0 || snap.Score > 1 {
		t.Errorf("score out of bounds: %f", snap.Score)
	}
}

func TestLevelBands(t *testing.T) {
	tests := []struct {
		score  float64
		level  Level
		action Action
	}{
		{0.0, LevelLow, ActionNormal},
		{0.29, LevelLow, ActionNormal},
		{0.3, LevelMedium, ActionMonitor},
		{0.59, LevelMedium, ActionMonitor},
		{0.6, LevelHigh, ActionEnhanced},
		{0.79, LevelHigh, ActionEnhanced},
		{0.8, LevelCritical, ActionBlockAll},
		{1.0, LevelCritical, ActionBlockAll},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.score), func(t *testing.T) {
			level := levelFor(tt.score)
			if level != tt.level {
				t.Errorf("expected %s, got %s", tt.level, level)
			}
			if got := actionFor(level); got != tt.action {
				t.Errorf("expected %s, got %s", tt.action, got)
			}
		})
	}
}

func TestClassifySearch(t *testing.T) {
	tests := []struct {
		query string
		class Class
	}{
		{"free porn videos", ClassExplicit},
		{"NSFW subreddits", ClassExplicit},
		{"barely legal models", ClassExplicit},  // age cluster
		{"how to twerk", ClassExplicit},         // action cluster
		{"sugar daddy apps", ClassExplicit},     // relationship cluster
		{"sexy halloween costume", ClassModerate},
		{"tinder openers", ClassModerate},
		{"golang sync.Mutex", ClassNeutral},
		{"weather tomorrow", ClassNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			class, term := ClassifySearch(tt.query)
			if class != tt.class {
				t.Errorf("expected %s, got %s (term %q)", tt.class, class, term)
			}
			if tt.class != ClassNeutral && term == "" {
				t.Error("expected a matched term or cluster name")
			}
		})
	}
}

func TestWindow_Eviction(t *testing.T) {
	w := newWindow(3)
	for i := 0; i < 5; i++ {
		w.push(Sample{Value: fmt.Sprintf("s%d", i)})
	}
	if w.len() != 3 {
		t.Fatalf("expected len 3, got %d", w.len())
	}
	got := w.last(3)
	if got[0].Value != "s2" || got[2].Value != "s4" {
		t.Errorf("expected oldest s2 and newest s4, got %v", got)
	}
}
