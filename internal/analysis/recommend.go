package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// Defaults for the recommendation rules.
const (
	DefaultPriorityThreshold     = 5.0
	DefaultDelayThreshold        = 1.0
	DefaultSuggestedDelaySeconds = 30
	DefaultAutoServiceLimit      = 50
)

// Thresholds holds the recommendation rule constants.
type Thresholds struct {
	// PriorityThreshold: entries loading slower than this are worth disabling.
	PriorityThreshold float64
	// DelayThreshold: entries loading at least this long, up to the priority
	// threshold, are worth delaying.
	DelayThreshold        float64
	SuggestedDelaySeconds int
	// AutoServiceLimit is the automatic service count above which a profile
	// finding is reported. Zero disables the finding.
	AutoServiceLimit int
}

// DefaultThresholds returns the stock rule constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriorityThreshold:     DefaultPriorityThreshold,
		DelayThreshold:        DefaultDelayThreshold,
		SuggestedDelaySeconds: DefaultSuggestedDelaySeconds,
		AutoServiceLimit:      DefaultAutoServiceLimit,
	}
}

// Recommender derives remediation suggestions from a profile.
type Recommender struct {
	t Thresholds
}

// NewRecommender builds a Recommender. An out-of-range suggested delay is
// clamped into the accepted delay bounds.
func NewRecommender(t Thresholds) *Recommender {
	if t.SuggestedDelaySeconds < models.MinDelaySeconds {
		t.SuggestedDelaySeconds = DefaultSuggestedDelaySeconds
	}
	if t.SuggestedDelaySeconds > models.MaxDelaySeconds {
		t.SuggestedDelaySeconds = models.MaxDelaySeconds
	}
	return &Recommender{t: t}
}

// Recommend evaluates every entry against the rules, first match wins:
//
//  1. load > PriorityThreshold and the entry can be disabled: priority, disable
//  2. DelayThreshold <= load <= PriorityThreshold, the entry can be delayed
//     and is not delayed yet: info, delay
//
// Per-entry recommendations are ordered by severity (priority first), load
// descending, name, then ID. Profile-level findings follow in a fixed order.
func (r *Recommender) Recommend(p *models.StartupProfile) []models.Recommendation {
	if p == nil {
		return nil
	}
	var recs []models.Recommendation
	for _, e := range p.Autoruns {
		if rec, ok := r.forAutorun(e); ok {
			recs = append(recs, rec)
		}
	}
	for _, s := range p.Services {
		if rec, ok := r.forService(s); ok {
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.LoadTimeSeconds != b.LoadTimeSeconds {
			return a.LoadTimeSeconds > b.LoadTimeSeconds
		}
		if a.EntryName != b.EntryName {
			return a.EntryName < b.EntryName
		}
		return a.EntryID < b.EntryID
	})

	recs = append(recs, duplicateFindings(p.Autoruns)...)
	if f, ok := r.autoServiceFinding(p.Services); ok {
		recs = append(recs, f)
	}
	return recs
}

func (r *Recommender) forAutorun(e models.StartupEntry) (models.Recommendation, bool) {
	load := e.LoadTimeSeconds
	switch {
	case load > r.t.PriorityThreshold:
		if !e.CanDisable {
			return models.Recommendation{}, false
		}
		return models.Recommendation{
			Text:            fmt.Sprintf("Disable %s: it adds %.1fs to startup", e.Name, load),
			Severity:        models.SeverityPriority,
			EntryID:         e.ID,
			EntryName:       e.Name,
			EntryKind:       models.KindAutorun,
			Action:          models.ActionDisable,
			LoadTimeSeconds: load,
			Rank:            e.Rank,
		}, true
	case load >= r.t.DelayThreshold && e.CanDelay && !e.Status.IsDelayed():
		return models.Recommendation{
			Text:            fmt.Sprintf("Delay %s by %ds: it adds %.1fs to startup", e.Name, r.t.SuggestedDelaySeconds, load),
			Severity:        models.SeverityInfo,
			EntryID:         e.ID,
			EntryName:       e.Name,
			EntryKind:       models.KindAutorun,
			Action:          models.ActionDelay,
			DelaySeconds:    r.t.SuggestedDelaySeconds,
			LoadTimeSeconds: load,
			Rank:            e.Rank,
		}, true
	}
	return models.Recommendation{}, false
}

// forService only applies the disable rule; services cannot be delayed.
func (r *Recommender) forService(s models.ServiceEntry) (models.Recommendation, bool) {
	if s.LoadTimeSeconds <= r.t.PriorityThreshold || !s.CanDisable {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		Text:            fmt.Sprintf("Set service %s to disabled: it adds %.1fs to startup", s.Label(), s.LoadTimeSeconds),
		Severity:        models.SeverityPriority,
		EntryID:         s.ID,
		EntryName:       s.Label(),
		EntryKind:       models.KindService,
		Action:          models.ActionDisable,
		LoadTimeSeconds: s.LoadTimeSeconds,
		Rank:            s.Rank,
	}, true
}

// duplicateFindings reports autorun names registered in more than one
// origin, sorted by name.
func duplicateFindings(entries []models.StartupEntry) []models.Recommendation {
	origins := make(map[string][]string)
	display := make(map[string]string)
	for _, e := range entries {
		key := strings.ToLower(e.Name)
		origins[key] = append(origins[key], e.Origin)
		if _, ok := display[key]; !ok {
			display[key] = e.Name
		}
	}
	keys := make([]string, 0, len(origins))
	for k, v := range origins {
		if len(v) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]models.Recommendation, 0, len(keys))
	for _, k := range keys {
		list := append([]string(nil), origins[k]...)
		sort.Strings(list)
		out = append(out, models.Recommendation{
			Text:     fmt.Sprintf("%s is registered %d times (%s); keep one", display[k], len(list), strings.Join(list, ", ")),
			Severity: models.SeverityInfo,
		})
	}
	return out
}

func (r *Recommender) autoServiceFinding(services []models.ServiceEntry) (models.Recommendation, bool) {
	if r.t.AutoServiceLimit <= 0 {
		return models.Recommendation{}, false
	}
	auto := 0
	for _, s := range services {
		if s.StartupType == models.StartupAutomatic {
			auto++
		}
	}
	if auto <= r.t.AutoServiceLimit {
		return models.Recommendation{}, false
	}
	return models.Recommendation{
		Text:     fmt.Sprintf("%d services start automatically; consider setting non-essential ones to manual", auto),
		Severity: models.SeverityInfo,
	}, true
}
