// Package analysis fuses collected entries into a startup profile and
// derives remediation recommendations from it. Everything here is pure:
// the same input always produces the same output.
package analysis

import (
	"math"
	"strings"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// Defaults for the total-time estimate.
const (
	DefaultServiceWeight   = 0.4
	DefaultMaxTotalSeconds = 300.0
)

// DefaultBootPhaseMarkers are the substrings that mark a boot event as a
// phase of the boot or logon sequence.
var DefaultBootPhaseMarkers = []string{"boot", "firmware", "loader", "kernel", "userspace", "logon"}

// Policy holds the aggregation constants.
type Policy struct {
	ServiceWeight    float64
	MaxTotalSeconds  float64
	BootPhaseMarkers []string
}

// DefaultPolicy returns the stock aggregation constants.
func DefaultPolicy() Policy {
	return Policy{
		ServiceWeight:    DefaultServiceWeight,
		MaxTotalSeconds:  DefaultMaxTotalSeconds,
		BootPhaseMarkers: append([]string(nil), DefaultBootPhaseMarkers...),
	}
}

// Aggregator merges the three source sequences into a StartupProfile.
type Aggregator struct {
	weight   float64
	maxTotal float64
	markers  []string
}

// NewAggregator builds an Aggregator. Unusable constants fall back to the
// defaults: a non-finite or negative weight, a non-positive cap, or an empty
// marker list.
func NewAggregator(p Policy) *Aggregator {
	a := &Aggregator{weight: p.ServiceWeight, maxTotal: p.MaxTotalSeconds}
	if !finiteNonNegative(a.weight) {
		a.weight = DefaultServiceWeight
	}
	if !finiteNonNegative(a.maxTotal) || a.maxTotal == 0 {
		a.maxTotal = DefaultMaxTotalSeconds
	}
	for _, m := range p.BootPhaseMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			a.markers = append(a.markers, m)
		}
	}
	if len(a.markers) == 0 {
		a.markers = append(a.markers, DefaultBootPhaseMarkers...)
	}
	return a
}

// IsBootPhase reports whether a boot event name contains one of the markers,
// ignoring case.
func (a *Aggregator) IsBootPhase(name string) bool {
	lower := strings.ToLower(name)
	for _, m := range a.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Aggregate ranks copies of the entry sequences and computes the estimated
// total startup time. The inputs are not modified. ScanID, ScannedAt and
// CollectionErrors are left for the caller.
func (a *Aggregator) Aggregate(autoruns []models.StartupEntry, services []models.ServiceEntry, events []models.BootEvent) *models.StartupProfile {
	p := &models.StartupProfile{
		Autoruns:   append([]models.StartupEntry{}, autoruns...),
		Services:   append([]models.ServiceEntry{}, services...),
		BootEvents: append([]models.BootEvent{}, events...),
	}
	models.RankStartupEntries(p.Autoruns)
	models.RankServiceEntries(p.Services)

	var bootTime, itemsTime, servicesTime float64
	for _, ev := range p.BootEvents {
		if a.IsBootPhase(ev.Name) {
			bootTime += ev.DurationSeconds
		}
	}
	for _, e := range p.Autoruns {
		itemsTime += e.LoadTimeSeconds
	}
	for _, s := range p.Services {
		servicesTime += s.LoadTimeSeconds
	}

	p.TotalStartupTimeSeconds = EstimateTotal(bootTime, itemsTime, servicesTime, a.weight, a.maxTotal)
	return p
}

// EstimateTotal computes
//
//	min(max(bootTime, itemsTime + servicesTime*weight), maxTotal)
//
// with negative or NaN sums treated as zero and infinite sums capped, so the
// result is always in [0, maxTotal].
func EstimateTotal(bootTime, itemsTime, servicesTime, weight, maxTotal float64) float64 {
	bootTime = clampSum(bootTime)
	estimate := clampSum(clampSum(itemsTime) + clampSum(servicesTime)*clampSum(weight))
	if maxTotal = clampSum(maxTotal); math.IsInf(maxTotal, 1) {
		maxTotal = DefaultMaxTotalSeconds
	}
	return math.Min(math.Max(bootTime, estimate), maxTotal)
}

func clampSum(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
