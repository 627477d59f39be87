// Package health tracks the outcome of the last collection from each
// startup data source.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
)

var log = logging.L("health")

// Status represents the health status of a source.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
	Unknown   Status = "unknown"
)

// Check stores the latest result for a named source.
type Check struct {
	Name      string        `json:"name" yaml:"name"`
	Status    Status        `json:"status" yaml:"status"`
	Message   string        `json:"message,omitempty" yaml:"message,omitempty"`
	Items     int           `json:"items" yaml:"items"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	UpdatedAt time.Time     `json:"updatedAt" yaml:"updatedAt"`
}

// Monitor tracks checks for multiple sources.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
	now    func() time.Time
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
		now:    time.Now,
	}
}

// RecordCollection records one collection outcome: an error is Unhealthy,
// an empty result Degraded, anything else Healthy.
func (m *Monitor) RecordCollection(name string, items int, took time.Duration, err error) {
	c := Check{Name: name, Items: items, Duration: took}
	switch {
	case err != nil:
		c.Status = Unhealthy
		c.Message = err.Error()
	case items == 0:
		c.Status = Degraded
		c.Message = "no entries returned"
	default:
		c.Status = Healthy
	}
	m.store(c)
}

func (m *Monitor) store(c Check) {
	m.mu.Lock()
	c.UpdatedAt = m.now()
	m.checks[c.Name] = c
	m.mu.Unlock()

	if c.Status != Healthy {
		log.Warn("source health degraded", logging.KeySource, c.Name, "status", string(c.Status), "message", c.Message)
	}
}

func (m *Monitor) overallLocked() Status {
	if len(m.checks) == 0 {
		return Unknown
	}
	worst := Healthy
	for _, c := range m.checks {
		if worse(c.Status, worst) {
			worst = c.Status
		}
	}
	return worst
}

// Report is a consistent view of every source and the worst status among
// them.
type Report struct {
	Status  Status  `json:"status" yaml:"status"`
	Sources []Check `json:"sources" yaml:"sources"`
}

// Summary returns the overall status and every check sorted by name, read
// under one lock so they agree with each other. The overall status is
// Unknown until something has been recorded.
func (m *Monitor) Summary() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make([]Check, 0, len(m.checks))
	for _, c := range m.checks {
		sources = append(sources, c)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return Report{Status: m.overallLocked(), Sources: sources}
}

// worse returns true if a is worse than b. Unknown ranks worst because a
// source that never reported cannot be trusted.
func worse(a, b Status) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	case Unknown:
		return 3
	default:
		return 0
	}
}
