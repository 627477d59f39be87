package models

import (
	"fmt"
	"strings"
)

// Delay bounds, in seconds, accepted for a Delayed status.
const (
	MinDelaySeconds = 1
	MaxDelaySeconds = 300
)

// State is the launch state of an autorun or service entry.
type State string

const (
	StateEnabled  State = "enabled"
	StateDisabled State = "disabled"
	StateDelayed  State = "delayed"
)

// ParseState maps a capability-reported state string onto a State.
func ParseState(s string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled", "running", "active":
		return StateEnabled, true
	case "disabled":
		return StateDisabled, true
	case "delayed":
		return StateDelayed, true
	default:
		return "", false
	}
}

// Status is Enabled, Disabled or Delayed(seconds).
type Status struct {
	State        State `json:"state" yaml:"state"`
	DelaySeconds int   `json:"delaySeconds,omitempty" yaml:"delaySeconds,omitempty"`
}

// Enabled returns the Enabled status.
func Enabled() Status { return Status{State: StateEnabled} }

// Disabled returns the Disabled status.
func Disabled() Status { return Status{State: StateDisabled} }

// Delayed returns a Delayed status. Callers validate seconds with ValidDelay.
func Delayed(seconds int) Status {
	return Status{State: StateDelayed, DelaySeconds: seconds}
}

// ValidDelay reports whether seconds is inside [MinDelaySeconds, MaxDelaySeconds].
func ValidDelay(seconds int) bool {
	return seconds >= MinDelaySeconds && seconds <= MaxDelaySeconds
}

// Valid checks the status invariants.
func (s Status) Valid() bool {
	switch s.State {
	case StateEnabled, StateDisabled:
		return s.DelaySeconds == 0
	case StateDelayed:
		return ValidDelay(s.DelaySeconds)
	default:
		return false
	}
}

func (s Status) IsEnabled() bool  { return s.State == StateEnabled }
func (s Status) IsDisabled() bool { return s.State == StateDisabled }
func (s Status) IsDelayed() bool  { return s.State == StateDelayed }

func (s Status) String() string {
	if s.State == StateDelayed {
		return fmt.Sprintf("delayed(%ds)", s.DelaySeconds)
	}
	return string(s.State)
}

// StartupType is a service start policy.
type StartupType string

const (
	StartupAutomatic StartupType = "automatic"
	StartupManual    StartupType = "manual"
	StartupDisabled  StartupType = "disabled"
)

// Valid reports whether t is one of the three supported start policies.
func (t StartupType) Valid() bool {
	switch t {
	case StartupAutomatic, StartupManual, StartupDisabled:
		return true
	}
	return false
}

// ParseStartupType accepts the canonical names plus the spellings used by
// sc.exe and systemctl ("auto", "demand", "enabled", "masked").
func ParseStartupType(s string) (StartupType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "automatic", "auto", "enabled", "enabled-runtime":
		return StartupAutomatic, nil
	case "manual", "demand", "static", "indirect":
		return StartupManual, nil
	case "disabled", "masked":
		return StartupDisabled, nil
	default:
		return "", fmt.Errorf("unknown startup type %q", s)
	}
}

// StatusForStartupType derives the launch status of a service from its start policy.
func StatusForStartupType(t StartupType) Status {
	if t == StartupDisabled {
		return Disabled()
	}
	return Enabled()
}
