package models

import (
	"fmt"
	"strings"
)

// Severity orders recommendations. Rendering is left to the caller.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityPriority
)

func (s Severity) String() string {
	switch s {
	case SeverityPriority:
		return "priority"
	default:
		return "info"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "priority":
		*s = SeverityPriority
	case "info":
		*s = SeverityInfo
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Action is a remediation that can be applied to one entry.
type Action string

const (
	ActionDisable          Action = "disable"
	ActionDelay            Action = "delay"
	ActionEnable           Action = "enable"
	ActionConfigureService Action = "configure_service"
)

// ParseAction maps user input onto an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disable":
		return ActionDisable, nil
	case "delay":
		return ActionDelay, nil
	case "enable":
		return ActionEnable, nil
	case "configure", "configure_service", "configure-service":
		return ActionConfigureService, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Recommendation is one remediation suggestion. Profile-level findings have
// an empty EntryID and Action.
type Recommendation struct {
	Text            string    `json:"text" yaml:"text"`
	Severity        Severity  `json:"severity" yaml:"severity"`
	EntryID         string    `json:"entryId,omitempty" yaml:"entryId,omitempty"`
	EntryName       string    `json:"entryName,omitempty" yaml:"entryName,omitempty"`
	EntryKind       EntryKind `json:"entryKind,omitempty" yaml:"entryKind,omitempty"`
	Action          Action    `json:"action,omitempty" yaml:"action,omitempty"`
	DelaySeconds    int       `json:"delaySeconds,omitempty" yaml:"delaySeconds,omitempty"`
	LoadTimeSeconds float64   `json:"loadTimeSeconds,omitempty" yaml:"loadTimeSeconds,omitempty"`
	Rank            int       `json:"rank,omitempty" yaml:"rank,omitempty"`
}
