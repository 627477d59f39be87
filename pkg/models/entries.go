package models

import (
	"strings"
	"time"
)

// EntryKind distinguishes the two mutable entry families.
type EntryKind string

const (
	KindAutorun EntryKind = "autorun"
	KindService EntryKind = "service"
)

// Impact is a coarse label derived from load time.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
	ImpactNone   Impact = "none"
)

// ImpactFor classifies a load time in seconds.
func ImpactFor(loadSeconds float64) Impact {
	switch {
	case loadSeconds >= 5.0:
		return ImpactHigh
	case loadSeconds >= 2.0:
		return ImpactMedium
	case loadSeconds >= 0.5:
		return ImpactLow
	default:
		return ImpactNone
	}
}

// StartupEntry is a program registered to launch at user logon.
type StartupEntry struct {
	ID              string  `json:"id" yaml:"id"`
	Name            string  `json:"name" yaml:"name"`
	ExecutablePath  string  `json:"executablePath,omitempty" yaml:"executablePath,omitempty"`
	Command         string  `json:"command,omitempty" yaml:"command,omitempty"`
	Origin          string  `json:"origin" yaml:"origin"` // registry key, startup folder or autostart dir
	Publisher       string  `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Version         string  `json:"version,omitempty" yaml:"version,omitempty"`
	LoadTimeSeconds float64 `json:"loadTimeSeconds" yaml:"loadTimeSeconds"`
	Status          Status  `json:"status" yaml:"status"`
	CanDisable      bool    `json:"canDisable" yaml:"canDisable"`
	CanDelay        bool    `json:"canDelay" yaml:"canDelay"`
	Protected       bool    `json:"protected,omitempty" yaml:"protected,omitempty"`
	Impact          Impact  `json:"impact" yaml:"impact"`
	Rank            int     `json:"rank" yaml:"rank"`
}

// SetStatus moves the entry to st and recomputes the flags that depend on it.
// A disabled entry can be neither disabled nor delayed again.
func (e *StartupEntry) SetStatus(st Status) {
	e.Status = st
	e.CanDisable = !e.Protected && !st.IsDisabled()
	e.CanDelay = !e.Protected && !st.IsDisabled()
}

// ServiceEntry is an OS-managed background service.
type ServiceEntry struct {
	ID              string      `json:"id" yaml:"id"`
	ServiceName     string      `json:"serviceName" yaml:"serviceName"`
	DisplayName     string      `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	ExecutablePath  string      `json:"executablePath,omitempty" yaml:"executablePath,omitempty"`
	LoadTimeSeconds float64     `json:"loadTimeSeconds" yaml:"loadTimeSeconds"`
	Status          Status      `json:"status" yaml:"status"`
	StartupType     StartupType `json:"startupType" yaml:"startupType"`
	CanDisable      bool        `json:"canDisable" yaml:"canDisable"`
	Protected       bool        `json:"protected,omitempty" yaml:"protected,omitempty"`
	Impact          Impact      `json:"impact" yaml:"impact"`
	Rank            int         `json:"rank" yaml:"rank"`
}

// SetStartupType applies a start policy and the status derived from it.
func (s *ServiceEntry) SetStartupType(t StartupType) {
	s.StartupType = t
	s.Status = StatusForStartupType(t)
	s.CanDisable = !s.Protected && t != StartupDisabled
}

// Label returns the name shown to users: the display name when present.
func (s ServiceEntry) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ServiceName
}

// BootEvent is a read-only record of one boot or logon phase.
type BootEvent struct {
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	Name            string    `json:"name" yaml:"name"`
	DurationSeconds float64   `json:"durationSeconds" yaml:"durationSeconds"`
	Source          string    `json:"source,omitempty" yaml:"source,omitempty"`
	EventID         int       `json:"eventId,omitempty" yaml:"eventId,omitempty"`
	LogName         string    `json:"logName,omitempty" yaml:"logName,omitempty"`
}

// AutorunID builds the identifier of an autorun entry. It is stable across
// scans so callers can act on an entry seen in an earlier snapshot.
func AutorunID(origin, name string) string {
	return string(KindAutorun) + ":" + strings.ToLower(origin) + "|" + strings.ToLower(name)
}

// ServiceID builds the identifier of a service entry.
func ServiceID(serviceName string) string {
	return string(KindService) + ":" + strings.ToLower(serviceName)
}

// KindOf returns the entry family encoded in id.
func KindOf(id string) (EntryKind, bool) {
	switch {
	case strings.HasPrefix(id, string(KindAutorun)+":"):
		return KindAutorun, true
	case strings.HasPrefix(id, string(KindService)+":"):
		return KindService, true
	default:
		return "", false
	}
}
