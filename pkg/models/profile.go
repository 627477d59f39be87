package models

import "time"

// SourceError records a data source that could not be read during a scan.
type SourceError struct {
	Source  string `json:"source" yaml:"source"`
	Message string `json:"message" yaml:"message"`
}

// StartupProfile is the aggregated snapshot of one scan. Values are copies;
// mutating a profile never affects the live inventory.
type StartupProfile struct {
	ScanID                  string         `json:"scanId" yaml:"scanId"`
	ScannedAt               time.Time      `json:"scannedAt" yaml:"scannedAt"`
	Autoruns                []StartupEntry `json:"autoruns" yaml:"autoruns"`
	Services                []ServiceEntry `json:"services" yaml:"services"`
	BootEvents              []BootEvent    `json:"bootEvents" yaml:"bootEvents"`
	TotalStartupTimeSeconds float64        `json:"totalStartupTimeSeconds" yaml:"totalStartupTimeSeconds"`
	CollectionErrors        []SourceError  `json:"collectionErrors,omitempty" yaml:"collectionErrors,omitempty"`
}

// Clone returns a deep copy of p.
func (p *StartupProfile) Clone() *StartupProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Autoruns = append([]StartupEntry(nil), p.Autoruns...)
	c.Services = append([]ServiceEntry(nil), p.Services...)
	c.BootEvents = append([]BootEvent(nil), p.BootEvents...)
	c.CollectionErrors = append([]SourceError(nil), p.CollectionErrors...)
	return &c
}

// Partial reports whether at least one source failed during the scan.
func (p *StartupProfile) Partial() bool {
	return len(p.CollectionErrors) > 0
}
