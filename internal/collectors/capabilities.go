package collectors

import (
	"context"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// AutorunRecord is one auto-launch registration as reported by the OS,
// before validation.
type AutorunRecord struct {
	Name            string
	Command         string // full command line as registered
	ExecutablePath  string
	Origin          string // registry value path, startup folder file or .desktop file
	Publisher       string
	Version         string
	LoadTimeSeconds float64
	State           string // "enabled", "disabled" or "delayed"
	DelaySeconds    int
}

// AutorunRef identifies an autorun registration for mutation.
type AutorunRef struct {
	Name           string
	Origin         string
	ExecutablePath string
	Command        string
}

// AutorunCapability enumerates and mutates auto-launch registrations.
type AutorunCapability interface {
	ListAutoruns(ctx context.Context) ([]AutorunRecord, error)
	DisableAutorun(ctx context.Context, ref AutorunRef) error
	EnableAutorun(ctx context.Context, ref AutorunRef) error
	DelayAutorun(ctx context.Context, ref AutorunRef, seconds int) error
}

// ServiceRecord is one background service as reported by the OS.
type ServiceRecord struct {
	Name            string
	DisplayName     string
	ExecutablePath  string
	LoadTimeSeconds float64
	StartupType     string
}

// ServiceCapability enumerates services and changes their start policy.
type ServiceCapability interface {
	ListServices(ctx context.Context) ([]ServiceRecord, error)
	SetStartupType(ctx context.Context, name string, startupType models.StartupType) error
}

// EventLogCapability reads recent boot-phase duration records.
type EventLogCapability interface {
	ReadBootEvents(ctx context.Context) ([]models.BootEvent, error)
}

// Capabilities bundles the three OS capabilities for one platform.
type Capabilities struct {
	Autoruns AutorunCapability
	Services ServiceCapability
	Events   EventLogCapability
}

// PlatformCapabilities returns the capabilities for the running OS.
// Platform-specific implementations are in capabilities_<platform>.go files.
func PlatformCapabilities() Capabilities {
	return platformCapabilities()
}
