package collectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// ServiceSource turns service records into validated service entries.
type ServiceSource struct {
	cap       ServiceCapability
	timeout   time.Duration
	protected *Protection
}

// NewServiceSource wraps a service capability.
func NewServiceSource(c ServiceCapability, timeout time.Duration, protected *Protection) *ServiceSource {
	return &ServiceSource{cap: c, timeout: timeout, protected: protected}
}

// Name returns the source name.
func (s *ServiceSource) Name() string { return SourceServices }

// Collect lists services. Records with an empty name, a bad load time or an
// unknown start policy are skipped.
func (s *ServiceSource) Collect(ctx context.Context) ([]models.ServiceEntry, *CollectionError) {
	if s.cap == nil {
		return nil, &CollectionError{Source: SourceServices, Err: ErrUnsupportedPlatform}
	}
	records, err := callWithTimeout(ctx, s.timeout, s.cap.ListServices)
	if err != nil {
		return nil, &CollectionError{Source: SourceServices, Err: err}
	}

	logger := logging.FromContext(ctx, log).With(logging.KeySource, SourceServices)
	entries := make([]models.ServiceEntry, 0, len(records))
	for _, r := range records {
		entry, err := s.toEntry(r)
		if err != nil {
			logger.Warn("skipping service record", "name", r.Name, logging.KeyError, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *ServiceSource) toEntry(r ServiceRecord) (models.ServiceEntry, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return models.ServiceEntry{}, fmt.Errorf("empty service name")
	}
	if err := checkSeconds(r.LoadTimeSeconds); err != nil {
		return models.ServiceEntry{}, err
	}
	startupType, err := models.ParseStartupType(r.StartupType)
	if err != nil {
		return models.ServiceEntry{}, err
	}
	entry := models.ServiceEntry{
		ID:              models.ServiceID(name),
		ServiceName:     name,
		DisplayName:     strings.TrimSpace(r.DisplayName),
		ExecutablePath:  r.ExecutablePath,
		LoadTimeSeconds: r.LoadTimeSeconds,
		Protected:       s.protected.Protected(name, r.ExecutablePath),
		Impact:          models.ImpactFor(r.LoadTimeSeconds),
	}
	entry.SetStartupType(startupType)
	return entry, nil
}

// SetStartupType changes the start policy of the named service.
func (s *ServiceSource) SetStartupType(ctx context.Context, entry models.ServiceEntry, t models.StartupType) error {
	if s.cap == nil {
		return ErrUnsupportedPlatform
	}
	return s.cap.SetStartupType(ctx, entry.ServiceName, t)
}
