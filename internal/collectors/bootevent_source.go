package collectors

import (
	"context"
	"strings"
	"time"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// BootEventSource reads boot-phase records. It has no mutation surface.
type BootEventSource struct {
	cap     EventLogCapability
	timeout time.Duration
}

// NewBootEventSource wraps an event log capability.
func NewBootEventSource(c EventLogCapability, timeout time.Duration) *BootEventSource {
	return &BootEventSource{cap: c, timeout: timeout}
}

// Name returns the source name.
func (s *BootEventSource) Name() string { return SourceBootEvents }

// Collect returns the boot events with a name and a finite, non-negative duration.
func (s *BootEventSource) Collect(ctx context.Context) ([]models.BootEvent, *CollectionError) {
	if s.cap == nil {
		return nil, &CollectionError{Source: SourceBootEvents, Err: ErrUnsupportedPlatform}
	}
	events, err := callWithTimeout(ctx, s.timeout, s.cap.ReadBootEvents)
	if err != nil {
		return nil, &CollectionError{Source: SourceBootEvents, Err: err}
	}

	logger := logging.FromContext(ctx, log).With(logging.KeySource, SourceBootEvents)
	out := make([]models.BootEvent, 0, len(events))
	for _, ev := range events {
		if strings.TrimSpace(ev.Name) == "" {
			logger.Warn("skipping boot event without name", "eventId", ev.EventID)
			continue
		}
		if err := checkSeconds(ev.DurationSeconds); err != nil {
			logger.Warn("skipping boot event", "name", ev.Name, logging.KeyError, err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
