package collectors

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// AutorunSource turns autorun records into validated startup entries.
type AutorunSource struct {
	cap       AutorunCapability
	timeout   time.Duration
	protected *Protection
}

// NewAutorunSource wraps an autorun capability. A zero timeout uses the
// default of five seconds.
func NewAutorunSource(c AutorunCapability, timeout time.Duration, protected *Protection) *AutorunSource {
	return &AutorunSource{cap: c, timeout: timeout, protected: protected}
}

// Name returns the source name.
func (s *AutorunSource) Name() string { return SourceAutoruns }

// Collect lists autorun entries. Malformed records are skipped. When the
// capability fails or times out the result is empty and the error is set.
func (s *AutorunSource) Collect(ctx context.Context) ([]models.StartupEntry, *CollectionError) {
	if s.cap == nil {
		return nil, &CollectionError{Source: SourceAutoruns, Err: ErrUnsupportedPlatform}
	}
	records, err := callWithTimeout(ctx, s.timeout, s.cap.ListAutoruns)
	if err != nil {
		return nil, &CollectionError{Source: SourceAutoruns, Err: err}
	}

	logger := logging.FromContext(ctx, log).With(logging.KeySource, SourceAutoruns)
	entries := make([]models.StartupEntry, 0, len(records))
	for _, r := range records {
		entry, err := s.toEntry(r)
		if err != nil {
			logger.Warn("skipping autorun record", "name", r.Name, "origin", r.Origin, logging.KeyError, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *AutorunSource) toEntry(r AutorunRecord) (models.StartupEntry, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return models.StartupEntry{}, fmt.Errorf("empty name")
	}
	if err := checkSeconds(r.LoadTimeSeconds); err != nil {
		return models.StartupEntry{}, err
	}
	state, ok := models.ParseState(r.State)
	if !ok {
		return models.StartupEntry{}, fmt.Errorf("unknown state %q", r.State)
	}
	var status models.Status
	switch state {
	case models.StateDelayed:
		if !models.ValidDelay(r.DelaySeconds) {
			return models.StartupEntry{}, fmt.Errorf("delay %ds outside %d..%d", r.DelaySeconds, models.MinDelaySeconds, models.MaxDelaySeconds)
		}
		status = models.Delayed(r.DelaySeconds)
	case models.StateDisabled:
		status = models.Disabled()
	default:
		status = models.Enabled()
	}

	exe := r.ExecutablePath
	if exe == "" {
		exe = executablePath(r.Command)
	}
	entry := models.StartupEntry{
		ID:              models.AutorunID(r.Origin, name),
		Name:            name,
		ExecutablePath:  exe,
		Command:         strings.TrimSpace(r.Command),
		Origin:          r.Origin,
		Publisher:       r.Publisher,
		Version:         r.Version,
		LoadTimeSeconds: r.LoadTimeSeconds,
		Protected:       s.protected.Protected(name, exe),
		Impact:          models.ImpactFor(r.LoadTimeSeconds),
	}
	entry.SetStatus(status)
	return entry, nil
}

// Disable turns off the registration behind entry.
func (s *AutorunSource) Disable(ctx context.Context, entry models.StartupEntry) error {
	if s.cap == nil {
		return ErrUnsupportedPlatform
	}
	return s.cap.DisableAutorun(ctx, refFor(entry))
}

// Enable restores normal launch at logon.
func (s *AutorunSource) Enable(ctx context.Context, entry models.StartupEntry) error {
	if s.cap == nil {
		return ErrUnsupportedPlatform
	}
	return s.cap.EnableAutorun(ctx, refFor(entry))
}

// Delay postpones launch by seconds after logon.
func (s *AutorunSource) Delay(ctx context.Context, entry models.StartupEntry, seconds int) error {
	if s.cap == nil {
		return ErrUnsupportedPlatform
	}
	return s.cap.DelayAutorun(ctx, refFor(entry), seconds)
}

func refFor(e models.StartupEntry) AutorunRef {
	return AutorunRef{Name: e.Name, Origin: e.Origin, ExecutablePath: e.ExecutablePath, Command: e.Command}
}

// checkSeconds rejects load times and durations that cannot be summed.
func checkSeconds(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite duration %v", v)
	}
	if v < 0 {
		return fmt.Errorf("negative duration %v", v)
	}
	return nil
}
