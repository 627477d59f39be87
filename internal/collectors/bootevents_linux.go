//go:build linux

package collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// systemdBootEvents reads boot phases from systemd-analyze.
type systemdBootEvents struct {
	run      commandRunner
	bootTime func(ctx context.Context) (time.Time, error)
}

func (s *systemdBootEvents) ReadBootEvents(ctx context.Context) ([]models.BootEvent, error) {
	out, err := s.run(ctx, "systemd-analyze", "time", "--no-pager")
	if err != nil {
		// Still booting or not a systemd host.
		return nil, fmt.Errorf("systemd-analyze failed: %w", err)
	}
	boot, err := s.bootTime(ctx)
	if err != nil {
		log.Debug("boot timestamp unavailable", logging.KeyError, err)
	}
	return parseSystemdAnalyze(string(out), boot), nil
}
