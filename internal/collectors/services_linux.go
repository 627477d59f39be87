//go:build linux

package collectors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// systemdServices lists and reconfigures systemd service units.
type systemdServices struct {
	run commandRunner
}

func (s *systemdServices) ListServices(ctx context.Context) ([]ServiceRecord, error) {
	out, err := s.run(ctx, "systemctl", "list-unit-files",
		"--type=service", "--no-legend", "--no-pager", "--plain")
	if err != nil {
		return nil, fmt.Errorf("systemctl list-unit-files failed: %w", err)
	}
	states := parseUnitFileStates(string(out))

	// Blame is optional; without it load times stay at zero.
	var blame map[string]float64
	if blameOut, err := s.run(ctx, "systemd-analyze", "blame", "--no-pager"); err == nil {
		blame = parseSystemdBlame(string(blameOut))
	} else {
		log.Debug("systemd-analyze blame unavailable", logging.KeyError, err)
	}

	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]ServiceRecord, 0, len(names))
	for _, name := range names {
		startupType, ok := linuxStartupType(states[name])
		if !ok {
			continue
		}
		records = append(records, ServiceRecord{
			Name:            name,
			DisplayName:     name,
			LoadTimeSeconds: blame[name],
			StartupType:     string(startupType),
		})
	}
	return records, nil
}

// SetStartupType maps start policies onto systemctl verbs: automatic is
// unmask+enable, manual is unmask+disable, disabled is mask. When a later
// step fails the unit is put back to its previous policy.
func (s *systemdServices) SetStartupType(ctx context.Context, name string, t models.StartupType) error {
	if !safeServiceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid service name %q: only alphanumeric, dash, underscore, dot, and @ are allowed", name)
	}
	unit := name
	if !strings.HasSuffix(unit, ".service") {
		unit += ".service"
	}

	steps, err := systemctlSteps(t)
	if err != nil {
		return err
	}
	previous := s.currentType(ctx, unit)

	for i, verb := range steps {
		if _, err := s.run(ctx, "systemctl", verb, unit); err != nil {
			if i > 0 && previous != "" {
				s.restore(ctx, unit, previous)
			}
			return fmt.Errorf("systemctl %s %s failed: %w", verb, unit, err)
		}
	}
	return nil
}

func systemctlSteps(t models.StartupType) ([]string, error) {
	switch t {
	case models.StartupAutomatic:
		return []string{"unmask", "enable"}, nil
	case models.StartupManual:
		return []string{"unmask", "disable"}, nil
	case models.StartupDisabled:
		return []string{"mask"}, nil
	default:
		return nil, fmt.Errorf("unsupported startup type %q", t)
	}
}

func (s *systemdServices) currentType(ctx context.Context, unit string) models.StartupType {
	// is-enabled exits non-zero for disabled and masked units but still
	// prints the state.
	out, _ := s.run(ctx, "systemctl", "is-enabled", unit)
	t, ok := linuxStartupType(strings.TrimSpace(string(out)))
	if !ok {
		return ""
	}
	return t
}

func (s *systemdServices) restore(ctx context.Context, unit string, previous models.StartupType) {
	steps, err := systemctlSteps(previous)
	if err != nil {
		return
	}
	for _, verb := range steps {
		if _, err := s.run(ctx, "systemctl", verb, unit); err != nil {
			log.Error("failed to restore service start policy", "unit", unit, "startupType", string(previous), logging.KeyError, err)
			return
		}
	}
}
