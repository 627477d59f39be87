//go:build windows

package collectors

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// scmServices reads and reconfigures services through the Service Control
// Manager.
type scmServices struct{}

func (scmServices) ListServices(ctx context.Context) ([]ServiceRecord, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect to SCM: %w", err)
	}
	defer m.Disconnect()

	names, err := m.ListServices()
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	sort.Strings(names)

	boot, bootErr := bootTimestamp(ctx)

	records := make([]ServiceRecord, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s, err := m.OpenService(name)
		if err != nil {
			continue
		}
		cfg, err := s.Config()
		if err != nil {
			s.Close()
			continue
		}
		status, err := s.Query()
		s.Close()

		var load float64
		if err == nil && bootErr == nil && status.ProcessId != 0 {
			load = pidStartOffset(ctx, int32(status.ProcessId), boot)
		}
		records = append(records, ServiceRecord{
			Name:            name,
			DisplayName:     cfg.DisplayName,
			ExecutablePath:  executablePath(cfg.BinaryPathName),
			LoadTimeSeconds: load,
			StartupType:     windowsStartupType(cfg.StartType),
		})
	}
	return records, nil
}

// windowsStartupType maps SCM start types; boot and system drivers count as
// automatic.
func windowsStartupType(startType uint32) string {
	switch startType {
	case mgr.StartAutomatic, windows.SERVICE_BOOT_START, windows.SERVICE_SYSTEM_START:
		return string(models.StartupAutomatic)
	case mgr.StartManual:
		return string(models.StartupManual)
	case mgr.StartDisabled:
		return string(models.StartupDisabled)
	default:
		return "unknown"
	}
}

func pidStartOffset(ctx context.Context, pid int32, boot time.Time) float64 {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return 0
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return 0
	}
	started := time.UnixMilli(created)
	if !started.After(boot) || started.Sub(boot) > startupWindow {
		return 0
	}
	if secs := started.Sub(boot).Seconds(); secs > minLoadSeconds {
		return secs
	}
	return minLoadSeconds
}

func (scmServices) SetStartupType(ctx context.Context, name string, t models.StartupType) error {
	var startType uint32
	switch t {
	case models.StartupAutomatic:
		startType = mgr.StartAutomatic
	case models.StartupManual:
		startType = mgr.StartManual
	case models.StartupDisabled:
		startType = mgr.StartDisabled
	default:
		return fmt.Errorf("unsupported startup type %q", t)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("open service %s: %w", name, err)
	}
	defer s.Close()

	cfg, err := s.Config()
	if err != nil {
		return fmt.Errorf("query config %s: %w", name, err)
	}
	applyStartType(&cfg, startType)
	if err := s.UpdateConfig(cfg); err != nil {
		return fmt.Errorf("update config %s: %w", name, err)
	}
	return nil
}

// applyStartType changes only the start type. DelayedAutoStart is kept so a
// service moved back to Automatic resumes its delayed-start preference.
func applyStartType(cfg *mgr.Config, startType uint32) {
	cfg.StartType = startType
}
