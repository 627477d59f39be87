package collectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// startupWindow bounds how long after boot a process may have started and
// still count as part of startup.
const startupWindow = 10 * time.Minute

// minLoadSeconds is the floor for a measured start offset.
const minLoadSeconds = 0.1

// bootTimestamp returns the time the machine booted.
func bootTimestamp(ctx context.Context) (time.Time, error) {
	secs, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("read boot time: %w", err)
	}
	return time.Unix(int64(secs), 0), nil
}

// processStartOffsets maps lower-cased process names (no extension) to the
// earliest number of seconds after boot at which a process of that name
// started. Processes started outside the startup window are ignored.
func processStartOffsets(ctx context.Context) (map[string]float64, error) {
	boot, err := bootTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	offsets := make(map[string]float64)
	for _, p := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		created, err := p.CreateTimeWithContext(ctx)
		if err != nil {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		addStartOffset(offsets, name, boot, time.UnixMilli(created))
	}
	return offsets, nil
}

func addStartOffset(offsets map[string]float64, name string, boot, started time.Time) {
	if !started.After(boot) || started.Sub(boot) > startupWindow {
		return
	}
	key := strings.ToLower(extractExeName(name))
	if key == "" {
		return
	}
	secs := started.Sub(boot).Seconds()
	if secs < minLoadSeconds {
		secs = minLoadSeconds
	}
	if cur, ok := offsets[key]; !ok || secs < cur {
		offsets[key] = secs
	}
}

// loadTimeFor looks up the measured start offset for a command line.
func loadTimeFor(offsets map[string]float64, command string) float64 {
	if len(offsets) == 0 {
		return 0
	}
	return offsets[strings.ToLower(extractExeName(command))]
}
