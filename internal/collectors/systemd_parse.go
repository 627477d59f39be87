package collectors

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// systemdTimeRegex matches systemd-analyze durations like "1.234s", "456ms"
// or "1min 2.5s".
var systemdTimeRegex = regexp.MustCompile(`([\d.]+)(min|ms|s)`)

// systemdAnalyzeRegex parses the "Startup finished in ..." line.
// Groups: firmware, loader, kernel, initrd, userspace, total. Firmware and
// loader are absent on VMs; initrd only appears on initramfs systems.
var systemdAnalyzeRegex = regexp.MustCompile(
	`Startup finished in\s+` +
		`(?:(\S+(?:\s\S+s)?)\s+\(firmware\)\s+\+\s+)?` +
		`(?:(\S+(?:\s\S+s)?)\s+\(loader\)\s+\+\s+)?` +
		`(?:(\S+(?:\s\S+s)?)\s+\(kernel\)\s+\+\s+)?` +
		`(?:(\S+(?:\s\S+s)?)\s+\(initrd\)\s+\+\s+)?` +
		`(\S+(?:\s\S+s)?)\s+\(userspace\)\s+=\s+(\S+(?:\s\S+s)?)`,
)

const systemdSource = "systemd-analyze"

// parseSystemdTime converts a systemd duration string to seconds. It sums
// every component so "1min 2.5s" becomes 62.5.
func parseSystemdTime(s string) float64 {
	var total float64
	for _, m := range systemdTimeRegex.FindAllStringSubmatch(s, -1) {
		val, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		switch m[2] {
		case "min":
			total += val * 60
		case "ms":
			total += val / 1000.0
		default:
			total += val
		}
	}
	return total
}

// parseSystemdAnalyze turns systemd-analyze output into one boot event per
// phase. The total is not emitted; it is the sum of the phases.
func parseSystemdAnalyze(output string, boot time.Time) []models.BootEvent {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Startup finished in") {
			continue
		}
		m := systemdAnalyzeRegex.FindStringSubmatch(line)
		if len(m) < 7 {
			return nil
		}
		phases := []string{"firmware", "loader", "kernel", "initrd", "userspace"}
		var events []models.BootEvent
		for i, phase := range phases {
			raw := m[i+1]
			if raw == "" {
				continue
			}
			events = append(events, models.BootEvent{
				Timestamp:       boot,
				Name:            phase,
				DurationSeconds: parseSystemdTime(raw),
				Source:          systemdSource,
				LogName:         "systemd",
			})
		}
		return events
	}
	return nil
}

// parseSystemdBlame returns unit name (without .service) to seconds from
// "systemd-analyze blame" output.
func parseSystemdBlame(output string) map[string]float64 {
	result := make(map[string]float64)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Format: "1.234s unit.service" or "1min 2.100s unit.service"
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		unit := fields[len(fields)-1]
		if !strings.HasSuffix(unit, ".service") {
			continue
		}
		seconds := parseSystemdTime(strings.Join(fields[:len(fields)-1], " "))
		if seconds > 0 {
			result[strings.TrimSuffix(unit, ".service")] = seconds
		}
	}
	return result
}

// parseUnitFileStates maps unit name (without .service) to the raw
// unit-file state from "systemctl list-unit-files --type=service".
func parseUnitFileStates(output string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		unit := fields[0]
		if !strings.HasSuffix(unit, ".service") || strings.Contains(unit, "@.") {
			// Template units cannot be started by themselves.
			continue
		}
		result[strings.TrimSuffix(unit, ".service")] = strings.ToLower(fields[1])
	}
	return result
}

// linuxStartupType maps a unit-file state onto a start policy. Disabled
// units can still be pulled in by others, so they count as manual; only a
// masked unit is fully disabled. The second result is false for states that
// are not boot-time decisions (generated, transient, alias).
func linuxStartupType(state string) (models.StartupType, bool) {
	switch state {
	case "enabled", "enabled-runtime", "linked", "linked-runtime":
		return models.StartupAutomatic, true
	case "disabled", "static", "indirect":
		return models.StartupManual, true
	case "masked", "masked-runtime":
		return models.StartupDisabled, true
	default:
		return "", false
	}
}
