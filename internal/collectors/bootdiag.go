package collectors

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// Diagnostics-Performance boot event, as emitted by the PowerShell query in
// bootevents_windows.go.
const (
	bootDiagLogName = "Microsoft-Windows-Diagnostics-Performance/Operational"
	bootDiagSource  = "Microsoft-Windows-Diagnostics-Performance"
	bootDiagEventID = 100
)

// bootDiagEvent holds the fields of Event ID 100. Durations are milliseconds.
type bootDiagEvent struct {
	TimeCreated      string `json:"TimeCreated"`
	BootTime         string `json:"BootTime"`
	MainPathBootTime string `json:"MainPathBootTime"`
	BootPostBootTime string `json:"BootPostBootTime"`
}

// decodePowerShellJSON decodes ConvertTo-Json output, which is a bare object
// for a single result and an array otherwise.
func decodePowerShellJSON[T any](output []byte) ([]T, error) {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
		var single T
		if errSingle := json.Unmarshal([]byte(trimmed), &single); errSingle != nil {
			return nil, fmt.Errorf("parse powershell JSON: %w", err)
		}
		rows = []T{single}
	}
	return rows, nil
}

// parseBootDiag converts the most recent Event ID 100 into boot-phase events:
// the main path (firmware, loader and kernel until logon) and the post-boot
// phase (logon until the desktop is idle).
func parseBootDiag(output []byte, fallbackBoot time.Time) ([]models.BootEvent, error) {
	rows, err := decodePowerShellJSON[bootDiagEvent](output)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	diag := rows[0]

	ts := fallbackBoot
	if diag.TimeCreated != "" {
		if parsed, err := time.Parse(time.RFC3339, diag.TimeCreated); err == nil {
			ts = parsed
		}
	}

	mainMs, mainErr := parseMillis(diag.MainPathBootTime)
	postMs, postErr := parseMillis(diag.BootPostBootTime)
	if mainErr != nil && postErr != nil {
		// Older builds only record the total.
		totalMs, err := parseMillis(diag.BootTime)
		if err != nil {
			return nil, fmt.Errorf("boot diagnostics event carries no durations")
		}
		return []models.BootEvent{bootDiagBootEvent(ts, "BootTime", totalMs)}, nil
	}

	var events []models.BootEvent
	if mainErr == nil {
		events = append(events, bootDiagBootEvent(ts, "MainPathBootTime", mainMs))
	}
	if postErr == nil {
		events = append(events, bootDiagBootEvent(ts, "BootPostBootTime", postMs))
	}
	return events, nil
}

func bootDiagBootEvent(ts time.Time, name string, ms float64) models.BootEvent {
	return models.BootEvent{
		Timestamp:       ts,
		Name:            name,
		DurationSeconds: ms / 1000.0,
		Source:          bootDiagSource,
		EventID:         bootDiagEventID,
		LogName:         bootDiagLogName,
	}
}

func parseMillis(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	return strconv.ParseFloat(s, 64)
}
