package collectors

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
)

// Explorer records the user's enable/disable choice for Run key and Startup
// folder items as 12-byte binary values: a flag DWORD followed by a FILETIME
// of the change. An even first byte means enabled, an odd one disabled.
const approvedValueLen = 12

const (
	approvedEnabledFlag  = 0x02
	approvedDisabledFlag = 0x03
)

// filetimeEpochDelta is the number of 100ns intervals between 1601-01-01
// and the Unix epoch.
const filetimeEpochDelta = 116444736000000000

// approvedIsEnabled interprets a StartupApproved value. Missing or short
// values mean the item was never toggled and is enabled.
func approvedIsEnabled(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	return data[0]&0x01 == 0
}

// approvedValue builds a StartupApproved value for the given state.
func approvedValue(enabled bool, at time.Time) []byte {
	buf := make([]byte, approvedValueLen)
	if enabled {
		buf[0] = approvedEnabledFlag
		return buf
	}
	buf[0] = approvedDisabledFlag
	ft := uint64(at.UnixNano()/100) + filetimeEpochDelta
	binary.LittleEndian.PutUint64(buf[4:], ft)
	return buf
}

// delayedTaskFolder groups the logon tasks that launch delayed entries.
const delayedTaskFolder = `StartupOptimizer`

var taskNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9 ._-]`)

// delayedTaskName derives the scheduled task name for an entry. The origin
// hash keeps same-named entries from different keys or folders apart.
func delayedTaskName(origin, name string) string {
	safe := taskNameUnsafe.ReplaceAllString(name, "_")
	lower := strings.ToLower(origin)
	kind := "run"
	if strings.Contains(lower, `start menu`) {
		kind = "folder"
	}
	h := fnv.New32a()
	h.Write([]byte(lower))
	return fmt.Sprintf(`%s\%s-%s-%08x`, delayedTaskFolder, kind, strings.TrimSpace(safe), h.Sum32())
}

// formatTaskDelay renders seconds in the mmmm:ss form schtasks expects.
func formatTaskDelay(seconds int) string {
	return fmt.Sprintf("%04d:%02d", seconds/60, seconds%60)
}
