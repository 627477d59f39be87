//go:build windows

package privilege

import "golang.org/x/sys/windows"

// isElevated returns true if the process token is elevated (UAC "Run as
// administrator" or a service running as LocalSystem).
func isElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
