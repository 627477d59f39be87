//go:build !windows

package privilege

import "golang.org/x/sys/unix"

// isElevated returns true if the effective UID is 0 (root).
func isElevated() bool {
	return unix.Geteuid() == 0
}
