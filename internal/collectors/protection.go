package collectors

import (
	"strings"
)

// criticalNames are processes and services the OS needs to reach a usable
// desktop. Entries matching them are reported but never offered for change.
var criticalNames = []string{
	// Windows processes
	"winlogon", "csrss", "smss", "wininit", "services", "lsass", "svchost",
	"dwm", "explorer", "conhost", "audiodg", "spoolsv", "securityhealthsystray",
	// Windows services
	"eventlog", "plugplay", "rpcss", "rpceptmapper", "dcomlaunch", "lsm",
	"lanmanserver", "lanmanworkstation", "bfe", "mpssvc", "windefend",
	"securityhealthservice", "sense",
	// Linux units and session daemons
	"dbus", "dbus-broker", "systemd-journald", "systemd-logind", "systemd-udevd",
	"polkit", "display-manager", "gdm", "sddm", "lightdm", "networkmanager",
	"gnome-keyring-daemon", "at-spi-dbus-bus", "xdg-user-dirs",
}

// Protection decides whether an entry is system-critical.
type Protection struct {
	names map[string]struct{}
}

// NewProtection returns the built-in critical list extended with extra names.
func NewProtection(extra []string) *Protection {
	p := &Protection{names: make(map[string]struct{}, len(criticalNames)+len(extra))}
	for _, n := range criticalNames {
		p.names[n] = struct{}{}
	}
	for _, n := range extra {
		n = normalizeProtectedName(n)
		if n != "" {
			p.names[n] = struct{}{}
		}
	}
	return p
}

// Protected reports whether any of the candidate identifiers (entry name,
// service name, executable path) names a critical entry. A nil Protection
// protects nothing.
func (p *Protection) Protected(candidates ...string) bool {
	if p == nil {
		return false
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := p.names[normalizeProtectedName(c)]; ok {
			return true
		}
		if exe := extractExeName(c); exe != "" {
			if _, ok := p.names[normalizeProtectedName(exe)]; ok {
				return true
			}
		}
	}
	return false
}

func normalizeProtectedName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".service")
	s = strings.TrimSuffix(s, ".desktop")
	return strings.TrimSuffix(s, ".exe")
}
