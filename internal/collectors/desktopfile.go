package collectors

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

const desktopEntrySection = "[Desktop Entry]"

// Keys read and written in XDG autostart entries.
const (
	desktopKeyName         = "Name"
	desktopKeyExec         = "Exec"
	desktopKeyHidden       = "Hidden"
	desktopKeyEnabledGnome = "X-GNOME-Autostart-enabled"
	desktopKeyDelayGnome   = "X-GNOME-Autostart-Delay"
	desktopKeyComment      = "Comment"
)

// desktopFile is an autostart .desktop file kept as lines so edits preserve
// keys, comments and localized values that are not touched.
type desktopFile struct {
	lines []string
}

func parseDesktopFile(data []byte) *desktopFile {
	f := &desktopFile{}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		f.lines = append(f.lines, scanner.Text())
	}
	return f
}

// sectionBounds returns the line range [start, end) of the [Desktop Entry]
// group, start being the header line. start is -1 when the group is absent.
func (f *desktopFile) sectionBounds() (int, int) {
	start := -1
	for i, line := range f.lines {
		trimmed := strings.TrimSpace(line)
		if start < 0 {
			if trimmed == desktopEntrySection {
				start = i
			}
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			return start, i
		}
	}
	if start < 0 {
		return -1, -1
	}
	return start, len(f.lines)
}

// Get returns the unlocalized value of key in the [Desktop Entry] group.
func (f *desktopFile) Get(key string) (string, bool) {
	start, end := f.sectionBounds()
	if start < 0 {
		return "", false
	}
	for _, line := range f.lines[start+1 : end] {
		k, v, ok := splitDesktopLine(line)
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}

// Bool reads a boolean key; missing or malformed values return def.
func (f *desktopFile) Bool(key string, def bool) bool {
	v, ok := f.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// Set replaces key in place or appends it to the [Desktop Entry] group.
func (f *desktopFile) Set(key, value string) {
	start, end := f.sectionBounds()
	if start < 0 {
		f.lines = append([]string{desktopEntrySection, key + "=" + value}, f.lines...)
		return
	}
	for i := start + 1; i < end; i++ {
		k, _, ok := splitDesktopLine(f.lines[i])
		if ok && k == key {
			f.lines[i] = key + "=" + value
			return
		}
	}
	// Insert after the last non-blank line of the group.
	at := end
	for at > start+1 && strings.TrimSpace(f.lines[at-1]) == "" {
		at--
	}
	f.lines = append(f.lines[:at], append([]string{key + "=" + value}, f.lines[at:]...)...)
}

// Unset removes key from the [Desktop Entry] group.
func (f *desktopFile) Unset(key string) {
	start, end := f.sectionBounds()
	if start < 0 {
		return
	}
	for i := start + 1; i < end; i++ {
		k, _, ok := splitDesktopLine(f.lines[i])
		if ok && k == key {
			f.lines = append(f.lines[:i], f.lines[i+1:]...)
			return
		}
	}
}

// Bytes renders the file with a trailing newline.
func (f *desktopFile) Bytes() []byte {
	return []byte(strings.Join(f.lines, "\n") + "\n")
}

func splitDesktopLine(line string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	k, v, ok := strings.Cut(trimmed, "=")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(k), strings.TrimSpace(v), true
}

// desktopAutorun is the launch state encoded in an autostart entry.
type desktopAutorun struct {
	Name         string
	Exec         string
	Comment      string
	Disabled     bool
	DelaySeconds int
}

// readDesktopAutorun extracts the launch state from an autostart entry.
// Hidden=true or X-GNOME-Autostart-enabled=false means disabled; a positive
// X-GNOME-Autostart-Delay means delayed.
func readDesktopAutorun(f *desktopFile, fallbackName string) (desktopAutorun, error) {
	var a desktopAutorun
	if start, _ := f.sectionBounds(); start < 0 {
		return a, fmt.Errorf("missing %s group", desktopEntrySection)
	}
	a.Name, _ = f.Get(desktopKeyName)
	if a.Name == "" {
		a.Name = fallbackName
	}
	a.Exec, _ = f.Get(desktopKeyExec)
	a.Comment, _ = f.Get(desktopKeyComment)
	a.Disabled = f.Bool(desktopKeyHidden, false) || !f.Bool(desktopKeyEnabledGnome, true)
	if raw, ok := f.Get(desktopKeyDelayGnome); ok {
		a.DelaySeconds = parseDesktopDelay(a.Name, raw)
	}
	return a, nil
}

// parseDesktopDelay reads X-GNOME-Autostart-Delay. The session manager
// still launches entries with odd values, so they stay in the inventory:
// unreadable or non-positive values mean no delay and long delays are
// clamped to the largest one this tool can set.
func parseDesktopDelay(name, raw string) int {
	d, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil:
		log.Warn("ignoring unreadable autostart delay", "name", name, "value", raw)
		return 0
	case d <= 0:
		return 0
	case d > models.MaxDelaySeconds:
		log.Warn("clamping autostart delay", "name", name, "value", d, "max", models.MaxDelaySeconds)
		return models.MaxDelaySeconds
	}
	return d
}

// state returns the record state string for a.
func (a desktopAutorun) state() string {
	switch {
	case a.Disabled:
		return "disabled"
	case a.DelaySeconds != 0:
		return "delayed"
	default:
		return "enabled"
	}
}

// applyDesktopDisable hides the entry from the session manager.
func applyDesktopDisable(f *desktopFile) {
	f.Set(desktopKeyHidden, "true")
}

// applyDesktopEnable clears hiding and any delay.
func applyDesktopEnable(f *desktopFile) {
	f.Unset(desktopKeyHidden)
	f.Unset(desktopKeyDelayGnome)
	if v, ok := f.Get(desktopKeyEnabledGnome); ok && !strings.EqualFold(strings.TrimSpace(v), "true") {
		f.Set(desktopKeyEnabledGnome, "true")
	}
}

// applyDesktopDelay enables the entry with a launch delay.
func applyDesktopDelay(f *desktopFile, seconds int) {
	applyDesktopEnable(f)
	f.Set(desktopKeyDelayGnome, strconv.Itoa(seconds))
}
