package collectors

import (
	"path/filepath"
	"regexp"
	"strings"
)

// shellMetacharRegex matches characters that could be used for shell injection.
var shellMetacharRegex = regexp.MustCompile(`[;&|` + "`" + `$(){}[\]<>!~'"\\` + "\n\r" + `]`)

// safeServiceNameRegex validates service names to prevent command injection.
var safeServiceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)

var executableExts = []string{".exe", ".com", ".bat", ".cmd"}

// executablePath extracts the program path from a registered command line.
//
//	"C:\Program Files\app.exe" -args  ->  C:\Program Files\app.exe
//	/usr/bin/app --flag               ->  /usr/bin/app
func executablePath(command string) string {
	p := strings.TrimSpace(command)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, `"`) {
		if end := strings.Index(p[1:], `"`); end > 0 {
			return p[1 : end+1]
		}
		return strings.Trim(p, `"`)
	}
	// Unquoted paths with spaces are ambiguous; keep up to the first
	// token that carries an executable extension when there is one.
	lower := strings.ToLower(p)
	cut := -1
	for _, ext := range executableExts {
		if strings.HasSuffix(lower, ext) {
			cut = len(p)
			break
		}
	}
	for _, ext := range executableExts {
		if idx := strings.Index(lower, ext+" "); idx > 0 && (cut < 0 || idx+len(ext) < cut) {
			cut = idx + len(ext)
		}
	}
	if cut > 0 {
		return p[:cut]
	}
	if idx := strings.IndexAny(p, " \t"); idx > 0 {
		return p[:idx]
	}
	return p
}

// extractExeName extracts the process name (without extension) from a
// command line or path.
func extractExeName(command string) string {
	p := executablePath(command)
	if p == "" {
		return ""
	}
	// Normalize so filepath.Base splits Windows paths on any host.
	p = strings.ReplaceAll(p, `\`, "/")
	base := filepath.Base(p)
	if ext := filepath.Ext(base); ext != "" {
		return strings.TrimSuffix(base, ext)
	}
	return base
}
