package rarlist

import (
	"strings"
)

// windowsReservedNames are device names Windows refuses to use as a file
// component regardless of extension.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeUnix rewrites an archive-stored path into one safe to join
// under an extraction root on a Unix-like filesystem: absolute paths are
// made relative, ".." and empty/"." components are dropped, and control
// bytes plus `<>|"?*` are replaced with '_'. ':' stays; it is only a
// problem on Windows.
func SanitizeUnix(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return joinSafeComponents(strings.Split(name, "/"), false)
}

// SanitizeWindows rewrites an archive-stored path into one safe to join
// under an extraction root on Windows: in addition to SanitizeUnix's
// traversal stripping, it drops drive letters and UNC prefixes, replaces
// ':' too, strips trailing dots/spaces, and renames any path component
// that collides with a reserved device name.
func SanitizeWindows(name string) string {
	name = strings.TrimPrefix(name, `\\?\`)
	name = strings.TrimPrefix(name, `\\`)
	name = strings.ReplaceAll(name, "\\", "/")
	if len(name) >= 2 && name[1] == ':' {
		name = name[2:]
	}
	parts := strings.Split(name, "/")
	return joinSafeComponents(parts, true)
}

func joinSafeComponents(parts []string, windows bool) string {
	var kept []string
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		p = sanitizeComponent(p, windows)
		kept = append(kept, p)
	}
	return strings.Join(kept, "/")
}

func sanitizeComponent(p string, windows bool) string {
	var b strings.Builder
	b.Grow(len(p))
	for _, r := range p {
		switch {
		case r < 0x20:
			b.WriteRune('_')
		case strings.ContainsRune(`<>|"?*`, r):
			b.WriteRune('_')
		case r == ':' && windows:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	if !windows {
		return b.String()
	}
	trimmed := strings.TrimRight(b.String(), " .")
	if trimmed == "" {
		trimmed = "_"
	}
	base := trimmed
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		base = trimmed[:idx]
	}
	if windowsReservedNames[strings.ToUpper(base)] {
		trimmed = "_" + trimmed
	}
	return trimmed
}
