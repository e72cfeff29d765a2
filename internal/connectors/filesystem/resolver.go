package filesystem

import "strings"

// ResolvePath converts a file:// URI to a local path. Bare paths pass
// through unchanged.
func ResolvePath(location string) string {
	if strings.HasPrefix(location, "file://") {
		return strings.TrimPrefix(location, "file://")
	}
	return location
}
