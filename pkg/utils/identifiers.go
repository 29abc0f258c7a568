package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for filesystem paths.
// Run IDs and agent names can contain characters like ":" or "/" that
// break directory creation on some platforms.
func SanitizeIdentifier(id string) string {
	sanitized := strings.ReplaceAll(id, ":", "-")

	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")

	return sanitized
}
