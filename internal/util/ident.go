package util

import (
	"regexp"
	"strings"
)

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeIdentifier lower-cases s and replaces every run of characters
// outside [a-z0-9_] with a single underscore. Names starting with a digit
// get prefix prepended. The result is safe as a SQL table name, a vector
// collection name or a redis key segment.
func SanitizeIdentifier(s, prefix string) string {
	name := nonIdentChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	name = strings.Trim(name, "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = prefix + name
	}
	return name
}
