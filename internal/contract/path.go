package contract

import "strings"

// PathIsTemplated reports whether path contains a "{name}" segment or a
// trailing "*" wildcard. It is a pure lexical scan, shared by the
// Interaction classifier and the index builder so both agree on the
// literal/templated split.
func PathIsTemplated(path string) bool {
	return strings.Contains(path, "{") || strings.HasSuffix(strings.TrimRight(path, "/"), "*")
}
