package attributes

import (
	"regexp"
	"strings"
)

// maxIdentLen is PostgreSQL's identifier limit (NAMEDATALEN-1).
const maxIdentLen = 63

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// reserved column names of every feature table.
var reserved = map[string]bool{"id": true, "geom": true}

// NormalizeKey turns a label into a column name: lowercase, runs of anything
// outside [a-z0-9] collapsed to "_", leading/trailing "_" trimmed. A key
// starting with a digit is prefixed "col_" and one colliding with a fixed
// column is prefixed "attr_". An empty result means the label is unusable.
func NormalizeKey(label string) string {
	k := nonAlnum.ReplaceAllString(strings.ToLower(label), "_")
	k = strings.Trim(k, "_")
	if k == "" {
		return ""
	}
	if k[0] >= '0' && k[0] <= '9' {
		k = "col_" + k
	}
	if reserved[k] {
		k = "attr_" + k
	}
	if len(k) > maxIdentLen {
		k = strings.TrimRight(k[:maxIdentLen], "_")
	}
	return k
}
