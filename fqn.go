package catalogcache

import (
	"strings"
)

// Fully qualified names are period-delimited paths through an entity
// hierarchy, for example "PII.Sensitive" or "Glossary.Term.SubTerm".
// A segment whose name itself contains a period is wrapped in double
// quotes, as in `Tier."v1.0"`.

// SplitFQN splits a fully qualified name into its segments, honouring
// double-quoted segments that contain periods.
func SplitFQN(fqn string) []string {
	var (
		parts    []string
		sb       strings.Builder
		inQuotes bool
	)

	for _, r := range fqn {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == '.' && !inQuotes:
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	parts = append(parts, sb.String())
	return parts
}

// BuildFQN joins segments into a fully qualified name, quoting any
// segment that contains a period.
func BuildFQN(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		if strings.Contains(p, ".") {
			quoted[i] = `"` + p + `"`
		} else {
			quoted[i] = p
		}
	}
	return strings.Join(quoted, ".")
}

// ParentFQN returns the fully qualified name one level up from the
// given segments (all segments except the last).
func ParentFQN(parts []string) string {
	if len(parts) < 2 {
		return ""
	}
	return BuildFQN(parts[:len(parts)-1]...)
}
