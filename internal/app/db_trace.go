package app

import "strings"

const maxTracedQueryLen = 512

// formatDBQueryForTrace flattens the multi-line const queries the
// repositories issue into one spacing-normalized span attribute.
func formatDBQueryForTrace(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	flat := strings.Join(fields, " ")
	if len(flat) > maxTracedQueryLen {
		flat = flat[:maxTracedQueryLen] + "..."
	}

	return flat
}
