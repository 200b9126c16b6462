package sqlstore

import "strings"

// isUniqueViolation matches the unique constraint errors sqlite and postgres
// surface. Driver error codes differ; the message text is the stable signal.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
