package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	// Name is used in log and error messages.
	Name string

	// Schema creates all tables. It must be idempotent.
	Schema string

	// NumberedParams switches "?" placeholders to "$1, $2, ...".
	NumberedParams bool

	// YearExpr returns an integer expression holding the year of col.
	YearExpr func(col string) string

	// LikeOperator is the case-insensitive LIKE operator.
	LikeOperator string
}

// Rebind rewrites "?" placeholders for the dialect. Question marks inside
// single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.NumberedParams {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// int64Args converts ids to bind arguments.
func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// inClause renders "col IN (?, ...)" with its arguments. An empty list
// renders a condition that matches nothing.
func inClause(col string, ids []int64) (string, []interface{}) {
	if len(ids) == 0 {
		return "1=0", nil
	}
	return col + " IN (" + placeholders(len(ids)) + ")", int64Args(ids)
}
