package core

import "strings"

// DBOrdering is one ORDER BY term.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderingClause joins orderings into an ORDER BY expression.
func OrderingClause(ords ...DBOrdering) string {
	terms := make([]string, 0, len(ords))
	for _, ord := range ords {
		terms = append(terms, ord.String())
	}
	return strings.Join(terms, ", ")
}
