// Package types defines the core data structures of the connection query
// layer: content items, users, item type descriptors, relationship
// directions and the query variable vocabulary shared with the host engine.
package types

import "strings"

// Direction designates an endpoint of a connection type.
type Direction string

const (
	// DirectionFrom selects the "from" end.
	DirectionFrom Direction = "from"

	// DirectionTo selects the "to" end.
	DirectionTo Direction = "to"

	// DirectionAny marks a symmetric, unordered relationship.
	DirectionAny Direction = "any"
)

// Directions lists the two concrete ends in evaluation order.
var Directions = [2]Direction{DirectionFrom, DirectionTo}

// Valid reports whether d is from, to or any.
func (d Direction) Valid() bool {
	switch d {
	case DirectionFrom, DirectionTo, DirectionAny:
		return true
	}
	return false
}

// Opposite returns the other end. Any is its own opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionFrom:
		return DirectionTo
	case DirectionTo:
		return DirectionFrom
	}
	return d
}

// Cardinality limits how many connections an item may take part in.
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// ParseCardinality splits "<one|many>-to-<one|many>". Anything other than
// the literal "one" in either position becomes "many".
func ParseCardinality(s string) (from, to Cardinality) {
	parts := strings.Split(s, "-")

	var rawFrom, rawTo string
	if len(parts) > 0 {
		rawFrom = parts[0]
	}
	if len(parts) > 2 {
		rawTo = parts[2]
	}

	return normalizeCardinality(rawFrom), normalizeCardinality(rawTo)
}

func normalizeCardinality(s string) Cardinality {
	if s == string(CardinalityOne) {
		return CardinalityOne
	}
	return CardinalityMany
}

// Object kinds a Side can be built from.
const (
	ObjectPost       = "post"
	ObjectAttachment = "attachment"
	ObjectUser       = "user"
)
