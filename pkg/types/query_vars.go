package types

import (
	"fmt"
	"strconv"
)

// QueryVars is the key/value vocabulary accepted by the host query engine.
// Values are plain Go scalars, slices of them, or Objects.
type QueryVars map[string]interface{}

// MergeQueryVars returns a new map holding every entry of sets in order;
// later sets win on key collision. Nil sets are skipped.
func MergeQueryVars(sets ...QueryVars) QueryVars {
	out := make(QueryVars)
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (q QueryVars) Clone() QueryVars {
	return MergeQueryVars(q)
}

// Has reports whether key is present, even with a nil value.
func (q QueryVars) Has(key string) bool {
	_, ok := q[key]
	return ok
}

// Pluck returns the value stored under key and removes it.
func (q QueryVars) Pluck(key string) interface{} {
	v, ok := q[key]
	if !ok {
		return nil
	}
	delete(q, key)
	return v
}

// String returns the value under key formatted as a string, or "".
func (q QueryVars) String(key string) string {
	switch v := q[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value under key as an int, or 0 when it is missing or not
// numeric.
func (q QueryVars) Int(key string) int {
	n, _ := toInt64(q[key])
	return int(n)
}

// Bool returns the value under key as a bool. Non-zero numbers and the
// strings "1" and "true" count as true.
func (q QueryVars) Bool(key string) bool {
	switch v := q[key].(type) {
	case bool:
		return v
	case string:
		return v == "1" || v == "true"
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

// Strings returns the value under key as a list of strings. A scalar becomes
// a single element list.
func (q QueryVars) Strings(key string) []string {
	switch v := q[key].(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

// IDs returns the value under key normalized with ToIDs.
func (q QueryVars) IDs(key string) []int64 {
	return ToIDs(q[key])
}

// ToIDs normalizes an id, an Object, or a list of either into positive ids.
// Values that are not ids are dropped.
func ToIDs(v interface{}) []int64 {
	var out []int64
	add := func(e interface{}) {
		if obj, ok := e.(Object); ok {
			if obj.ObjectID() > 0 {
				out = append(out, obj.ObjectID())
			}
			return
		}
		if n, ok := toInt64(e); ok && n > 0 {
			out = append(out, n)
		}
	}

	switch list := v.(type) {
	case nil:
	case []int64:
		for _, e := range list {
			add(e)
		}
	case []int:
		for _, e := range list {
			add(e)
		}
	case []string:
		for _, e := range list {
			add(e)
		}
	case []interface{}:
		for _, e := range list {
			add(e)
		}
	case []Object:
		for _, e := range list {
			add(e)
		}
	case []*Item:
		for _, e := range list {
			add(e)
		}
	case []*User:
		for _, e := range list {
			add(e)
		}
	default:
		add(v)
	}
	return out
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	}
	return 0, false
}
