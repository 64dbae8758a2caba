package store

import (
	"fmt"
	"math"
	"strconv"
)

type Op int

const (
	OpEq Op = iota
	OpIn
)

// Predicate tests one field. When the stored value is a list, the predicate
// matches if any element matches.
type Predicate struct {
	Field  string
	Op     Op
	Values []any
}

// Criteria is a conjunction of predicates.
type Criteria []Predicate

func Eq(field string, v any) Predicate { return Predicate{Field: field, Op: OpEq, Values: []any{v}} }

func In(field string, vs ...any) Predicate { return Predicate{Field: field, Op: OpIn, Values: vs} }

// Strings adapts a string slice to the variadic form In expects.
func Strings(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func Where(preds ...Predicate) Criteria { return Criteria(preds) }

func (c Criteria) And(p Predicate) Criteria {
	out := make(Criteria, 0, len(c)+1)
	out = append(out, c...)
	return append(out, p)
}

// Equals returns the string operand of the first equality predicate on field,
// letting adapters push indexed lookups down to SQL.
func (c Criteria) Equals(field string) (string, bool) {
	for _, p := range c {
		if p.Field == field && p.Op == OpEq && len(p.Values) == 1 {
			if s, ok := p.Values[0].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Match reports whether rec satisfies every predicate.
func (c Criteria) Match(rec Record) bool {
	for _, p := range c {
		if !p.match(rec) {
			return false
		}
	}
	return true
}

func (p Predicate) match(rec Record) bool {
	var got any
	switch p.Field {
	case "id":
		got = rec.ID
	case "version":
		got = rec.Version
	default:
		v, ok := rec.Fields[p.Field]
		if !ok {
			got = nil
		} else {
			got = v
		}
	}
	if list, ok := asList(got); ok {
		for _, el := range list {
			if p.matchValue(el) {
				return true
			}
		}
		return false
	}
	return p.matchValue(got)
}

func (p Predicate) matchValue(got any) bool {
	g := normalize(got)
	for _, want := range p.Values {
		if normalize(want) == g {
			return true
		}
		if p.Op == OpEq {
			return false
		}
	}
	return false
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		return Strings(t), true
	}
	return nil, false
}

// normalize maps values that arrive through JSON, SQL and Go literals onto a
// single comparable form.
func normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return "\x00nil"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return normalize(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
