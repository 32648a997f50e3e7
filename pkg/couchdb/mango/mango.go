package mango

import (
	"encoding/json"
	"unicode"
)

// This package provides utility structures to build mango queries

// ValueOperator is an operator between a field and a value
type ValueOperator string

const gt ValueOperator = "$gt"
const gte ValueOperator = "$gte"
const lt ValueOperator = "$lt"
const lte ValueOperator = "$lte"
const exists ValueOperator = "$exists"

// LogicOperator is an operator between two filters
type LogicOperator string

const and LogicOperator = "$and"
const not LogicOperator = "$not"
const or LogicOperator = "$or"

// A Filter is a filter on documents, to be passed as the selector of a
// couchdb.FindRequest.
type Filter interface {
	json.Marshaler
	ToMango() Map
}

// Map is an alias for map[string]interface{}
type Map map[string]interface{}

// ToMango implements the Filter interface on Map, it returns the map itself.
func (m Map) ToMango() Map {
	return m
}

// MarshalJSON returns a byte json representation of the map
func (m Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(m))
}

// valueFilter is a filter on a single field
type valueFilter struct {
	field string
	op    ValueOperator
	value interface{}
}

// ToMango implements the Filter interface on valueFilter, it returns a map
// `{field: {$op: value}}`.
func (vf valueFilter) ToMango() Map {
	return makeMap(vf.field, makeMap(string(vf.op), vf.value))
}

func (vf valueFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(vf.ToMango())
}

// logicFilter is a combination of filters with a logic operator
type logicFilter struct {
	op      LogicOperator
	filters []Filter
}

func (lf logicFilter) ToMango() Map {
	// special case, $not has an arity of one
	if lf.op == not {
		return makeMap(string(lf.op), lf.filters[0].ToMango())
	}

	filters := make([]Map, len(lf.filters))
	for i, v := range lf.filters {
		filters[i] = v.ToMango()
	}
	return makeMap(string(lf.op), filters)
}

func (lf logicFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(lf.ToMango())
}

var _ Filter = (*valueFilter)(nil)
var _ Filter = (*logicFilter)(nil)

// And returns a filter combining several filters
func And(filters ...Filter) Filter { return logicFilter{and, filters} }

// Or returns a filter combining several filters
func Or(filters ...Filter) Filter { return logicFilter{or, filters} }

// Not returns a filter inversing another filter
func Not(filter Filter) Filter { return logicFilter{not, []Filter{filter}} }

// Exists returns a filter that checks that the document has this field
func Exists(field string) Filter { return &valueFilter{field, exists, true} }

// NotExists returns a filter that checks that the document lacks this field
func NotExists(field string) Filter { return &valueFilter{field, exists, false} }

// Equal returns a filter that checks if a field == value
func Equal(field string, value interface{}) Filter { return makeMap(field, value) }

// Gt returns a filter that checks if a field > value
func Gt(field string, value interface{}) Filter { return &valueFilter{field, gt, value} }

// Gte returns a filter that checks if a field >= value
func Gte(field string, value interface{}) Filter { return &valueFilter{field, gte, value} }

// Lt returns a filter that checks if a field < value
func Lt(field string, value interface{}) Filter { return &valueFilter{field, lt, value} }

// Lte returns a filter that checks if a field <= value
func Lte(field string, value interface{}) Filter { return &valueFilter{field, lte, value} }

// Between returns a filter that checks if v1 <= field < v2
func Between(field string, v1 interface{}, v2 interface{}) Filter {
	return &logicFilter{op: and, filters: []Filter{
		&valueFilter{field, gte, v1},
		&valueFilter{field, lt, v2},
	}}
}

// MaxString is the unicode character ￿, useful as an upperbound for
// queries.
const MaxString = string(unicode.MaxRune)

// StartWith returns a filter that checks if the field's string value starts
// with prefix.
func StartWith(field string, prefix string) Filter {
	return Between(field, prefix, prefix+MaxString)
}

// SortDirection can be either ASC or DESC
type SortDirection string

// Asc is the ascending sorting order
const Asc SortDirection = "asc"

// Desc is the descending sorting order
const Desc SortDirection = "desc"

// SortBy is a sorting rule to be used as the sort of a couchdb.FindRequest,
// a list of (field, direction) combinations.
type SortBy []SortByField

// SortByField is a sorting rule for a pair of (field, direction).
type SortByField struct {
	Field     string
	Direction SortDirection
}

// MarshalJSON implements json.Marshaller on SortBy, it returns a json array
// of {field: direction} objects.
func (s SortBy) MarshalJSON() ([]byte, error) {
	asSlice := make([]Map, len(s))
	for i, f := range s {
		asSlice[i] = makeMap(f.Field, string(f.Direction))
	}
	return json.Marshal(asSlice)
}

// utility function to create a map with a single key
func makeMap(key string, value interface{}) Map {
	out := make(Map)
	out[key] = value
	return out
}
