package postgres

import (
	"reflect"
	"sync"
)

// columnCache maps reflect.Type to its []string of db columns.
var columnCache sync.Map

// ExtractDBColumns returns the column names from struct "db" tags in field
// order, descending into embedded structs. Results are cached per type.
//
// Usage:
//
//	columns := ExtractDBColumns[identifier.SequenceCounter]()
//	// Returns: ["prefix", "digit_length", "scope", ...]
func ExtractDBColumns[T any]() []string {
	t := reflect.TypeFor[T]()
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]string)
	}
	cols := extractColumnsFromType(t)
	columnCache.Store(t, cols)
	return cols
}

// extractColumnsFromType recursively extracts column names from a type.
func extractColumnsFromType(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous {
			cols = append(cols, extractColumnsFromType(field.Type)...)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
	}
	return cols
}
