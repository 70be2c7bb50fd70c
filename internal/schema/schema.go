// Package schema models the live database structure offered to the
// generator. A Slice is both the prompt context and the allow-list the
// safety validator enforces: a query may only touch what a slice names.
package schema

import "strings"

// Field describes one column or document field.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Element is a table or collection with its ordered fields.
type Element struct {
	Name   string  `json:"table"`
	Fields []Field `json:"columns"`
}

// Schema is the full live structure, in source order. Loaded fresh per
// request and immutable for the request's lifetime.
type Schema []Element

func (s Schema) Element(name string) (Element, bool) {
	for _, el := range s {
		if el.Name == name {
			return el, true
		}
	}
	return Element{}, false
}

// SliceElement is one kept element with its kept field names, ordered
// by relevance.
type SliceElement struct {
	Name   string   `json:"table"`
	Fields []string `json:"columns"`
}

// Slice is the pruned schema view: prompt budget and security boundary
// in one. An empty slice is a terminal "no relevant schema" condition.
type Slice []SliceElement

func (s Slice) Empty() bool {
	return len(s) == 0
}

// Contains reports whether name is an allowed element. A "db.element"
// qualified name matches on the part after the first dot.
func (s Slice) Contains(name string) bool {
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	for _, el := range s {
		if el.Name == name {
			return true
		}
	}
	return false
}

func (s Slice) Names() []string {
	names := make([]string, len(s))
	for i, el := range s {
		names[i] = el.Name
	}
	return names
}
