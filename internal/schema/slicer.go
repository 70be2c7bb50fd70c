package schema

import (
	"sort"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// DefaultMaxElements and DefaultMaxFields bound the slice size. The
// slice doubles as the table allow-list, so these caps also bound what
// a generated query may ever touch.
const (
	DefaultMaxElements = 4
	DefaultMaxFields   = 8
)

// Slicer prunes a full schema down to the elements and fields most
// relevant to a question, by best fuzzy partial-match ratio.
type Slicer struct {
	MaxElements int
	MaxFields   int
}

func NewSlicer(maxElements, maxFields int) *Slicer {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	if maxFields <= 0 {
		maxFields = DefaultMaxFields
	}
	return &Slicer{MaxElements: maxElements, MaxFields: maxFields}
}

// Select scores every element against the question and keeps the top
// ones. Deterministic for identical (schema, question) inputs: sorting
// is stable, so ties keep original schema order. An empty schema
// yields an empty slice, which callers must treat as terminal.
func (s *Slicer) Select(full Schema, question string) Slice {
	if len(full) == 0 {
		return nil
	}

	type scored struct {
		el    Element
		score int
	}
	ranked := make([]scored, 0, len(full))
	for _, el := range full {
		best := partialRatio(el.Name, question)
		for _, f := range el.Fields {
			if r := partialRatio(f.Name, question); r > best {
				best = r
			}
		}
		ranked = append(ranked, scored{el: el, score: best})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	keep := s.MaxElements
	if keep > len(ranked) {
		keep = len(ranked)
	}

	out := make(Slice, 0, keep)
	for _, r := range ranked[:keep] {
		out = append(out, SliceElement{
			Name:   r.el.Name,
			Fields: s.selectFields(r.el, question),
		})
	}
	return out
}

// FromRanked builds a slice from an externally ranked element order
// (the trained ranker path). Unknown names are skipped; field
// selection is the same fuzzy pass as Select, so the allow-list
// semantics do not change with the ranking strategy.
func (s *Slicer) FromRanked(full Schema, ranked []string, question string) Slice {
	out := make(Slice, 0, s.MaxElements)
	for _, name := range ranked {
		if len(out) == s.MaxElements {
			break
		}
		el, ok := full.Element(name)
		if !ok {
			continue
		}
		out = append(out, SliceElement{
			Name:   el.Name,
			Fields: s.selectFields(el, question),
		})
	}
	return out
}

// selectFields keeps the top-scoring fields and always re-adds
// identifier-like fields, which joins and lookups need even when they
// score poorly against the question.
func (s *Slicer) selectFields(el Element, question string) []string {
	type scored struct {
		name  string
		score int
	}
	ranked := make([]scored, 0, len(el.Fields))
	for _, f := range el.Fields {
		ranked = append(ranked, scored{name: f.Name, score: partialRatio(f.Name, question)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	keep := s.MaxFields
	if keep > len(ranked) {
		keep = len(ranked)
	}

	out := make([]string, 0, keep+3)
	for _, r := range ranked[:keep] {
		out = append(out, r.name)
	}

	for _, idName := range []string{"_id", "id", el.Name + "_id"} {
		if hasField(el, idName) && !containsString(out, idName) {
			out = append(out, idName)
		}
	}
	return out
}

func partialRatio(s1, s2 string) int {
	if s1 == "" || s2 == "" {
		return 0
	}
	return fuzzy.PartialRatio(s1, s2)
}

func hasField(el Element, name string) bool {
	for _, f := range el.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func containsString(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}
