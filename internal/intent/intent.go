// Package intent classifies a natural-language question into query
// shapes and derives the clauses and functions a correct query would
// need. Detection is an ordered list of independent rules; each rule
// can be tested in isolation. The analysis only shapes the prompt and
// powers an advisory post-check — it is not a safety mechanism.
package intent

import (
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/askdb/backend/internal/schema"
)

type Intent string

const (
	SimpleSelect       Intent = "simple_select"
	Filtered           Intent = "filtered"
	Aggregation        Intent = "aggregation"
	GroupedAggregation Intent = "grouped_aggregation"
	WindowFunction     Intent = "window_function"
	Join               Intent = "join"
	Sorted             Intent = "sorted"
	Limited            Intent = "limited"
	ComplexFilter      Intent = "complex_filter"
	DateTime           Intent = "date_time"
	TextSearch         Intent = "text_search"
	Comparison         Intent = "comparison"
	Ranking            Intent = "ranking"
	Distinct           Intent = "distinct"
	NullHandling       Intent = "null_handling"
	Union              Intent = "union"
	Subquery           Intent = "subquery"
)

// priorityOrder picks the primary intent when several signals fire:
// more specific shapes win.
var priorityOrder = []Intent{
	WindowFunction,
	GroupedAggregation,
	Aggregation,
	Join,
	Ranking,
	ComplexFilter,
	Filtered,
	Sorted,
	Limited,
}

// Analysis is the structured guidance fed to the prompt builder.
type Analysis struct {
	Intent            Intent   `json:"intent"`
	Confidence        float64  `json:"confidence"`
	RequiredClauses   []string `json:"required_clauses"`
	RequiredFunctions []string `json:"required_functions"`
	Hints             []string `json:"hints"`
	ExamplePattern    string   `json:"example_pattern"`
	Fired             []Intent `json:"-"`
}

// Analyze runs every detector against the question. The slice, when
// available, powers multi-element mention detection for JOIN and
// UNION signals.
func Analyze(question string, slice schema.Slice) Analysis {
	q := newQuestion(question, slice)

	var fired []Intent
	acc := Analysis{}

	for _, rule := range rules {
		f := rule.detect(q)
		if f == nil {
			continue
		}
		fired = append(fired, f.intents...)
		for _, c := range f.clauses {
			acc.RequiredClauses = appendUnique(acc.RequiredClauses, c)
		}
		for _, fn := range f.functions {
			acc.RequiredFunctions = appendUnique(acc.RequiredFunctions, fn)
		}
		acc.Hints = append(acc.Hints, f.hints...)
	}

	if len(fired) == 0 {
		acc.Intent = SimpleSelect
		acc.Confidence = 0.8
	} else {
		acc.Intent = fired[0]
		for _, p := range priorityOrder {
			if containsIntent(fired, p) {
				acc.Intent = p
				break
			}
		}
		acc.Confidence = 0.7 + 0.05*float64(len(fired))
		if acc.Confidence > 0.95 {
			acc.Confidence = 0.95
		}
	}

	acc.Fired = fired
	acc.ExamplePattern = examplePattern(acc.Intent, acc.RequiredFunctions)
	return acc
}

// question is the shared detector input: the lowercased text, its
// tokens, and the slice element names.
type question struct {
	raw      string
	lower    string
	tokens   []string
	elements []string
}

func newQuestion(text string, slice schema.Slice) *question {
	q := &question{
		raw:    text,
		lower:  strings.ToLower(text),
		tokens: tokenize(text),
	}
	for _, el := range slice {
		q.elements = append(q.elements, strings.ToLower(el.Name))
	}
	return q
}

// tokenize splits the question with prose; plain whitespace splitting
// is the fallback when tagging fails on degenerate input.
func tokenize(text string) []string {
	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		return strings.Fields(strings.ToLower(text))
	}
	var tokens []string
	for _, tok := range doc.Tokens() {
		tokens = append(tokens, strings.ToLower(tok.Text))
	}
	return tokens
}

// mentionsElement reports whether the question refers to the element,
// by substring or by token match with a trailing "s" stripped (so
// "user" matches the users table).
func (q *question) mentionsElement(name string) bool {
	if strings.Contains(q.lower, name) {
		return true
	}
	singular := strings.TrimSuffix(name, "s")
	for _, tok := range q.tokens {
		if tok == name || (singular != "" && tok == singular) {
			return true
		}
	}
	return false
}

func (q *question) containsAny(keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q.lower, kw) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	for _, e := range list {
		if e == s {
			return list
		}
	}
	return append(list, s)
}

func containsIntent(list []Intent, x Intent) bool {
	for _, e := range list {
		if e == x {
			return true
		}
	}
	return false
}
