package safety

import (
	"encoding/json"
	"strings"

	"github.com/askdb/backend/internal/schema"
)

// DocumentQuery is the JSON contract the model is prompted to emit for
// document stores. Exactly one of Pipeline or Find must be present.
//
// Unlike the SQL path there is no AST here: validation is structural
// only. A hostile operator embedded inside a $match stage is not
// detected, which is why document connections should be read-only at
// the credential level.
type DocumentQuery struct {
	Collection string           `json:"collection"`
	Pipeline   []map[string]any `json:"pipeline,omitempty"`
	Find       map[string]any   `json:"find,omitempty"`
	Projection map[string]any   `json:"projection,omitempty"`
	Sort       map[string]any   `json:"sort,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

// Aggregate reports whether the query runs through the aggregation
// pipeline rather than a plain find.
func (q *DocumentQuery) Aggregate() bool {
	return q.Pipeline != nil
}

// ValidateDocument decodes and validates a candidate document query,
// enforcing the collection allow-list and capping result size. The
// returned query always carries an effective limit of at most rowCap.
func ValidateDocument(raw []byte, slice schema.Slice, rowCap int) (*DocumentQuery, error) {
	var q DocumentQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, violation(RuleParse, "document query parse error: %v", err)
	}

	q.Collection = strings.TrimPrefix(q.Collection, "db.")
	if q.Collection == "" {
		return nil, violation(RuleShape, "document query must name a collection")
	}
	if !slice.Contains(q.Collection) {
		return nil, violation(RuleAllowList, "collection not allowed in context: %s", q.Collection)
	}

	hasPipeline := q.Pipeline != nil
	hasFind := q.Find != nil
	switch {
	case hasPipeline && hasFind:
		return nil, violation(RuleShape, "document query must carry either a pipeline or a find filter, not both")
	case !hasPipeline && !hasFind:
		return nil, violation(RuleShape, "document query must carry a pipeline or a find filter")
	}

	if rowCap <= 0 {
		rowCap = 100
	}

	if hasPipeline {
		if !pipelineHasLimit(q.Pipeline) {
			q.Pipeline = append(q.Pipeline, map[string]any{"$limit": rowCap})
		}
	} else if q.Limit <= 0 || q.Limit > rowCap {
		q.Limit = rowCap
	}

	return &q, nil
}

func pipelineHasLimit(stages []map[string]any) bool {
	for _, stage := range stages {
		if _, ok := stage["$limit"]; ok {
			return true
		}
	}
	return false
}
