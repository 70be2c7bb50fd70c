package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoGate executes validated document queries with a server-side
// max-time and the limit already stamped in by validation. There is no
// reliable portable row estimate in a queryPlanner explain, so the
// document path attaches the plan for visibility but does not gate on
// it; result size is bounded by the injected limit instead.
type MongoGate struct {
	db        *mongo.Database
	timeoutMS int
}

func NewMongoGate(db *mongo.Database, timeoutMS int) *MongoGate {
	if timeoutMS <= 0 {
		timeoutMS = 5000
	}
	return &MongoGate{db: db, timeoutMS: timeoutMS}
}

// DocumentQuery mirrors safety.DocumentQuery without importing it, to
// keep this package free of validation concerns. The pipeline hands a
// validated query across this seam.
type DocumentQuery struct {
	Collection string
	Pipeline   []map[string]any
	Find       map[string]any
	Projection map[string]any
	Sort       map[string]any
	Limit      int
}

func (g *MongoGate) Run(ctx context.Context, q *DocumentQuery) (*Result, error) {
	plan := g.explain(ctx, q)

	maxTime := time.Duration(g.timeoutMS) * time.Millisecond
	coll := g.db.Collection(q.Collection)

	var cursor *mongo.Cursor
	var err error
	if q.Pipeline != nil {
		cursor, err = coll.Aggregate(ctx, toPipeline(q.Pipeline), options.Aggregate().SetMaxTime(maxTime))
	} else {
		opts := options.Find().SetMaxTime(maxTime).SetLimit(int64(q.Limit))
		if q.Projection != nil {
			opts = opts.SetProjection(q.Projection)
		}
		if q.Sort != nil {
			opts = opts.SetSort(q.Sort)
		}
		filter := q.Find
		if filter == nil {
			filter = map[string]any{}
		}
		cursor, err = coll.Find(ctx, filter, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("execute document query: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}

	result := tabulate(docs)
	result.Plan = plan
	return result, nil
}

// explain asks the server for a queryPlanner-level plan. Failures are
// swallowed: the plan is diagnostic, not a gate.
func (g *MongoGate) explain(ctx context.Context, q *DocumentQuery) string {
	var target bson.D
	if q.Pipeline != nil {
		target = bson.D{
			{Key: "aggregate", Value: q.Collection},
			{Key: "pipeline", Value: toPipeline(q.Pipeline)},
			{Key: "cursor", Value: bson.D{}},
		}
	} else {
		filter := q.Find
		if filter == nil {
			filter = map[string]any{}
		}
		target = bson.D{
			{Key: "find", Value: q.Collection},
			{Key: "filter", Value: filter},
			{Key: "limit", Value: q.Limit},
		}
	}

	var out bson.M
	cmd := bson.D{{Key: "explain", Value: target}, {Key: "verbosity", Value: "queryPlanner"}}
	if err := g.db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return ""
	}
	text, err := json.Marshal(normalizeDocValue(out))
	if err != nil {
		return ""
	}
	return string(text)
}

func toPipeline(stages []map[string]any) mongo.Pipeline {
	pipeline := make(mongo.Pipeline, 0, len(stages))
	for _, stage := range stages {
		var d bson.D
		for _, key := range sortedKeys(stage) {
			d = append(d, bson.E{Key: key, Value: stage[key]})
		}
		pipeline = append(pipeline, d)
	}
	return pipeline
}

// tabulate flattens heterogeneous documents into a column grid: the
// column set is the union of top-level fields, _id first then sorted,
// with nil filling documents that lack a field.
func tabulate(docs []bson.M) *Result {
	seen := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for key := range doc {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "_id" {
			return true
		}
		if columns[j] == "_id" {
			return false
		}
		return columns[i] < columns[j]
	})

	result := &Result{Columns: columns, Rows: [][]any{}}
	for _, doc := range docs {
		row := make([]any, len(columns))
		for i, col := range columns {
			if v, ok := doc[col]; ok {
				row[i] = normalizeDocValue(v)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	result.RowCount = len(result.Rows)
	return result
}

// normalizeDocValue maps BSON values to JSON-safe ones. Nested arrays
// and documents are rendered as compact JSON text so every cell stays
// scalar.
func normalizeDocValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(val.String(), 64); err == nil {
			return f
		}
		return val.String()
	case primitive.Binary:
		return fmt.Sprintf("binary(%d bytes)", len(val.Data))
	case bson.M:
		return jsonText(scrubNested(val))
	case map[string]any:
		return jsonText(scrubNested(val))
	case bson.A:
		return jsonText(scrubNested(val))
	case []any:
		return jsonText(scrubNested(val))
	case int32:
		return int64(val)
	default:
		return val
	}
}

// scrubNested converts nested structures for JSON rendering without
// flattening them to text a second time.
func scrubNested(v any) any {
	switch val := v.(type) {
	case bson.M:
		return scrubNested(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = scrubNested(inner)
		}
		return out
	case bson.A:
		return scrubNested([]any(val))
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = scrubNested(inner)
		}
		return out
	default:
		return normalizeDocValue(v)
	}
}

func jsonText(v any) string {
	text, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(text)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
