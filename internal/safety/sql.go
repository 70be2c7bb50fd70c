// Package safety parses, validates and rewrites generated queries.
// Nothing produced by the model is executed directly: the SQL path
// re-renders the validated AST and only that text reaches a database.
//
// The document-store variant (document.go) has no AST to validate and
// gives a materially weaker guarantee; see its doc comment.
package safety

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/askdb/backend/internal/intent"
	"github.com/askdb/backend/internal/schema"
)

// Violated rules, reported verbatim to callers.
const (
	RuleParse         = "parse"
	RuleStatementKind = "statement_kind"
	RuleAllowList     = "allow_list"
	RuleStructure     = "structure"
	RuleShape         = "document_shape"
)

// Error names the specific rule a candidate violated. Candidates are
// never silently patched into compliance.
type Error struct {
	Rule    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func violation(rule, format string, args ...interface{}) *Error {
	return &Error{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// ValidateSQL runs the full chain on a candidate statement: parse with
// the PostgreSQL grammar, statement-kind check, table allow-list, limit
// injection and, when an analysis is supplied, the advisory structural
// check. It returns the re-rendered statement, the only SQL that may be
// executed. Tables introduced by a WITH clause are in scope without
// being in the slice; the tables their bodies read still are not.
func ValidateSQL(candidate string, slice schema.Slice, rowCap int, analysis *intent.Analysis) (string, error) {
	result, err := pg_query.Parse(candidate)
	if err != nil {
		return "", violation(RuleParse, "SQL parse error: %v", err)
	}
	if len(result.Stmts) == 0 {
		return "", violation(RuleParse, "no SQL statement found")
	}
	if len(result.Stmts) > 1 {
		return "", violation(RuleStatementKind, "only a single statement is allowed")
	}

	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return "", violation(RuleStatementKind, "only SELECT statements are allowed")
	}
	if sel.IntoClause != nil {
		return "", violation(RuleStatementKind, "SELECT INTO writes a table and is not allowed")
	}

	for _, table := range referencedTables(sel) {
		if !slice.Contains(table) {
			return "", violation(RuleAllowList, "table not allowed in context: %s", table)
		}
	}

	if rowCap <= 0 {
		rowCap = 100
	}
	enforceLimit(sel, rowCap)

	finalized, err := pg_query.Deparse(result)
	if err != nil {
		return "", violation(RuleParse, "cannot render validated statement: %v", err)
	}

	if analysis != nil {
		if err := checkStructure(finalized, *analysis); err != nil {
			return "", err
		}
	}

	return finalized, nil
}

// referencedTables collects every relation the statement reads,
// including inside subqueries, set operations and CTE bodies. Names a
// WITH clause defines are not relations and are skipped, unless the
// reference is schema-qualified and so cannot mean the CTE.
func referencedTables(sel *pg_query.SelectStmt) []string {
	ctes := map[string]bool{}
	walkNodes(sel.ProtoReflect(), func(n any) {
		if cte, ok := n.(*pg_query.CommonTableExpr); ok {
			ctes[cte.Ctename] = true
		}
	})

	seen := map[string]bool{}
	var names []string
	walkNodes(sel.ProtoReflect(), func(n any) {
		rv, ok := n.(*pg_query.RangeVar)
		if !ok || rv.Relname == "" {
			return
		}
		if rv.Schemaname == "" && ctes[rv.Relname] {
			return
		}
		name := rv.Relname
		if rv.Schemaname != "" {
			name = rv.Schemaname + "." + rv.Relname
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	})
	return names
}

// walkNodes visits every message in the parse tree, depth first. The
// grammar is too wide to enumerate by hand; protobuf reflection reaches
// relation references wherever the statement nests them.
func walkNodes(m protoreflect.Message, visit func(any)) {
	visit(m.Interface())
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
		case fd.IsList():
			if fd.Kind() == protoreflect.MessageKind {
				list := v.List()
				for i := 0; i < list.Len(); i++ {
					walkNodes(list.Get(i).Message(), visit)
				}
			}
		case fd.Kind() == protoreflect.MessageKind:
			walkNodes(v.Message(), visit)
		}
		return true
	})
}

// enforceLimit appends LIMIT rowCap to the top-level statement when it
// carries none. An existing explicit limit is never altered; for a set
// operation the limit binds the combined result.
func enforceLimit(sel *pg_query.SelectStmt, rowCap int) {
	if sel.LimitCount != nil {
		return
	}
	sel.LimitCount = &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val:      &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(rowCap)}},
				Location: -1,
			},
		},
	}
	sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
}

// checkStructure re-scans the finalized SQL for the constructs the
// intent analysis requires. This is advisory quality gating, not a
// security boundary: a miss rejects the candidate with the exact fix.
func checkStructure(finalized string, analysis intent.Analysis) error {
	upper := strings.ToUpper(finalized)

	for _, fn := range analysis.RequiredFunctions {
		tokens, fix := functionTokens(fn)
		if !containsAnyToken(upper, tokens) {
			return violation(RuleStructure, "generated query is missing required %s: %s", fn, fix)
		}
	}

	for _, clause := range analysis.RequiredClauses {
		if !strings.Contains(upper, clause) {
			return violation(RuleStructure, "generated query is missing required %s clause: add %s", clause, clause)
		}
	}

	return nil
}

func functionTokens(required string) (tokens []string, fix string) {
	switch required {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return []string{required + "("}, fmt.Sprintf("add %s(...) to the SELECT clause", required)
	case "DISTINCT":
		return []string{"DISTINCT"}, "add DISTINCT to SELECT clause"
	case "LIKE or ILIKE":
		return []string{"LIKE"}, "add a LIKE or ILIKE pattern match to WHERE"
	case "ROW_NUMBER() or RANK()":
		return []string{"ROW_NUMBER(", "RANK("}, "add a ROW_NUMBER() or RANK() window function"
	case "OVER (PARTITION BY ...)":
		return []string{"OVER"}, "add an OVER (PARTITION BY ...) window"
	case "UNION":
		return []string{"UNION"}, "combine the two SELECTs with UNION"
	default:
		return []string{strings.ToUpper(required)}, fmt.Sprintf("add %s", required)
	}
}

func containsAnyToken(upper string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(upper, tok) {
			return true
		}
	}
	return false
}
