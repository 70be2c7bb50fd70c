// Package prompt renders the system/user prompt pair sent to the
// language model. It performs no network I/O; the output is plain text
// ready to send as the two chat turns.
package prompt

import (
	"fmt"
	"strings"

	"github.com/askdb/backend/internal/intent"
	"github.com/askdb/backend/internal/schema"
)

// SQLSystem fixes the output contract for the SQL path: one SELECT,
// nothing else.
const SQLSystem = `You generate a single, safe, READ-ONLY SQL query.
Rules:
- Return ONE SQL statement only, no backticks, no markdown, no prose.
- SELECT only. Never use INSERT/UPDATE/DELETE/DDL.
- Use only the tables and columns given.
- If joins are needed, use explicit JOIN ... ON.
- Prefer COUNT, SUM, AVG with GROUP BY when appropriate.
- Always include LIMIT 100 unless the query is an aggregate that returns few rows naturally.
- Use standard SQL that works on PostgreSQL.`

// DocumentSystem fixes the output contract for the document-store
// path: one JSON object describing a pipeline or a find.
const DocumentSystem = `Generate ONLY a MongoDB query as JSON. NO explanations, NO markdown, NO backticks.

Format: {"collection": "name", "pipeline": [...]} OR {"collection": "name", "find": {...}, "limit": 100}
Use a pipeline for aggregations and grouping. Use find for simple queries. READ-only. LIMIT 100.`

// RenderSlice formats a slice as one "element(field, field, ...)" line
// per element.
func RenderSlice(slice schema.Slice) string {
	var b strings.Builder
	for i, el := range slice {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s(%s)", el.Name, strings.Join(el.Fields, ", "))
	}
	return b.String()
}

// User renders the bare user message: question plus the slice.
func User(question string, slice schema.Slice) string {
	return fmt.Sprintf(`Question: %s

Tables and columns you may use:
%s

Respond with ONE SQL SELECT only.`, question, RenderSlice(slice))
}

// UserWithIntent renders the user message with structured intent
// guidance: primary intent, required clauses and functions, up to
// three hints, and one literal example pattern. Field names are called
// out verbatim and the model is told never to invent names outside the
// slice.
func UserWithIntent(question string, slice schema.Slice, analysis intent.Analysis) string {
	clauses := "None"
	if len(analysis.RequiredClauses) > 0 {
		clauses = strings.Join(analysis.RequiredClauses, ", ")
	}
	functions := "None"
	if len(analysis.RequiredFunctions) > 0 {
		functions = strings.Join(analysis.RequiredFunctions, ", ")
	}
	hints := "Standard SELECT"
	if len(analysis.Hints) > 0 {
		kept := analysis.Hints
		if len(kept) > 3 {
			kept = kept[:3]
		}
		hints = strings.Join(kept, "; ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Q: %s\n", question)
	fmt.Fprintf(&b, "Intent: %s. Required: %s. Functions: %s. %s. Example: %s\n",
		analysis.Intent, clauses, functions, hints, analysis.ExamplePattern)
	b.WriteString("Schema (EXACT column names, use these exactly):\n")
	for _, el := range slice {
		fmt.Fprintf(&b, "  %s: %s\n", el.Name, strings.Join(el.Fields, ", "))
	}
	b.WriteString("CRITICAL: use only the exact table and column names listed above; never invent names.\n")
	b.WriteString("Generate SQL only, start with SELECT.")
	return b.String()
}

// UserDocument renders the user message for the document-store path.
func UserDocument(question string, slice schema.Slice) string {
	return fmt.Sprintf(`Q: %s
Schema:
%s
Use only the collections and fields listed. Generate the MongoDB query JSON only.`, question, RenderSlice(slice))
}

// RenderForeignKeys formats FK constraints as join hints appended to
// the user message when the source exposes them.
func RenderForeignKeys(fks []schema.ForeignKey) string {
	if len(fks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known joins:\n")
	for _, fk := range fks {
		fmt.Fprintf(&b, "- %s.%s = %s.%s\n", fk.Table, fk.Column, fk.RefTable, fk.RefColumn)
	}
	return b.String()
}
