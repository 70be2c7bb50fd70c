package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askdb/backend/internal/intent"
	"github.com/askdb/backend/internal/schema"
)

func sampleSlice() schema.Slice {
	return schema.Slice{
		{Name: "users", Fields: []string{"id", "name", "email"}},
		{Name: "orders", Fields: []string{"order_id", "user_id"}},
	}
}

func TestRenderSlice(t *testing.T) {
	out := RenderSlice(sampleSlice())

	assert.Contains(t, out, "- users(id, name, email)")
	assert.Contains(t, out, "- orders(order_id, user_id)")
}

func TestUserWithIntentIncludesGuidance(t *testing.T) {
	analysis := intent.Analysis{
		Intent:            intent.Aggregation,
		RequiredFunctions: []string{"COUNT"},
		Hints:             []string{"h1", "h2", "h3", "h4 must be dropped"},
		ExamplePattern:    "SELECT COUNT(column) FROM table_name LIMIT 100",
	}

	out := UserWithIntent("How many users?", sampleSlice(), analysis)

	assert.Contains(t, out, "Q: How many users?")
	assert.Contains(t, out, "Intent: aggregation")
	assert.Contains(t, out, "COUNT")
	assert.Contains(t, out, "users: id, name, email")
	assert.Contains(t, out, "never invent names")
	assert.Contains(t, out, "start with SELECT")
	assert.NotContains(t, out, "h4 must be dropped")
}

func TestUserOmitsIntentGuidance(t *testing.T) {
	// The plain user message carries the question and the slice but no
	// intent section; it is what the pipeline sends when intent checks
	// are disabled for a request.
	out := User("Show products", sampleSlice())

	assert.Contains(t, out, "Question: Show products")
	assert.Contains(t, out, "users(id, name, email)")
	assert.NotContains(t, out, "Intent:")
}

func TestUserWithIntentEmptyGuidance(t *testing.T) {
	out := UserWithIntent("Show products", sampleSlice(), intent.Analysis{Intent: intent.SimpleSelect})

	assert.Contains(t, out, "Required: None")
	assert.Contains(t, out, "Functions: None")
}

func TestRenderForeignKeys(t *testing.T) {
	fks := []schema.ForeignKey{
		{Table: "orders", Column: "user_id", RefTable: "users", RefColumn: "id"},
	}

	out := RenderForeignKeys(fks)
	assert.Contains(t, out, "orders.user_id = users.id")

	assert.Empty(t, RenderForeignKeys(nil))
}

func TestSystemPromptsAreReadOnly(t *testing.T) {
	assert.Contains(t, SQLSystem, "READ-ONLY")
	assert.Contains(t, DocumentSystem, "JSON")
}
