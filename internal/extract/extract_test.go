package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStripsFence(t *testing.T) {
	raw := "```sql\nSELECT * FROM users;\n```"

	assert.Equal(t, "SELECT * FROM users", SQL(raw))
}

func TestSQLDropsSurroundingProse(t *testing.T) {
	raw := "Here is the query you asked for:\n\nSELECT name, email\nFROM users\nWHERE active = true;\n\nThis returns all active users."

	assert.Equal(t, "SELECT name, email FROM users WHERE active = true", SQL(raw))
}

func TestSQLStopsAtSemicolon(t *testing.T) {
	raw := "SELECT id FROM orders;\nSELECT id FROM users;"

	assert.Equal(t, "SELECT id FROM orders", SQL(raw))
}

func TestSQLReturnsRawWhenNoSelect(t *testing.T) {
	raw := "  I cannot answer that question.  "

	assert.Equal(t, "I cannot answer that question.", SQL(raw))
}

func TestSQLLowercaseSelect(t *testing.T) {
	raw := "select * from users limit 5"

	assert.Equal(t, "select * from users limit 5", SQL(raw))
}

func TestDocumentWholeText(t *testing.T) {
	doc, err := Document(`{"collection": "users", "find": {"active": true}}`)

	require.NoError(t, err)
	assert.JSONEq(t, `{"collection": "users", "find": {"active": true}}`, string(doc))
}

func TestDocumentEmbeddedObject(t *testing.T) {
	raw := "Sure! Here is the query: {\"collection\": \"orders\", \"find\": {\"note\": \"use { carefully\"}} hope that helps"

	doc, err := Document(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection": "orders", "find": {"note": "use { carefully"}}`, string(doc))
}

func TestDocumentFenced(t *testing.T) {
	raw := "```json\n{\"collection\": \"users\", \"pipeline\": []}\n```"

	doc, err := Document(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection": "users", "pipeline": []}`, string(doc))
}

func TestDocumentNoObject(t *testing.T) {
	_, err := Document("I do not know how to query that.")

	assert.Error(t, err)
}
