package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/backend/internal/schema"
)

func allowCollections() schema.Slice {
	return schema.Slice{
		{Name: "users", Fields: []string{"_id", "name"}},
		{Name: "orders", Fields: []string{"_id", "amount"}},
	}
}

func TestValidateDocumentFindLimitClamped(t *testing.T) {
	raw := []byte(`{"collection": "users", "find": {"active": true}, "limit": 5000}`)

	q, err := ValidateDocument(raw, allowCollections(), 100)
	require.NoError(t, err)
	assert.Equal(t, 100, q.Limit)
	assert.False(t, q.Aggregate())
}

func TestValidateDocumentFindDefaultLimit(t *testing.T) {
	raw := []byte(`{"collection": "users", "find": {}}`)

	q, err := ValidateDocument(raw, allowCollections(), 100)
	require.NoError(t, err)
	assert.Equal(t, 100, q.Limit)
}

func TestValidateDocumentPipelineGetsLimitStage(t *testing.T) {
	raw := []byte(`{"collection": "orders", "pipeline": [{"$match": {"amount": {"$gt": 10}}}]}`)

	q, err := ValidateDocument(raw, allowCollections(), 100)
	require.NoError(t, err)
	require.True(t, q.Aggregate())
	last := q.Pipeline[len(q.Pipeline)-1]
	assert.Equal(t, 100, last["$limit"])
}

func TestValidateDocumentExistingLimitStageKept(t *testing.T) {
	raw := []byte(`{"collection": "orders", "pipeline": [{"$limit": 10}]}`)

	q, err := ValidateDocument(raw, allowCollections(), 100)
	require.NoError(t, err)
	assert.Len(t, q.Pipeline, 1)
}

func TestValidateDocumentRequiresCollection(t *testing.T) {
	_, err := ValidateDocument([]byte(`{"find": {}}`), allowCollections(), 100)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, RuleShape, serr.Rule)
}

func TestValidateDocumentExactlyOneOfPipelineFind(t *testing.T) {
	_, err := ValidateDocument([]byte(`{"collection": "users"}`), allowCollections(), 100)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, RuleShape, serr.Rule)

	both := []byte(`{"collection": "users", "find": {}, "pipeline": []}`)
	_, err = ValidateDocument(both, allowCollections(), 100)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, RuleShape, serr.Rule)
}

func TestValidateDocumentAllowList(t *testing.T) {
	_, err := ValidateDocument([]byte(`{"collection": "payments", "find": {}}`), allowCollections(), 100)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, RuleAllowList, serr.Rule)
}

func TestValidateDocumentStripsDBPrefix(t *testing.T) {
	q, err := ValidateDocument([]byte(`{"collection": "db.users", "find": {}}`), allowCollections(), 100)

	require.NoError(t, err)
	assert.Equal(t, "users", q.Collection)
}

func TestValidateDocumentBadJSON(t *testing.T) {
	_, err := ValidateDocument([]byte(`{"collection": `), allowCollections(), 100)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, RuleParse, serr.Rule)
}
