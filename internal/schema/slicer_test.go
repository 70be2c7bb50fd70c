package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{
		{
			Name: "users",
			Fields: []Field{
				{Name: "id", Type: "integer"},
				{Name: "name", Type: "text"},
				{Name: "email", Type: "text"},
				{Name: "created_at", Type: "timestamp"},
			},
		},
		{
			Name: "orders",
			Fields: []Field{
				{Name: "order_id", Type: "integer"},
				{Name: "user_id", Type: "integer"},
				{Name: "amount", Type: "numeric"},
				{Name: "status", Type: "text"},
			},
		},
		{
			Name: "products",
			Fields: []Field{
				{Name: "id", Type: "integer"},
				{Name: "title", Type: "text"},
				{Name: "price", Type: "numeric"},
			},
		},
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	s := NewSlicer(2, 3)
	question := "show me user names and emails"

	first := s.Select(testSchema(), question)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Select(testSchema(), question))
	}
}

func TestSelectEmptySchema(t *testing.T) {
	s := NewSlicer(4, 8)

	slice := s.Select(Schema{}, "anything")
	assert.True(t, slice.Empty())
}

func TestSelectCapsElements(t *testing.T) {
	s := NewSlicer(2, 8)

	slice := s.Select(testSchema(), "users and their orders")
	assert.Len(t, slice, 2)
}

func TestSelectRanksMentionedElementFirst(t *testing.T) {
	s := NewSlicer(3, 8)

	slice := s.Select(testSchema(), "how many orders have status pending")
	require.False(t, slice.Empty())
	assert.Equal(t, "orders", slice[0].Name)
}

func TestSelectFieldsKeepsIdentifiers(t *testing.T) {
	s := NewSlicer(4, 1)

	slice := s.Select(testSchema(), "user emails")
	for _, el := range slice {
		if el.Name == "users" {
			assert.Contains(t, el.Fields, "id")
		}
	}
}

func TestFromRankedSkipsUnknownAndCaps(t *testing.T) {
	s := NewSlicer(2, 8)

	slice := s.FromRanked(testSchema(), []string{"missing", "orders", "users", "products"}, "orders")
	require.Len(t, slice, 2)
	assert.Equal(t, "orders", slice[0].Name)
	assert.Equal(t, "users", slice[1].Name)
}

func TestSliceContainsStripsPrefix(t *testing.T) {
	slice := Slice{{Name: "users", Fields: []string{"id"}}}

	assert.True(t, slice.Contains("users"))
	assert.True(t, slice.Contains("db.users"))
	assert.False(t, slice.Contains("orders"))
}
