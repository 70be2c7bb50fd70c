package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultKeyDeterministic(t *testing.T) {
	a := ResultKey("postgres://localhost/app", "how many users", 100)
	b := ResultKey("postgres://localhost/app", "how many users", 100)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestTextHash(t *testing.T) {
	a := TextHash("how many users")

	assert.Equal(t, a, TextHash("how many users"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, TextHash("how many orders"))
}

func TestResultKeyVariesByInput(t *testing.T) {
	base := ResultKey("postgres://localhost/app", "how many users", 100)

	assert.NotEqual(t, base, ResultKey("postgres://localhost/other", "how many users", 100))
	assert.NotEqual(t, base, ResultKey("postgres://localhost/app", "how many orders", 100))
	assert.NotEqual(t, base, ResultKey("postgres://localhost/app", "how many users", 50))
}
