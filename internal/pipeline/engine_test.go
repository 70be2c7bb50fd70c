package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/backend/internal/llm"
	"github.com/askdb/backend/internal/safety"
	"github.com/askdb/backend/pkg/config"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		RowCap:           100,
		StatementTimeout: 5000,
		PlanRowCeiling:   100000,
		MaxTables:        4,
		MaxFields:        8,
		IntentChecks:     true,
	}
}

func TestAskFailsFastWhenNotConfigured(t *testing.T) {
	engine := NewEngine(llm.NewClient(llm.Config{}), testPipelineConfig(), nil, nil, nil, nil)

	_, err := engine.Ask(context.Background(), Request{
		Question: "how many users are there",
		ConnURL:  "postgres://localhost/app",
	})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindNotConfigured, perr.Kind)
}

func TestQuestionEmbeddingSurfacesLLMFailure(t *testing.T) {
	// No cache configured: the embedding request goes straight to the
	// model client and its failure comes back unwrapped.
	engine := NewEngine(llm.NewClient(llm.Config{}), testPipelineConfig(), nil, nil, nil, nil)

	_, err := engine.questionEmbedding(context.Background(), "how many users")

	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}

func TestSafetyFailureMapsParseRule(t *testing.T) {
	err := safetyFailure(&safety.Error{Rule: safety.RuleParse, Message: "SQL parse error"}, "garbage")

	assert.Equal(t, KindParse, err.Kind)
	assert.Equal(t, "garbage", err.Query)
}

func TestSafetyFailureMapsOtherRules(t *testing.T) {
	for _, rule := range []string{safety.RuleStatementKind, safety.RuleAllowList, safety.RuleStructure, safety.RuleShape} {
		err := safetyFailure(&safety.Error{Rule: rule, Message: "rejected"}, "select 1")
		assert.Equal(t, KindSafety, err.Kind, rule)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := failf(KindExecution, cause, "query execution failed: %v", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "query execution failed: boom", err.Error())
}
