package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/backend/internal/intent"
	"github.com/askdb/backend/internal/schema"
)

func allowUsersOrders() schema.Slice {
	return schema.Slice{
		{Name: "users", Fields: []string{"id", "name", "email"}},
		{Name: "orders", Fields: []string{"order_id", "user_id", "amount"}},
	}
}

func ruleOf(t *testing.T, err error) string {
	t.Helper()
	var serr *Error
	require.ErrorAs(t, err, &serr)
	return serr.Rule
}

func TestValidateSQLInjectsLimit(t *testing.T) {
	out, err := ValidateSQL("SELECT * FROM users", allowUsersOrders(), 100, nil)

	require.NoError(t, err)
	assert.Contains(t, out, "LIMIT 100")
}

func TestValidateSQLKeepsExistingLimit(t *testing.T) {
	out, err := ValidateSQL("SELECT * FROM users LIMIT 500", allowUsersOrders(), 100, nil)

	require.NoError(t, err)
	assert.Contains(t, out, "LIMIT 500")
	assert.NotContains(t, out, "LIMIT 100")
}

func TestValidateSQLRejectsMutations(t *testing.T) {
	for _, candidate := range []string{
		"DROP TABLE users",
		"DELETE FROM users",
		"UPDATE users SET name = 'x'",
		"INSERT INTO users (name) VALUES ('x')",
	} {
		_, err := ValidateSQL(candidate, allowUsersOrders(), 100, nil)
		assert.Equal(t, RuleStatementKind, ruleOf(t, err), candidate)
	}
}

func TestValidateSQLRejectsSelectInto(t *testing.T) {
	_, err := ValidateSQL("SELECT * INTO archived FROM users", allowUsersOrders(), 100, nil)

	assert.Equal(t, RuleStatementKind, ruleOf(t, err))
}

func TestValidateSQLRejectsMultipleStatements(t *testing.T) {
	_, err := ValidateSQL("SELECT * FROM users; SELECT * FROM orders", allowUsersOrders(), 100, nil)

	assert.Equal(t, RuleStatementKind, ruleOf(t, err))
}

func TestValidateSQLRejectsUnknownTable(t *testing.T) {
	_, err := ValidateSQL("SELECT * FROM payments", allowUsersOrders(), 100, nil)

	assert.Equal(t, RuleAllowList, ruleOf(t, err))
}

func TestValidateSQLAllowListCoversSubqueries(t *testing.T) {
	_, err := ValidateSQL("SELECT * FROM users WHERE id IN (SELECT user_id FROM payments)", allowUsersOrders(), 100, nil)

	assert.Equal(t, RuleAllowList, ruleOf(t, err))
}

func TestValidateSQLAliasIsNotATable(t *testing.T) {
	out, err := ValidateSQL("SELECT u.name FROM users u JOIN orders o ON u.id = o.user_id", allowUsersOrders(), 100, nil)

	require.NoError(t, err)
	assert.Contains(t, out, "JOIN")
}

func TestValidateSQLAcceptsPostgresOperators(t *testing.T) {
	// Candidates the generator is explicitly steered toward must clear
	// validation: ILIKE matching and :: casts are both Postgres-legal.
	out, err := ValidateSQL("SELECT * FROM users WHERE name ILIKE '%ada%'", allowUsersOrders(), 100, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "ILIKE")

	_, err = ValidateSQL("SELECT amount::text FROM orders", allowUsersOrders(), 100, nil)
	require.NoError(t, err)
}

func TestValidateSQLAcceptsCTE(t *testing.T) {
	out, err := ValidateSQL("WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", allowUsersOrders(), 100, nil)

	require.NoError(t, err)
	assert.Contains(t, out, "WITH recent")
	assert.Contains(t, out, "LIMIT 100")
}

func TestValidateSQLAllowListCoversCTEBody(t *testing.T) {
	// The CTE name is in scope; the table its body reads still passes
	// through the allow-list.
	_, err := ValidateSQL("WITH t AS (SELECT * FROM payments) SELECT * FROM t", allowUsersOrders(), 100, nil)

	assert.Equal(t, RuleAllowList, ruleOf(t, err))
}

func TestValidateSQLPreservesQuotedIdentifiers(t *testing.T) {
	// A quoted identifier must survive re-rendering as an identifier,
	// never as a string literal.
	out, err := ValidateSQL(`SELECT "firstName" FROM users`, allowUsersOrders(), 100, nil)

	require.NoError(t, err)
	assert.Contains(t, out, `"firstName"`)
	assert.NotContains(t, out, `'firstName'`)
}

func TestValidateSQLParseFailure(t *testing.T) {
	_, err := ValidateSQL("this is not sql at all", allowUsersOrders(), 100, nil)

	assert.Equal(t, RuleParse, ruleOf(t, err))
}

func TestValidateSQLUnionLimit(t *testing.T) {
	out, err := ValidateSQL("SELECT name FROM users UNION SELECT name FROM users", allowUsersOrders(), 50, nil)

	require.NoError(t, err)
	assert.Contains(t, out, "LIMIT 50")
}

func TestStructuralCheckMissingAggregate(t *testing.T) {
	analysis := intent.Analysis{
		Intent:            intent.Aggregation,
		RequiredFunctions: []string{"COUNT"},
	}

	_, err := ValidateSQL("SELECT * FROM users", allowUsersOrders(), 100, &analysis)
	require.Error(t, err)
	assert.Equal(t, RuleStructure, ruleOf(t, err))
	assert.Contains(t, err.Error(), "COUNT")
}

func TestStructuralCheckSatisfied(t *testing.T) {
	analysis := intent.Analysis{
		Intent:            intent.GroupedAggregation,
		RequiredClauses:   []string{"GROUP BY"},
		RequiredFunctions: []string{"COUNT"},
	}

	out, err := ValidateSQL("SELECT user_id, COUNT(*) FROM orders GROUP BY user_id", allowUsersOrders(), 100, &analysis)
	require.NoError(t, err)
	assert.Contains(t, out, "GROUP BY")
}

func TestStructuralCheckDistinctMessage(t *testing.T) {
	analysis := intent.Analysis{
		Intent:            intent.Distinct,
		RequiredFunctions: []string{"DISTINCT"},
	}

	_, err := ValidateSQL("SELECT email FROM users", allowUsersOrders(), 100, &analysis)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISTINCT")
}

func TestValidateSQLDisabledChecks(t *testing.T) {
	// Nil analysis skips structural gating entirely.
	out, err := ValidateSQL("SELECT * FROM users", allowUsersOrders(), 100, nil)

	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
