// Package exec runs validated queries through the plan-gated bounded
// executors. A query is only run after its plan estimate clears the
// capacity ceiling, and always under a server-side timeout.
package exec

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/askdb/backend/pkg/logger"
)

// Result is the backend-independent shape handed back to the pipeline.
// Values are already JSON-safe.
type Result struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
	Plan     string   `json:"plan,omitempty"`
}

// CapacityError is returned when the planner estimate exceeds the
// configured ceiling. The query was not executed.
type CapacityError struct {
	Estimated int64
	Ceiling   int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("query plan estimates %d rows, exceeds ceiling of %d", e.Estimated, e.Ceiling)
}

var planRowsPattern = regexp.MustCompile(`rows=(\d+)`)

// OpenPostgres opens a pooled connection for the given URL. The pool is
// lazy; Ping decides reachability.
func OpenPostgres(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// PostgresGate plans and executes read-only SQL against one database.
// Planning and execution use separate connections from the pool so a
// session-level timeout never leaks between the two phases.
type PostgresGate struct {
	db        *sql.DB
	ceiling   int64
	timeoutMS int
}

func NewPostgresGate(db *sql.DB, ceiling int64, timeoutMS int) *PostgresGate {
	if ceiling <= 0 {
		ceiling = 100000
	}
	if timeoutMS <= 0 {
		timeoutMS = 5000
	}
	return &PostgresGate{db: db, ceiling: ceiling, timeoutMS: timeoutMS}
}

// Run gates the query on its plan estimate and, if it clears, executes
// it under a statement timeout. The estimate is best-effort: when
// EXPLAIN itself fails the query still runs, bounded by the timeout and
// its injected limit. The plan text is attached to the result.
func (g *PostgresGate) Run(ctx context.Context, query string) (*Result, error) {
	plan, err := g.plan(ctx, query)
	if err != nil {
		logger.Warn("plan estimate unavailable, executing without gate", zap.Error(err))
		plan = ""
	} else if estimated, ok := estimatedRows(plan); ok && estimated > g.ceiling {
		logger.Warn("plan gate rejected query",
			zap.Int64("estimated_rows", estimated),
			zap.Int64("ceiling", g.ceiling))
		return nil, &CapacityError{Estimated: estimated, Ceiling: g.ceiling}
	}

	result, err := g.execute(ctx, query)
	if err != nil {
		return nil, err
	}
	result.Plan = plan
	return result, nil
}

// estimatedRows pulls the planner's first row estimate out of the plan
// text.
func estimatedRows(plan string) (int64, bool) {
	m := planRowsPattern.FindStringSubmatch(plan)
	if m == nil {
		return 0, false
	}
	estimated, _ := strconv.ParseInt(m[1], 10, 64)
	return estimated, true
}

func (g *PostgresGate) plan(ctx context.Context, query string) (string, error) {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire plan connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", fmt.Errorf("scan plan: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read plan: %w", err)
	}

	return strings.Join(lines, "\n"), nil
}

func (g *PostgresGate) execute(ctx context.Context, query string) (*Result, error) {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire exec connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = %d", g.timeoutMS)); err != nil {
		return nil, fmt.Errorf("set statement_timeout: %w", err)
	}
	defer conn.ExecContext(context.Background(), "RESET statement_timeout")

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &Result{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = normalizeSQLValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeSQLValue maps driver values to JSON-safe ones: byte slices
// become numbers when they parse as one (numeric columns arrive as
// text) and strings otherwise, timestamps become ISO-8601.
func normalizeSQLValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		s := string(val)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return val
	}
}
