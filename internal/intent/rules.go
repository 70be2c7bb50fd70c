package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// finding is one detector's contribution to the analysis.
type finding struct {
	intents   []Intent
	clauses   []string
	functions []string
	hints     []string
}

type rule struct {
	name   string
	detect func(q *question) *finding
}

// rules run in a fixed order; each is independent and recomputes any
// shared signal it needs through the helpers below.
var rules = []rule{
	{"aggregation", detectAggregation},
	{"grouped_aggregation", detectGroupedAggregation},
	{"window_function", detectWindowFunction},
	{"join", detectJoin},
	{"filtered", detectFiltered},
	{"complex_filter", detectComplexFilter},
	{"sorted", detectSorted},
	{"limited", detectLimited},
	{"date_time", detectDateTime},
	{"text_search", detectTextSearch},
	{"comparison", detectComparison},
	{"ranking", detectRanking},
	{"distinct", detectDistinct},
	{"null_handling", detectNullHandling},
	{"union", detectUnion},
	{"subquery", detectSubquery},
}

// aggregateKeywords maps SQL aggregate functions to trigger phrases,
// checked in order; the first family that matches wins.
var aggregateKeywords = []struct {
	fn       string
	keywords []string
}{
	{"AVG", []string{"average", "avg", "mean"}},
	{"COUNT", []string{"count", "how many", "number of", "total number", "quantity"}},
	{"SUM", []string{"sum", "total"}},
	{"MAX", []string{"max", "maximum", "highest", "largest", "most", "top"}},
	{"MIN", []string{"min", "minimum", "lowest", "smallest", "least", "bottom"}},
}

// aggregateFunction returns the aggregate family a question asks for,
// or "" when none matches.
func aggregateFunction(q *question) string {
	for _, family := range aggregateKeywords {
		if q.containsAny(family.keywords) {
			return family.fn
		}
	}
	return ""
}

var groupKeywords = []string{
	"grouped by", "group by", "per", "for each", "by company", "by category",
	"by month", "by year", "by department", "by type", "by status",
}

var filterKeywords = []string{
	"where", "with", "that have", "that are", "which", "whose",
	"greater than", "less than", "equal to", "not equal",
	"above", "below", "over", "under", "between", "in range",
}

var filterWordPattern = regexp.MustCompile(`\b(greater|less|equal|not)\b`)

// hasFilterSignals reports whether the question implies a WHERE clause.
func hasFilterSignals(q *question) bool {
	return q.containsAny(filterKeywords) || filterWordPattern.MatchString(q.lower)
}

func detectAggregation(q *question) *finding {
	fn := aggregateFunction(q)
	if fn == "" {
		return nil
	}
	return &finding{
		intents:   []Intent{Aggregation},
		functions: []string{fn},
	}
}

func detectGroupedAggregation(q *question) *finding {
	if !q.containsAny(groupKeywords) {
		return nil
	}
	f := &finding{
		intents: []Intent{GroupedAggregation},
		clauses: []string{"GROUP BY"},
	}
	if aggregateFunction(q) != "" {
		f.hints = []string{"Use GROUP BY with the aggregation function"}
	} else {
		f.hints = []string{"Question asks for grouping but names no aggregate; COUNT(*) is the usual choice"}
	}
	return f
}

var windowKeywords = []string{
	"along with", "with their", "with the average", "with the total",
	"compared to", "compared with", "same as the average",
	"alongside", "including the", "plus the average",
}

func detectWindowFunction(q *question) *finding {
	if !q.containsAny(windowKeywords) || aggregateFunction(q) == "" {
		return nil
	}
	return &finding{
		intents:   []Intent{WindowFunction},
		functions: []string{"OVER (PARTITION BY ...)"},
		hints:     []string{"Use a window function (AVG() OVER (PARTITION BY ...)) to keep individual rows next to the aggregate"},
	}
}

func detectJoin(q *question) *finding {
	if len(q.elements) > 0 {
		mentions := 0
		for _, el := range q.elements {
			if q.mentionsElement(el) {
				mentions++
			}
		}
		if mentions >= 2 {
			return &finding{
				intents: []Intent{Join},
				clauses: []string{"JOIN"},
				hints:   []string{"Multiple tables mentioned; use JOIN to combine them"},
			}
		}
		return nil
	}
	if q.containsAny([]string{"and their", "with their", "together"}) {
		return &finding{
			intents: []Intent{Join},
			clauses: []string{"JOIN"},
			hints:   []string{"Question implies joining related data"},
		}
	}
	return nil
}

func detectFiltered(q *question) *finding {
	if !hasFilterSignals(q) {
		return nil
	}
	return &finding{
		intents: []Intent{Filtered},
		clauses: []string{"WHERE"},
		hints:   []string{"Question contains filtering conditions; use a WHERE clause"},
	}
}

var complexFilterIndicators = []string{
	"and", "or", "both", "either", "neither", "not only", "but also",
	"as well as", "in addition to",
}

func detectComplexFilter(q *question) *finding {
	if !hasFilterSignals(q) {
		return nil
	}
	n := 0
	for _, kw := range complexFilterIndicators {
		if strings.Contains(q.lower, kw) {
			n++
		}
	}
	if n < 2 {
		return nil
	}
	return &finding{
		intents: []Intent{ComplexFilter},
		hints:   []string{"Multiple filter conditions; combine them with AND/OR in WHERE"},
	}
}

var sortKeywords = []string{
	"sorted by", "ordered by", "order by", "sort by",
	"ascending", "descending", "asc", "desc",
	"newest", "oldest", "latest", "earliest", "first", "last",
	"top", "bottom", "highest", "lowest",
}

var descKeywords = []string{"descending", "desc", "newest", "latest", "highest", "top"}

func detectSorted(q *question) *finding {
	if !q.containsAny(sortKeywords) {
		return nil
	}
	f := &finding{
		intents: []Intent{Sorted},
		clauses: []string{"ORDER BY"},
	}
	if q.containsAny(descKeywords) {
		f.hints = []string{"Use ORDER BY ... DESC for descending order"}
	} else {
		f.hints = []string{"Use ORDER BY for sorting"}
	}
	return f
}

var limitKeywords = []string{
	"first", "last", "top", "bottom", "limit", "only",
}

var topNPattern = regexp.MustCompile(`\b(top|first|last)\s+(\d+)`)

func detectLimited(q *question) *finding {
	m := topNPattern.FindStringSubmatch(q.lower)
	if m == nil && !q.containsAny(limitKeywords) {
		return nil
	}
	f := &finding{
		intents: []Intent{Limited},
		hints:   []string{"Question specifies a limit; use a LIMIT clause"},
	}
	if m != nil {
		f.hints = append(f.hints, fmt.Sprintf("Limit to %s rows", m[2]))
	}
	return f
}

var dateKeywords = []string{
	"today", "yesterday", "tomorrow", "this week", "this month", "this year",
	"last week", "last month", "last year", "next week", "next month",
	"recent", "recently", "latest", "oldest", "date", "time", "when",
	"since", "until", "after", "before",
}

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}`)

func detectDateTime(q *question) *finding {
	if !q.containsAny(dateKeywords) && !datePattern.MatchString(q.lower) {
		return nil
	}
	return &finding{
		intents: []Intent{DateTime},
		clauses: []string{"WHERE"},
		hints:   []string{"Question involves dates; compare the date column in WHERE"},
	}
}

var textSearchKeywords = []string{
	"containing", "contains", "like", "matching", "starts with", "ends with",
	"includes", "including", "search", "find", "look for",
}

func detectTextSearch(q *question) *finding {
	if !q.containsAny(textSearchKeywords) {
		return nil
	}
	return &finding{
		intents:   []Intent{TextSearch},
		functions: []string{"LIKE or ILIKE"},
		hints:     []string{"Text search; use LIKE or ILIKE with % wildcards"},
	}
}

var comparisonKeywords = []string{
	"compare", "comparison", "versus", "vs", "difference", "different",
	"same", "similar", "equal", "greater than", "less than",
}

func detectComparison(q *question) *finding {
	if !q.containsAny(comparisonKeywords) {
		return nil
	}
	return &finding{
		intents: []Intent{Comparison},
		hints:   []string{"Comparison query; may need a subquery or self-join"},
	}
}

var rankingKeywords = []string{
	"rank", "ranking", "ranked", "position", "nth", "first place",
	"second place", "top performer", "best", "worst",
}

func detectRanking(q *question) *finding {
	if !q.containsAny(rankingKeywords) {
		return nil
	}
	return &finding{
		intents:   []Intent{Ranking},
		functions: []string{"ROW_NUMBER() or RANK()"},
		hints:     []string{"Ranking; use the ROW_NUMBER() or RANK() window function"},
	}
}

var distinctKeywords = []string{
	"unique", "distinct", "no duplicates", "only show unique", "list all unique",
}

func detectDistinct(q *question) *finding {
	if !q.containsAny(distinctKeywords) {
		return nil
	}
	return &finding{
		intents:   []Intent{Distinct},
		functions: []string{"DISTINCT"},
		hints:     []string{"Use DISTINCT to remove duplicates"},
	}
}

var nullKeywords = []string{
	"null", "empty", "missing", "not set", "no value", "blank",
	"is null", "is not null", "has no", "without",
}

func detectNullHandling(q *question) *finding {
	if !q.containsAny(nullKeywords) {
		return nil
	}
	return &finding{
		intents: []Intent{NullHandling},
		clauses: []string{"WHERE"},
		hints:   []string{"Check for NULL values with IS NULL or IS NOT NULL"},
	}
}

// detectUnion looks for "or" linking two distinct element mentions;
// bare "or" inside a filter clause must not trigger it.
func detectUnion(q *question) *finding {
	if !strings.Contains(q.lower, "or") || len(q.elements) < 2 {
		return nil
	}
	for i, el1 := range q.elements {
		for _, el2 := range q.elements[i+1:] {
			pattern := `\b` + regexp.QuoteMeta(el1) + `\b.*\bor\b.*\b` + regexp.QuoteMeta(el2) + `\b`
			if matched, _ := regexp.MatchString(pattern, q.lower); matched {
				return &finding{
					intents:   []Intent{Union},
					functions: []string{"UNION"},
					hints:     []string{"Two tables linked with OR; a UNION may be needed"},
				}
			}
		}
	}
	return nil
}

var subqueryIndicators = []string{
	"that have", "which have", "whose", "where there exists",
	"that are in", "that are not in", "in the list of",
}

func detectSubquery(q *question) *finding {
	if !q.containsAny(subqueryIndicators) || !hasFilterSignals(q) {
		return nil
	}
	return &finding{
		intents: []Intent{Subquery},
		hints:   []string{"Complex condition; may need a subquery in WHERE"},
	}
}
