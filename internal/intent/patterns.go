package intent

import "strings"

var patterns = map[Intent]string{
	SimpleSelect:       "SELECT * FROM table_name LIMIT 100",
	Filtered:           "SELECT * FROM table_name WHERE condition LIMIT 100",
	Aggregation:        "SELECT {func}(column) FROM table_name LIMIT 100",
	GroupedAggregation: "SELECT group_column, {func}(column) FROM table_name GROUP BY group_column LIMIT 100",
	WindowFunction:     "SELECT column1, column2, {func}(column2) OVER (PARTITION BY group_column) FROM table_name LIMIT 100",
	Join:               "SELECT * FROM table1 JOIN table2 ON table1.id = table2.foreign_id LIMIT 100",
	Sorted:             "SELECT * FROM table_name ORDER BY column DESC LIMIT 100",
	Limited:            "SELECT * FROM table_name LIMIT 10",
	ComplexFilter:      "SELECT * FROM table_name WHERE condition1 AND condition2 LIMIT 100",
	DateTime:           "SELECT * FROM table_name WHERE date_column >= '2024-01-01' LIMIT 100",
	TextSearch:         "SELECT * FROM table_name WHERE column LIKE '%pattern%' LIMIT 100",
	Comparison:         "SELECT * FROM table1 WHERE column > (SELECT AVG(column) FROM table1) LIMIT 100",
	Ranking:            "SELECT *, ROW_NUMBER() OVER (ORDER BY column DESC) AS rank FROM table_name LIMIT 100",
	Distinct:           "SELECT DISTINCT column FROM table_name LIMIT 100",
	NullHandling:       "SELECT * FROM table_name WHERE column IS NOT NULL LIMIT 100",
	Union:              "SELECT * FROM table1 UNION SELECT * FROM table2 LIMIT 100",
	Subquery:           "SELECT * FROM table_name WHERE id IN (SELECT id FROM other_table WHERE condition) LIMIT 100",
}

// examplePattern returns the literal SQL shape for an intent, with the
// first required aggregate substituted into the {func} placeholder.
func examplePattern(primary Intent, functions []string) string {
	pattern, ok := patterns[primary]
	if !ok {
		pattern = patterns[SimpleSelect]
	}
	if strings.Contains(pattern, "{func}") {
		fn := "AVG"
		if len(functions) > 0 {
			fn = functions[0]
		}
		pattern = strings.ReplaceAll(pattern, "{func}", fn)
	}
	return pattern
}
