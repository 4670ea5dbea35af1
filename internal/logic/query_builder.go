package logic

import "fmt"

// Dialect selects placeholder and identifier quoting for the stats database
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DatasetFilter narrows a dataset load. Zero values do not filter.
type DatasetFilter struct {
	Team   string
	Season int
}

// BuildDatasetQuery constructs the read query for a dataset table. The
// table must already be allow-listed; filters become bound parameters.
// Aggregate "Team Totals" rows are always excluded.
func BuildDatasetQuery(dialect Dialect, table string, filter DatasetFilter) (string, []interface{}, error) {
	if !validIdentifier(table) {
		return "", nil, fmt.Errorf("invalid table name: %q", table)
	}

	var args []interface{}
	placeholder := func() string {
		if dialect == DialectPostgres {
			return fmt.Sprintf("$%d", len(args))
		}
		return "?"
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s != %s",
		quoteIdent(dialect, table), quoteIdent(dialect, "Player"), "'"+TeamTotals+"'")

	if filter.Team != "" {
		args = append(args, filter.Team)
		query += fmt.Sprintf(" AND %s = %s", quoteIdent(dialect, "TEAM"), placeholder())
	}
	if filter.Season != 0 {
		args = append(args, filter.Season)
		query += fmt.Sprintf(" AND %s = %s", quoteIdent(dialect, "Season"), placeholder())
	}
	return query, args, nil
}

func quoteIdent(dialect Dialect, name string) string {
	if dialect == DialectPostgres {
		return `"` + name + `"`
	}
	return "`" + name + "`"
}

// validIdentifier accepts letters, digits and underscores only
func validIdentifier(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// validStatName also admits stat headers such as "3P%" and "FG%"
func validStatName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r == '%' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
