package logic

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/frame"
)

// OpenDatasetDB opens the stats database for driver (mysql or postgres)
func OpenDatasetDB(driver, url string) (*sql.DB, error) {
	switch Dialect(driver) {
	case DialectMySQL, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported dataset driver %q", driver)
	}
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("open dataset db: %w", err)
	}
	return db, nil
}

// DatasetStore reads and writes per-player-per-season stats tables
type DatasetStore struct {
	db      *sql.DB
	dialect Dialect
	tables  map[string]bool
	logger  *zap.SugaredLogger
}

// NewDatasetStore creates a store that only touches the given tables
func NewDatasetStore(db *sql.DB, dialect Dialect, tables []string, logger *zap.Logger) *DatasetStore {
	allowed := make(map[string]bool, len(tables))
	for _, t := range tables {
		allowed[t] = true
	}
	return &DatasetStore{db: db, dialect: dialect, tables: allowed, logger: logger.Sugar()}
}

func (s *DatasetStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DatasetStore) checkTable(table string) error {
	if !s.tables[table] {
		return fmt.Errorf("table %q is not a dataset table", table)
	}
	return nil
}

// Load reads one table into a frame. Column types are inferred from the
// values: numeric when every non-null value parses as a number.
func (s *DatasetStore) Load(ctx context.Context, table string, filter DatasetFilter) (*frame.Frame, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	query, args, err := BuildDatasetQuery(s.dialect, table, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records [][]string
	values := make([]sql.NullString, len(header))
	dest := make([]interface{}, len(header))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make([]string, len(header))
		for i, v := range values {
			if v.Valid {
				rec[i] = v.String
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}

	f, err := frame.FromRecords(header, records)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	s.logger.Debugw("Loaded dataset", "table", table, "rows", f.Len(), "columns", len(header), "team", filter.Team, "season", filter.Season)
	return f, nil
}

// InsertRows appends the rows of f to table in batches of batchSize.
// Columns are written by name, so the table must already have them.
func (s *DatasetStore) InsertRows(ctx context.Context, table string, f *frame.Frame, batchSize int) (int, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	columns := f.Columns()
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if !validStatName(c) {
			return 0, fmt.Errorf("invalid column name: %q", c)
		}
		quoted[i] = quoteIdent(s.dialect, c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", quoteIdent(s.dialect, table), strings.Join(quoted, ", "))

	inserted := 0
	for start := 0; start < f.Len(); start += batchSize {
		end := min(start+batchSize, f.Len())
		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]interface{}, 0, (end-start)*len(columns))
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for j, v := range f.Row(i) {
				if j > 0 {
					sb.WriteString(", ")
				}
				args = append(args, v)
				if s.dialect == DialectPostgres {
					fmt.Fprintf(&sb, "$%d", len(args))
				} else {
					sb.WriteByte('?')
				}
			}
			sb.WriteByte(')')
		}

		if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
			return inserted, fmt.Errorf("insert into %s rows %d-%d: %w", table, start, end, err)
		}
		inserted += end - start
	}
	return inserted, nil
}
