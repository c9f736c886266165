package catalog

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// table is a header plus raw string cells, in source row order.
type table struct {
	header []string
	rows   [][]string
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadCourses reads the course table at path. Files ending in .db, .sqlite or
// .sqlite3 are read from the named SQLite table in rowid order; anything else
// is parsed as CSV with a header row. The returned set lists facets whose
// columns are present.
func LoadCourses(ctx context.Context, path, sqliteTable string) ([]Course, map[Facet]bool, error) {
	var (
		t   *table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		t, err = readSQLite(ctx, path, sqliteTable)
	default:
		t, err = readCSV(path)
	}
	if err != nil {
		return nil, nil, domerrors.NewDataError(path, err)
	}

	courses, available, err := t.courses()
	if err != nil {
		return nil, nil, domerrors.NewDataError(path, err)
	}
	return courses, available, nil
}

func readCSV(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty catalog file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &table{header: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.rows)+1, err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func readSQLite(ctx context.Context, path, tableName string) (*table, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}
	// sql.Open would silently create a missing database file.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+tableName+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", tableName, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	t := &table{header: header}
	cells := make([]sql.NullString, len(header))
	dest := make([]any, len(header))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(t.rows)+1, err)
		}
		rec := make([]string, len(cells))
		for i, c := range cells {
			rec[i] = c.String // NULL scans as ""
		}
		t.rows = append(t.rows, rec)
	}
	return t, rows.Err()
}

// courses maps rows onto Course values. Missing required columns fail the
// load; missing optional columns leave their facet unavailable.
func (t *table) courses() ([]Course, map[Facet]bool, error) {
	index := make(map[string]int, len(t.header))
	for i, h := range t.header {
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	type binding struct {
		col column
		idx int
	}
	bindings := make([]binding, 0, len(columns))
	available := make(map[Facet]bool, len(AllFacets))
	for _, col := range columns {
		idx := -1
		for _, alias := range col.aliases {
			if i, ok := index[alias]; ok {
				idx = i
				break
			}
		}
		if idx < 0 {
			if col.required {
				return nil, nil, fmt.Errorf("missing required column %q", col.aliases[0])
			}
			continue
		}
		if col.facet != "" {
			available[col.facet] = true
		}
		bindings = append(bindings, binding{col: col, idx: idx})
	}

	courses := make([]Course, len(t.rows))
	for r, rec := range t.rows {
		for _, b := range bindings {
			if b.idx < len(rec) {
				b.col.assign(&courses[r], rec[b.idx])
			}
		}
	}
	return courses, available, nil
}
