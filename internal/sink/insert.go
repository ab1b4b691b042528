package sink

import (
	"fmt"
	"sort"
	"strings"

	"noetl/internal/noerr"
)

// SynthesizeInsert builds an `INSERT INTO table (...) VALUES (...)`
// statement from a column -> expression mapping, adding an
// `ON CONFLICT (key) DO UPDATE` clause when mode is "upsert". Column
// order is sorted for deterministic output. Expression values are
// embedded as `{{ ... }}` template references so the plugin's own
// render-then-split pipeline fills them in from data.
func SynthesizeInsert(table string, data map[string]any, mode string, key []string) (string, error) {
	if table == "" {
		return "", noerr.New(noerr.KindSink, "sink table is required for a synthesized insert")
	}
	if len(data) == 0 {
		return "", noerr.New(noerr.KindSink, "sink data is required for a synthesized insert into %q", table)
	}

	columns := make([]string, 0, len(data))
	for col := range data {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	values := make([]string, len(columns))
	for i, col := range columns {
		values[i] = fmt.Sprintf("{{ %s }}", col)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(values, ", "))

	if mode != "upsert" {
		return stmt, nil
	}
	if len(key) == 0 {
		return "", noerr.New(noerr.KindSink, "upsert mode requires at least one key column for table %q", table)
	}

	updates := make([]string, 0, len(columns))
	for _, col := range columns {
		if containsString(key, col) {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	if len(updates) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", stmt, strings.Join(key, ", ")), nil
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", stmt, strings.Join(key, ", "), strings.Join(updates, ", ")), nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
