package exports

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/yungbote/wrapped-backend/internal/analytics/normalize"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

// ParseCSV loads a headered CSV table. Header names are trimmed and
// lowercased; cells stay strings for the normalizer to interpret.
func ParseCSV(r io.Reader) (normalize.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return normalize.Table{}, nil
	}
	if err != nil {
		return normalize.Table{}, chatlog.Wrap(chatlog.KindValidation, "exports.csv", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	t := normalize.Table{Columns: cols}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return normalize.Table{}, chatlog.Wrap(chatlog.KindValidation, "exports.csv", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if i < len(rec) {
				row[c] = rec[i]
			} else {
				row[c] = nil
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
