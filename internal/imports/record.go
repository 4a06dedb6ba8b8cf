package imports

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/thaidate"
)

// Record is one validated source row ready for upsert.
type Record struct {
	RowNumber  int
	NaturalKey string
	// Values holds one entry per Schema.StorageColumns name. Nil means NULL.
	Values map[string]any
}

// Args returns the record's values in StorageColumns order.
func (r Record) Args(s *Schema) []any {
	cols := s.StorageColumns()
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = r.Values[c]
	}
	return args
}

// RowError is one entry of a file's error log.
type RowError struct {
	RowNumber int    `json:"row_number"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.RowNumber, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.RowNumber, e.Field, e.Message)
}

// layout binds a schema to the column positions found in a header row.
type layout struct {
	schema *Schema
	pos    map[string]int
}

func newLayout(s *Schema, header []string) (*layout, error) {
	pos := s.index(header)
	for _, c := range s.Columns {
		if _, ok := pos[c.Field]; !ok && c.Required {
			return nil, fmt.Errorf("%w: %s header has no %s column", ErrHeaderNotFound, s.Kind, c.Field)
		}
	}
	return &layout{schema: s, pos: pos}, nil
}

// parse validates one data row. The first failing field is reported.
func (l *layout) parse(rowNumber int, cells []string) (Record, *RowError) {
	rec := Record{
		RowNumber: rowNumber,
		Values:    make(map[string]any, len(l.schema.Columns)+2),
	}

	for _, c := range l.schema.Columns {
		raw := ""
		if i, ok := l.pos[c.Field]; ok && i < len(cells) {
			raw = strings.TrimSpace(cells[i])
		}

		if raw == "" || raw == "-" {
			if c.Required {
				return rec, &RowError{RowNumber: rowNumber, Field: c.Field, Message: "required value is missing"}
			}
			rec.Values[c.Field] = nil
			if c.Type == Date || c.Type == DateTime {
				rec.Values[c.Field+"_th"] = nil
			}
			continue
		}

		v, err := convert(c.Type, raw)
		if err != nil {
			return rec, &RowError{RowNumber: rowNumber, Field: c.Field, Message: err.Error()}
		}
		rec.Values[c.Field] = v

		if t, ok := v.(time.Time); ok {
			if c.Type == Date {
				rec.Values[c.Field+"_th"] = thaidate.Format(t)
			} else {
				rec.Values[c.Field+"_th"] = thaidate.FormatDateTime(t)
			}
		}
	}

	key, err := l.naturalKey(rec)
	if err != nil {
		return rec, &RowError{RowNumber: rowNumber, Message: err.Error()}
	}
	rec.NaturalKey = key
	return rec, nil
}

func (l *layout) naturalKey(rec Record) (string, error) {
	parts := make([]string, len(l.schema.Key))
	for i, field := range l.schema.Key {
		s := keyString(rec.Values[field])
		if s == "" {
			return "", fmt.Errorf("natural key field %s is empty", field)
		}
		parts[i] = s
	}
	return strings.Join(parts, "|"), nil
}

func keyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.DateOnly)
	case int64:
		return strconv.FormatInt(t, 10)
	case decimal.Decimal:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func convert(t ColumnType, raw string) (any, error) {
	switch t {
	case Int:
		n, err := strconv.ParseInt(cleanNumber(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return n, nil
	case Decimal:
		d, err := decimal.NewFromString(cleanNumber(raw))
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return d, nil
	case Date:
		d, err := thaidate.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date", raw)
		}
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
	case DateTime:
		d, err := thaidate.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date", raw)
		}
		return d, nil
	default:
		return raw, nil
	}
}

// cleanNumber strips thousands separators and a trailing currency label.
func cleanNumber(raw string) string {
	s := strings.ReplaceAll(raw, ",", "")
	s = strings.TrimSuffix(s, "บาท")
	return strings.TrimSpace(s)
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
