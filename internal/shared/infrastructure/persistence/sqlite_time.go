package persistence

import (
	"database/sql"
	"time"
)

// SQLiteTimeLayout is fixed-width UTC so stored values compare correctly as text.
const SQLiteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatSQLiteTime renders t for a SQLite TEXT column.
func FormatSQLiteTime(t time.Time) string {
	return t.UTC().Format(SQLiteTimeLayout)
}

// FormatSQLiteTimePtr renders an optional time; nil stays NULL.
func FormatSQLiteTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatSQLiteTime(*t), Valid: true}
}

// ParseSQLiteTime reads a value written by FormatSQLiteTime. RFC3339 values
// written by other tools are accepted too.
func ParseSQLiteTime(s string) (time.Time, error) {
	if t, err := time.Parse(SQLiteTimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseSQLiteTimePtr reads an optional time column.
func ParseSQLiteTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseSQLiteTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
