package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDriver(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected Driver
	}{
		{name: "empty URL selects SQLite", url: "", expected: DriverSQLite},
		{name: "postgres scheme", url: "postgres://saffron:pw@localhost:5432/billing", expected: DriverPostgres},
		{name: "postgresql scheme", url: "postgresql://saffron:pw@localhost:5432/billing", expected: DriverPostgres},
		{name: "sqlite scheme", url: "sqlite:///var/lib/saffron/billing.sqlite", expected: DriverSQLite},
		{name: "file scheme", url: "file:billing.db", expected: DriverSQLite},
		{name: "db extension", url: "/tmp/billing.db", expected: DriverSQLite},
		{name: "sqlite3 extension", url: "/tmp/billing.sqlite3", expected: DriverSQLite},
		{name: "unknown falls back to PostgreSQL", url: "billing-db.internal:5432", expected: DriverPostgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectDriver(tt.url))
		})
	}
}

func TestParseDriver(t *testing.T) {
	assert.Equal(t, DriverPostgres, ParseDriver("postgres", ""))
	assert.Equal(t, DriverPostgres, ParseDriver(" PG ", ""))
	assert.Equal(t, DriverSQLite, ParseDriver("sqlite3", "postgres://x"))
	assert.Equal(t, DriverPostgres, ParseDriver("auto", "postgres://x"))
	assert.Equal(t, DriverSQLite, ParseDriver("", ""))
}

func TestDriver_IsValid(t *testing.T) {
	assert.True(t, DriverPostgres.IsValid())
	assert.True(t, DriverSQLite.IsValid())
	assert.False(t, Driver("mysql").IsValid())
	assert.Equal(t, "sqlite", DriverSQLite.String())
}

func TestNewConnection_Unregistered(t *testing.T) {
	_, err := NewConnection(context.Background(), Config{Driver: "mysql"})
	assert.EqualError(t, err, "unsupported database driver: mysql")
}
