package database

import "strings"

// Driver names a database backend.
type Driver string

const (
	// DriverPostgres is the shared PostgreSQL store used in production.
	DriverPostgres Driver = "postgres"
	// DriverSQLite is the embedded store used for local runs and tests.
	DriverSQLite Driver = "sqlite"
)

func (d Driver) String() string { return string(d) }

// IsValid reports whether d is a supported backend.
func (d Driver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}

var driverAliases = map[string]Driver{
	"postgres":   DriverPostgres,
	"postgresql": DriverPostgres,
	"pg":         DriverPostgres,
	"sqlite":     DriverSQLite,
	"sqlite3":    DriverSQLite,
}

var (
	sqlitePrefixes = []string{"sqlite://", "file:"}
	sqliteSuffixes = []string{".db", ".sqlite", ".sqlite3"}
)

// ParseDriver maps DATABASE_DRIVER onto a Driver. Anything that is not a
// known alias, "auto" included, is resolved from url.
func ParseDriver(name, url string) Driver {
	if d, ok := driverAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d
	}
	return DetectDriver(url)
}

// DetectDriver infers the backend from a connection string. An empty URL
// selects SQLite so the service runs without external infrastructure;
// unrecognised strings are treated as PostgreSQL DSNs.
func DetectDriver(url string) Driver {
	if url == "" {
		return DriverSQLite
	}
	for _, p := range sqlitePrefixes {
		if strings.HasPrefix(url, p) {
			return DriverSQLite
		}
	}
	for _, s := range sqliteSuffixes {
		if strings.HasSuffix(url, s) {
			return DriverSQLite
		}
	}
	return DriverPostgres
}
