// ABOUTME: Per-engine connection strings and catalog queries for schema introspection
// ABOUTME: Supports postgres, mysql, sqlserver, and sqlite; every query is parameterized
package schema

import (
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// Connection is what a caller supplies to reach a database server
type Connection struct {
	DBType   string `json:"db_type"`
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database_name"`
}

// Dialect knows how to reach one engine and read its catalog
type Dialect interface {
	Driver() string
	DSN(c Connection, database string) string
	// SystemDatabase is connected to when listing databases
	SystemDatabase() string
	DatabasesQuery() string
	TablesQuery() string
	// ColumnsQuery takes the table name as its only parameter and
	// yields name, type, and 'YES'/'NO' nullability in ordinal order
	ColumnsQuery() string
}

type postgresDialect struct{}

func (postgresDialect) Driver() string { return "postgres" }

func (postgresDialect) DSN(c Connection, database string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host,
		Path:     "/" + database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (postgresDialect) SystemDatabase() string { return "postgres" }

func (postgresDialect) DatabasesQuery() string {
	return `SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname`
}

func (postgresDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (postgresDialect) ColumnsQuery() string {
	return `SELECT column_name, data_type, is_nullable FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = 'public' ORDER BY ordinal_position`
}

type mysqlDialect struct{}

func (mysqlDialect) Driver() string { return "mysql" }

func (mysqlDialect) DSN(c Connection, database string) string {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = withDefaultPort(c.Host, "3306")
	cfg.DBName = database
	return cfg.FormatDSN()
}

func (mysqlDialect) SystemDatabase() string { return "" }

func (mysqlDialect) DatabasesQuery() string { return `SHOW DATABASES` }

func (mysqlDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (mysqlDialect) ColumnsQuery() string {
	return `SELECT column_name, data_type, is_nullable FROM information_schema.columns
		WHERE table_name = ? AND table_schema = DATABASE() ORDER BY ordinal_position`
}

type sqlServerDialect struct{}

func (sqlServerDialect) Driver() string { return "sqlserver" }

func (sqlServerDialect) DSN(c Connection, database string) string {
	q := url.Values{}
	q.Set("database", database)
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (sqlServerDialect) SystemDatabase() string { return "master" }

func (sqlServerDialect) DatabasesQuery() string {
	return `SELECT name FROM sys.databases WHERE database_id > 4 ORDER BY name`
}

func (sqlServerDialect) TablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' ORDER BY table_name`
}

func (sqlServerDialect) ColumnsQuery() string {
	return `SELECT column_name, data_type, is_nullable FROM information_schema.columns
		WHERE table_name = @p1 ORDER BY ordinal_position`
}

// sqliteDialect treats Host as the database file path
type sqliteDialect struct{}

func (sqliteDialect) Driver() string { return "sqlite" }

func (sqliteDialect) DSN(c Connection, _ string) string {
	return c.Host
}

func (sqliteDialect) SystemDatabase() string { return "main" }

func (sqliteDialect) DatabasesQuery() string {
	return `SELECT name FROM pragma_database_list ORDER BY seq`
}

func (sqliteDialect) TablesQuery() string {
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

func (sqliteDialect) ColumnsQuery() string {
	return `SELECT name, type, CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END
		FROM pragma_table_info(?) ORDER BY cid`
}

func withDefaultPort(host, port string) string {
	if host == "" {
		return net.JoinHostPort("localhost", port)
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}
