// ABOUTME: Reads databases, tables, and column definitions from a live database server
// ABOUTME: Each call opens a short-lived connection and closes it before returning
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/harper/ddl-architect/internal/models"
)

// Introspector reads catalogs through registered dialects
type Introspector struct {
	dialects map[string]Dialect
	logger   *log.Logger
}

// NewIntrospector registers the built-in dialects
func NewIntrospector(logger *log.Logger) *Introspector {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Introspector{
		dialects: map[string]Dialect{
			"postgres":  postgresDialect{},
			"mysql":     mysqlDialect{},
			"sqlserver": sqlServerDialect{},
			"sqlite":    sqliteDialect{},
		},
		logger: logger,
	}
}

// Register adds or replaces the dialect for dbType
func (i *Introspector) Register(dbType string, d Dialect) {
	i.dialects[strings.ToLower(dbType)] = d
}

// Supported lists the registered database types
func (i *Introspector) Supported() []string {
	out := make([]string, 0, len(i.dialects))
	for k := range i.dialects {
		out = append(out, k)
	}
	return out
}

func (i *Introspector) dialect(dbType string) (Dialect, error) {
	d, ok := i.dialects[strings.ToLower(dbType)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported database type %q", models.ErrValidation, dbType)
	}
	return d, nil
}

// open connects and pings; errors never carry the DSN
func (i *Introspector) open(ctx context.Context, c Connection, database string) (*sql.DB, error) {
	d, err := i.dialect(c.DBType)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Driver(), d.DSN(c, database))
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%s: %w", models.ErrConnection, c.DBType, c.Host, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		i.logger.Error("database connection failed", "db_type", c.DBType, "host", c.Host, "database", database, "err", err)
		return nil, fmt.Errorf("%w: %s@%s database %q: %w", models.ErrConnection, c.DBType, c.Host, database, err)
	}
	return db, nil
}

// Ping checks that the connection details reach c.Database
func (i *Introspector) Ping(ctx context.Context, c Connection) error {
	db, err := i.open(ctx, c, c.Database)
	if err != nil {
		return err
	}
	i.logger.Info("database connection verified", "db_type", c.DBType, "host", c.Host, "database", c.Database)
	return db.Close()
}

// Databases lists the user databases on the server
func (i *Introspector) Databases(ctx context.Context, c Connection) ([]string, error) {
	d, err := i.dialect(c.DBType)
	if err != nil {
		return nil, err
	}
	db, err := i.open(ctx, c, d.SystemDatabase())
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	names, err := queryStrings(ctx, db, d.DatabasesQuery())
	if err != nil {
		return nil, fmt.Errorf("%w: list databases on %s: %w", models.ErrConnection, c.Host, err)
	}
	i.logger.Info("fetched databases", "db_type", c.DBType, "host", c.Host, "count", len(names))
	return names, nil
}

// Tables lists the base tables of database
func (i *Introspector) Tables(ctx context.Context, c Connection, database string) ([]string, error) {
	d, err := i.dialect(c.DBType)
	if err != nil {
		return nil, err
	}
	db, err := i.open(ctx, c, database)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	names, err := queryStrings(ctx, db, d.TablesQuery())
	if err != nil {
		return nil, fmt.Errorf("%w: list tables in %s: %w", models.ErrConnection, database, err)
	}
	i.logger.Info("fetched tables", "database", database, "count", len(names))
	return names, nil
}

// TableSchemas reads the columns of each table in c.Database
func (i *Introspector) TableSchemas(ctx context.Context, c Connection, tables []string) (models.TableSchemas, error) {
	d, err := i.dialect(c.DBType)
	if err != nil {
		return nil, err
	}
	db, err := i.open(ctx, c, c.Database)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	schemas := make(models.TableSchemas, len(tables))
	for _, table := range tables {
		cols, err := queryColumns(ctx, db, d.ColumnsQuery(), table)
		if err != nil {
			return nil, fmt.Errorf("%w: read columns of %s.%s: %w", models.ErrConnection, c.Database, table, err)
		}
		schemas[table] = cols
	}

	i.logger.Info("retrieved table schemas", "database", c.Database, "tables", len(schemas))
	return schemas, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func queryColumns(ctx context.Context, db *sql.DB, query, table string) ([]models.Column, error) {
	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols := []models.Column{}
	for rows.Next() {
		var (
			c        models.Column
			nullable string
		)
		if err := rows.Scan(&c.Name, &c.Type, &nullable); err != nil {
			return nil, err
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
