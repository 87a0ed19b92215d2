// ABOUTME: Tests for schema introspection using the sqlite dialect
// ABOUTME: Also checks connection strings for the server dialects
package schema

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/ddl-architect/internal/models"
)

func newSampleDB(t *testing.T) Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`
		CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL, total REAL);
	`)
	if err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return Connection{DBType: "sqlite", Host: path, Database: "main"}
}

func TestSQLiteIntrospection(t *testing.T) {
	ctx := context.Background()
	conn := newSampleDB(t)
	in := NewIntrospector(nil)

	if err := in.Ping(ctx, conn); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	dbs, err := in.Databases(ctx, conn)
	if err != nil {
		t.Fatalf("Databases() error = %v", err)
	}
	if len(dbs) == 0 || dbs[0] != "main" {
		t.Errorf("Databases() = %v, want main first", dbs)
	}

	tables, err := in.Tables(ctx, conn, "main")
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if strings.Join(tables, ",") != "customers,orders" {
		t.Errorf("Tables() = %v", tables)
	}

	schemas, err := in.TableSchemas(ctx, conn, []string{"customers", "orders"})
	if err != nil {
		t.Fatalf("TableSchemas() error = %v", err)
	}
	cust := schemas["customers"]
	if len(cust) != 3 {
		t.Fatalf("customers columns = %v", cust)
	}
	want := []models.Column{
		{Name: "id", Type: "INTEGER", Nullable: true},
		{Name: "name", Type: "TEXT", Nullable: false},
		{Name: "email", Type: "TEXT", Nullable: true},
	}
	for i, c := range want {
		if cust[i] != c {
			t.Errorf("column %d = %+v, want %+v", i, cust[i], c)
		}
	}
	if len(schemas["orders"]) != 3 {
		t.Errorf("orders columns = %v", schemas["orders"])
	}
}

func TestTableNamesAreParameters(t *testing.T) {
	conn := newSampleDB(t)
	schemas, err := NewIntrospector(nil).TableSchemas(context.Background(), conn, []string{"orders'; DROP TABLE orders; --"})
	if err != nil {
		t.Fatalf("TableSchemas() error = %v", err)
	}
	for _, cols := range schemas {
		if len(cols) != 0 {
			t.Errorf("hostile table name matched columns: %v", cols)
		}
	}

	tables, _ := NewIntrospector(nil).Tables(context.Background(), conn, "main")
	if len(tables) != 2 {
		t.Errorf("tables after hostile lookup = %v", tables)
	}
}

func TestUnsupportedType(t *testing.T) {
	_, err := NewIntrospector(nil).Databases(context.Background(), Connection{DBType: "oracle"})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("Databases() error = %v, want ErrValidation", err)
	}
}

func TestDSN(t *testing.T) {
	conn := Connection{Host: "db.internal:5432", Username: "admin", Password: "p@ss word"}

	tests := []struct {
		name    string
		dialect Dialect
		want    []string
	}{
		{"postgres", postgresDialect{}, []string{"postgres://admin:", "@db.internal:5432/sales", "sslmode=disable"}},
		{"mysql", mysqlDialect{}, []string{"admin:p@ss word@tcp(db.internal:5432)/sales"}},
		{"sqlserver", sqlServerDialect{}, []string{"sqlserver://admin:", "database=sales"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.dialect.DSN(conn, "sales")
			for _, w := range tt.want {
				if !strings.Contains(dsn, w) {
					t.Errorf("DSN() = %q, missing %q", dsn, w)
				}
			}
		})
	}

	if got := (mysqlDialect{}).DSN(Connection{Host: "localhost"}, ""); !strings.Contains(got, "tcp(localhost:3306)") {
		t.Errorf("mysql default port DSN = %q", got)
	}
}
