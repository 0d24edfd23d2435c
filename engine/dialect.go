package engine

import (
	"fmt"
	"strings"

	"github.com/weiihann/ddlbench/workload"
)

// Dialect renders the statements of one engine's SQL dialect.
type Dialect interface {
	// Namespace returns the statements that create and select the working
	// schema. They run after every Connect and are not timed.
	Namespace() []string
	// Table returns the name of the i-th test table as used in statements.
	Table(i int) string
	CreateTable(i int) string
	AlterTable(i, rep int) string
	// CommentTable may return several statements; they run in one scope.
	CommentTable(i, rep int) []string
	ShowTables() string
	InspectTables() string
	// ResetSchema returns the teardown statements of schema-based engines.
	ResetSchema() []string
}

// Statement is the concrete form of one plan step.
type Statement struct {
	Op     workload.Operation
	Object workload.ObjectKind
	SQL    []string
	// Rows marks catalog reads; their result sets are drained.
	Rows bool
}

// Text returns the literal statement text as recorded.
func (s Statement) Text() string {
	return strings.Join(s.SQL, "; ")
}

// BuildStatement maps a plan step onto d.
func BuildStatement(d Dialect, step workload.Step) (Statement, error) {
	if step.Object != workload.ObjectTable {
		return Statement{}, fmt.Errorf("%w: %s on %s", ErrUnsupported, step.Op, step.Object)
	}

	stmt := Statement{Op: step.Op, Object: step.Object}

	switch step.Op {
	case workload.OpCreate:
		stmt.SQL = []string{d.CreateTable(step.Index)}
	case workload.OpAlter:
		stmt.SQL = []string{d.AlterTable(step.Index, step.Repetition)}
	case workload.OpComment:
		stmt.SQL = d.CommentTable(step.Index, step.Repetition)
	case workload.OpShow:
		stmt.SQL = []string{d.ShowTables()}
		stmt.Rows = true
	case workload.OpInspect:
		stmt.SQL = []string{d.InspectTables()}
		stmt.Rows = true
	default:
		return Statement{}, fmt.Errorf("%w: %s", ErrUnsupported, step.Op)
	}

	return stmt, nil
}

const tableColumns = "(id INTEGER PRIMARY KEY, value TEXT)"

func tableName(i int) string {
	return fmt.Sprintf("t_%d", i)
}

func columnName(rep int) string {
	return fmt.Sprintf("c_%d", rep)
}

func commentText(rep int) string {
	return fmt.Sprintf("ddlbench repetition %d", rep)
}

// sqliteDialect has no COMMENT statement; a rename round trip stands in for
// it and leaves the original name in place.
type sqliteDialect struct{}

func (sqliteDialect) Namespace() []string { return nil }

func (sqliteDialect) Table(i int) string { return tableName(i) }

func (d sqliteDialect) CreateTable(i int) string {
	return fmt.Sprintf("CREATE TABLE %s %s", d.Table(i), tableColumns)
}

func (d sqliteDialect) AlterTable(i, rep int) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER", d.Table(i), columnName(rep))
}

func (d sqliteDialect) CommentTable(i, _ int) []string {
	name := d.Table(i)
	tmp := name + "_renamed"

	return []string{
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", name, tmp),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, name),
	}
}

func (sqliteDialect) ShowTables() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table'"
}

func (sqliteDialect) InspectTables() string {
	return "SELECT schema, name, ncol FROM pragma_table_list WHERE type = 'table'"
}

func (sqliteDialect) ResetSchema() []string { return nil }

// schemaDialect holds what the schema-qualified dialects share.
type schemaDialect struct {
	schema string
}

func (d schemaDialect) Table(i int) string {
	return d.schema + "." + tableName(i)
}

func (d schemaDialect) CreateTable(i int) string {
	return fmt.Sprintf("CREATE TABLE %s %s", d.Table(i), tableColumns)
}

func (d schemaDialect) AlterTable(i, rep int) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER", d.Table(i), columnName(rep))
}

func (d schemaDialect) CommentTable(i, rep int) []string {
	return []string{
		fmt.Sprintf("COMMENT ON TABLE %s IS '%s'", d.Table(i), commentText(rep)),
	}
}

func (d schemaDialect) InspectTables() string {
	return fmt.Sprintf(
		"SELECT table_name FROM information_schema.tables WHERE table_schema = '%s'",
		d.schema,
	)
}

func (d schemaDialect) ResetSchema() []string {
	return []string{
		fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", d.schema),
		fmt.Sprintf("CREATE SCHEMA %s", d.schema),
	}
}

type postgresDialect struct {
	schemaDialect
}

func (d postgresDialect) Namespace() []string {
	return []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.schema),
		fmt.Sprintf("SET search_path TO %s", d.schema),
	}
}

func (d postgresDialect) ShowTables() string {
	return fmt.Sprintf(
		"SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = '%s'",
		d.schema,
	)
}

type duckdbDialect struct {
	schemaDialect
}

func (d duckdbDialect) Namespace() []string {
	return []string{fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.schema)}
}

func (d duckdbDialect) ShowTables() string {
	return fmt.Sprintf(
		"SELECT table_name FROM duckdb_tables() WHERE schema_name = '%s'",
		d.schema,
	)
}

// snowflakeDialect works in a dedicated experiment schema that reset drops.
type snowflakeDialect struct {
	schemaDialect
}

func (d snowflakeDialect) Namespace() []string {
	return []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.schema),
		fmt.Sprintf("USE SCHEMA %s", d.schema),
	}
}

func (d snowflakeDialect) ShowTables() string {
	return fmt.Sprintf("SHOW TABLES IN SCHEMA %s", d.schema)
}

// Unquoted identifiers are stored upper case.
func (d snowflakeDialect) InspectTables() string {
	return fmt.Sprintf(
		"SELECT table_name FROM information_schema.tables WHERE table_schema = '%s'",
		strings.ToUpper(d.schema),
	)
}

func (d snowflakeDialect) ResetSchema() []string {
	return []string{fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", d.schema)}
}
