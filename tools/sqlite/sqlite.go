// Package sqlite exposes SQLite database access as tools: run queries,
// create and drop tables, insert rows, and introspect schema.
// Database paths are relative to a configured root.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/toolcall"
	"github.com/effective-security/toolgate/tools"

	// registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBPath is used when a tool call does not name a database.
const DefaultDBPath = "data.db"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config for the SQLite tool set.
type Config struct {
	// Root is the directory database paths resolve under.
	Root string `json:"root,omitempty" yaml:"root,omitempty" toml:"root"`
}

type provider struct {
	root string
}

// Tools returns the SQLite tool set.
func Tools(cfg Config) ([]tools.ITool, error) {
	p := &provider{root: cfg.Root}

	queryTool, err := tools.NewFunc("execute_query", "Execute a SQL query. Returns rows for SELECT, affected count otherwise.", p.executeQuery)
	if err != nil {
		return nil, err
	}
	queryTool.WithSideEffect(tools.SideEffectDangerous).WithActionArg("sql")

	createTool, err := tools.NewFunc("create_table", "Create a new table with the given column definitions.", p.createTable)
	if err != nil {
		return nil, err
	}
	createTool.WithSideEffect(tools.SideEffectMutating)

	insertTool, err := tools.NewFunc("insert_row", "Insert a row into a table.", p.insertRow)
	if err != nil {
		return nil, err
	}
	insertTool.WithSideEffect(tools.SideEffectMutating)

	schemaTool, err := tools.NewFunc("get_schema", "Get column definitions for all tables in the database.", p.getSchema)
	if err != nil {
		return nil, err
	}
	schemaTool.WithIdempotent(true)

	listTool, err := tools.NewFunc("list_tables", "List all table names in the database.", p.listTables)
	if err != nil {
		return nil, err
	}
	listTool.WithIdempotent(true)

	dropTool, err := tools.NewFunc("drop_table", "Drop a table from the database.", p.dropTable)
	if err != nil {
		return nil, err
	}
	dropTool.WithSideEffect(tools.SideEffectMutating)

	return []tools.ITool{queryTool, createTool, insertTool, schemaTool, listTool, dropTool}, nil
}

func validIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

func validDBPath(path string) bool {
	if path == "" {
		return false
	}
	if filepath.IsAbs(path) {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// open resolves the database path under the root and opens a
// connection. The file is created on first write.
func (p *provider) open(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultDBPath
	}
	if !validDBPath(path) {
		return nil, toolcall.NewError("invalid db_path: %s", path)
	}
	db, err := sql.Open("sqlite3", filepath.Join(p.root, path))
	if err != nil {
		return nil, toolcall.NewError("database connection failed: %s", err.Error())
	}
	return db, nil
}

type ExecuteQueryInput struct {
	SQL    string `json:"sql" yaml:"sql" jsonschema:"description=SQL query to execute."`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty" jsonschema:"description=Path to database file (default: data.db)."`
}

type ExecuteQueryOutput struct {
	Rows         []map[string]any `json:"rows" yaml:"rows"`
	AffectedRows int64            `json:"affected_rows,omitempty" yaml:"affected_rows,omitempty"`
}

func (p *provider) executeQuery(ctx context.Context, req *ExecuteQueryInput) (*ExecuteQueryOutput, error) {
	if req.SQL == "" {
		return nil, toolcall.NewError("invalid request: empty sql")
	}
	db, err := p.open(req.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(req.SQL)), "SELECT") {
		rows, err := queryRows(ctx, db, req.SQL)
		if err != nil {
			return nil, toolcall.NewError("query execution failed: %s", err.Error())
		}
		return &ExecuteQueryOutput{Rows: rows}, nil
	}

	res, err := db.ExecContext(ctx, req.SQL)
	if err != nil {
		return nil, toolcall.NewError("query execution failed: %s", err.Error())
	}
	affected, _ := res.RowsAffected()
	return &ExecuteQueryOutput{Rows: []map[string]any{}, AffectedRows: affected}, nil
}

// queryRows scans a result set into name-keyed maps, so the caller
// does not need to know the column layout up front.
func queryRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.WithStack(err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if bs, ok := v.([]byte); ok {
				v = string(bs)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, errors.WithStack(rows.Err())
}

type CreateTableInput struct {
	TableName string `json:"table_name" yaml:"table_name" jsonschema:"description=Name of the table to create."`
	Schema    string `json:"schema" yaml:"schema" jsonschema:"description=Column definitions (e.g. 'id INTEGER PRIMARY KEY, name TEXT')."`
	DBPath    string `json:"db_path,omitempty" yaml:"db_path,omitempty" jsonschema:"description=Path to database file (default: data.db)."`
}

type CreateTableOutput struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

func (p *provider) createTable(ctx context.Context, req *CreateTableInput) (*CreateTableOutput, error) {
	if !validIdentifier(req.TableName) {
		return nil, toolcall.NewError("invalid table name: %s", req.TableName)
	}
	db, err := p.open(req.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+req.TableName+" ("+req.Schema+")")
	if err != nil {
		return nil, toolcall.NewError("table creation failed: %s", err.Error())
	}
	return &CreateTableOutput{
		Success: true,
		Message: "table '" + req.TableName + "' created",
	}, nil
}

type InsertRowInput struct {
	TableName string `json:"table_name" yaml:"table_name" jsonschema:"description=Name of the table."`
	Data      string `json:"data" yaml:"data" jsonschema:"description=JSON object of column/value pairs."`
	DBPath    string `json:"db_path,omitempty" yaml:"db_path,omitempty" jsonschema:"description=Path to database file (default: data.db)."`
}

type InsertRowOutput struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

func (p *provider) insertRow(ctx context.Context, req *InsertRowInput) (*InsertRowOutput, error) {
	if !validIdentifier(req.TableName) {
		return nil, toolcall.NewError("invalid table name: %s", req.TableName)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(req.Data), &data); err != nil {
		return nil, toolcall.NewError("invalid JSON in data: %s", err.Error())
	}
	if len(data) == 0 {
		return nil, toolcall.NewError("invalid request: empty data")
	}

	// sorted columns for deterministic SQL; values are bound
	columns := make([]string, 0, len(data))
	for col := range data {
		if !validIdentifier(col) {
			return nil, toolcall.NewError("invalid column name: %s", col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	values := make([]any, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	for _, col := range columns {
		values = append(values, data[col])
		placeholders = append(placeholders, "?")
	}

	db, err := p.open(req.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	stmt := "INSERT INTO " + req.TableName +
		" (" + strings.Join(columns, ",") + ") VALUES (" + strings.Join(placeholders, ",") + ")"
	if _, err := db.ExecContext(ctx, stmt, values...); err != nil {
		return nil, toolcall.NewError("insert failed: %s", err.Error())
	}
	return &InsertRowOutput{
		Success: true,
		Message: "row inserted into '" + req.TableName + "'",
	}, nil
}

type GetSchemaInput struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty" jsonschema:"description=Path to database file (default: data.db)."`
}

type ColumnInfo struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	NotNull    bool   `json:"not_null" yaml:"not_null"`
	PrimaryKey bool   `json:"primary_key" yaml:"primary_key"`
}

type TableSchema struct {
	Table   string       `json:"table" yaml:"table"`
	Columns []ColumnInfo `json:"columns" yaml:"columns"`
}

type GetSchemaOutput struct {
	Schema []TableSchema `json:"schema" yaml:"schema"`
}

func (p *provider) getSchema(ctx context.Context, req *GetSchemaInput) (*GetSchemaOutput, error) {
	db, err := p.open(req.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	names, err := tableNames(ctx, db)
	if err != nil {
		return nil, toolcall.NewError("schema retrieval failed: %s", err.Error())
	}

	schema := make([]TableSchema, 0, len(names))
	for _, name := range names {
		rows, err := db.QueryContext(ctx, "PRAGMA table_info("+name+")")
		if err != nil {
			return nil, toolcall.NewError("schema retrieval failed: %s", err.Error())
		}
		var columns []ColumnInfo
		for rows.Next() {
			var (
				cid        int
				colName    string
				colType    string
				notNull    int
				defaultVal sql.NullString
				pk         int
			)
			if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultVal, &pk); err != nil {
				rows.Close()
				return nil, toolcall.NewError("schema retrieval failed: %s", err.Error())
			}
			columns = append(columns, ColumnInfo{
				Name:       colName,
				Type:       colType,
				NotNull:    notNull != 0,
				PrimaryKey: pk != 0,
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, toolcall.NewError("schema retrieval failed: %s", err.Error())
		}
		schema = append(schema, TableSchema{Table: name, Columns: columns})
	}
	return &GetSchemaOutput{Schema: schema}, nil
}

type ListTablesInput struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty" jsonschema:"description=Path to database file (default: data.db)."`
}

type ListTablesOutput struct {
	Tables []string `json:"tables" yaml:"tables"`
}

func (p *provider) listTables(ctx context.Context, req *ListTablesInput) (*ListTablesOutput, error) {
	db, err := p.open(req.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	names, err := tableNames(ctx, db)
	if err != nil {
		return nil, toolcall.NewError("table listing failed: %s", err.Error())
	}
	return &ListTablesOutput{Tables: names}, nil
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.WithStack(err)
		}
		names = append(names, name)
	}
	return names, errors.WithStack(rows.Err())
}

type DropTableInput struct {
	TableName string `json:"table_name" yaml:"table_name" jsonschema:"description=Name of the table to drop."`
	DBPath    string `json:"db_path,omitempty" yaml:"db_path,omitempty" jsonschema:"description=Path to database file (default: data.db)."`
}

type DropTableOutput struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

func (p *provider) dropTable(ctx context.Context, req *DropTableInput) (*DropTableOutput, error) {
	if !validIdentifier(req.TableName) {
		return nil, toolcall.NewError("invalid table name: %s", req.TableName)
	}
	db, err := p.open(req.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	// existence check before the drop
	var name string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", req.TableName).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, toolcall.NewError("table '%s' does not exist", req.TableName)
	}
	if err != nil {
		return nil, toolcall.NewError("drop failed: %s", err.Error())
	}

	if _, err := db.ExecContext(ctx, "DROP TABLE "+req.TableName); err != nil {
		return nil, toolcall.NewError("drop failed: %s", err.Error())
	}
	return &DropTableOutput{
		Success: true,
		Message: "table '" + req.TableName + "' dropped",
	}, nil
}
