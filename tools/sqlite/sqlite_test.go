package sqlite_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/effective-security/toolgate/tools"
	"github.com/effective-security/toolgate/tools/sqlite"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToolset(t *testing.T) map[string]tools.ITool {
	t.Helper()
	list, err := sqlite.Tools(sqlite.Config{Root: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, list, 6)

	byName := make(map[string]tools.ITool, len(list))
	for _, tool := range list {
		byName[tool.Name()] = tool
	}
	return byName
}

func mustCall[T any](t *testing.T, tool tools.ITool, args map[string]any) *T {
	t.Helper()
	bs, err := tool.Call(context.Background(), args)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(bs, &out))
	return &out
}

func Test_Toolset(t *testing.T) {
	byName := newToolset(t)

	assert.Equal(t, tools.SideEffectDangerous, byName["execute_query"].SideEffect())
	assert.False(t, byName["execute_query"].Idempotent())

	assert.Equal(t, tools.SideEffectMutating, byName["create_table"].SideEffect())
	assert.Equal(t, tools.SideEffectMutating, byName["insert_row"].SideEffect())
	assert.Equal(t, tools.SideEffectMutating, byName["drop_table"].SideEffect())

	assert.True(t, byName["get_schema"].Idempotent())
	assert.True(t, byName["list_tables"].Idempotent())

	// the policy guard matches the raw SQL
	dt, ok := byName["execute_query"].(tools.DangerousTool)
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", dt.PolicyAction(map[string]any{"sql": "SELECT 1"}))
}

func Test_CreateInsertQuery(t *testing.T) {
	byName := newToolset(t)

	created := mustCall[sqlite.CreateTableOutput](t, byName["create_table"], map[string]any{
		"table_name": "users",
		"schema":     "id INTEGER PRIMARY KEY, name TEXT, age INTEGER",
	})
	assert.True(t, created.Success)

	inserted := mustCall[sqlite.InsertRowOutput](t, byName["insert_row"], map[string]any{
		"table_name": "users",
		"data":       `{"name": "Alice", "age": 30}`,
	})
	assert.True(t, inserted.Success)

	mustCall[sqlite.InsertRowOutput](t, byName["insert_row"], map[string]any{
		"table_name": "users",
		"data":       `{"name": "Bob", "age": 25}`,
	})

	rows := mustCall[sqlite.ExecuteQueryOutput](t, byName["execute_query"], map[string]any{
		"sql": "SELECT name, age FROM users ORDER BY name",
	})
	require.Len(t, rows.Rows, 2)
	assert.Equal(t, "Alice", rows.Rows[0]["name"])
	assert.EqualValues(t, 30, rows.Rows[0]["age"])
	assert.Equal(t, "Bob", rows.Rows[1]["name"])

	updated := mustCall[sqlite.ExecuteQueryOutput](t, byName["execute_query"], map[string]any{
		"sql": "UPDATE users SET age = 31 WHERE name = 'Alice'",
	})
	assert.Empty(t, updated.Rows)
	assert.EqualValues(t, 1, updated.AffectedRows)
}

func Test_ExecuteQuery_Errors(t *testing.T) {
	ctx := context.Background()
	byName := newToolset(t)
	tool := byName["execute_query"]

	_, err := tool.Call(ctx, map[string]any{"sql": ""})
	assert.EqualError(t, err, "invalid request: empty sql")

	_, err = tool.Call(ctx, map[string]any{"sql": "SELECT * FROM missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query execution failed")

	_, err = tool.Call(ctx, map[string]any{"sql": "SELECT 1", "db_path": "../outside.db"})
	assert.EqualError(t, err, "invalid db_path: ../outside.db")

	_, err = tool.Call(ctx, map[string]any{"sql": "SELECT 1", "db_path": "/etc/passwd.db"})
	assert.EqualError(t, err, "invalid db_path: /etc/passwd.db")
}

func Test_SchemaAndTables(t *testing.T) {
	byName := newToolset(t)

	mustCall[sqlite.CreateTableOutput](t, byName["create_table"], map[string]any{
		"table_name": "users",
		"schema":     "id INTEGER PRIMARY KEY, name TEXT NOT NULL",
	})
	mustCall[sqlite.CreateTableOutput](t, byName["create_table"], map[string]any{
		"table_name": "events",
		"schema":     "id INTEGER PRIMARY KEY, kind TEXT",
	})

	listed := mustCall[sqlite.ListTablesOutput](t, byName["list_tables"], map[string]any{})
	assert.Equal(t, []string{"events", "users"}, listed.Tables)

	schema := mustCall[sqlite.GetSchemaOutput](t, byName["get_schema"], map[string]any{})
	expected := &sqlite.GetSchemaOutput{
		Schema: []sqlite.TableSchema{
			{
				Table: "events",
				Columns: []sqlite.ColumnInfo{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "kind", Type: "TEXT"},
				},
			},
			{
				Table: "users",
				Columns: []sqlite.ColumnInfo{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "name", Type: "TEXT", NotNull: true},
				},
			},
		},
	}
	assert.Empty(t, cmp.Diff(expected, schema))
}

func Test_DropTable(t *testing.T) {
	ctx := context.Background()
	byName := newToolset(t)

	mustCall[sqlite.CreateTableOutput](t, byName["create_table"], map[string]any{
		"table_name": "tmp",
		"schema":     "id INTEGER",
	})

	dropped := mustCall[sqlite.DropTableOutput](t, byName["drop_table"], map[string]any{
		"table_name": "tmp",
	})
	assert.True(t, dropped.Success)

	_, err := byName["drop_table"].Call(ctx, map[string]any{"table_name": "tmp"})
	assert.EqualError(t, err, "table 'tmp' does not exist")
}

func Test_Validation(t *testing.T) {
	ctx := context.Background()
	byName := newToolset(t)

	_, err := byName["create_table"].Call(ctx, map[string]any{
		"table_name": "users; DROP TABLE users",
		"schema":     "id INTEGER",
	})
	assert.EqualError(t, err, "invalid table name: users; DROP TABLE users")

	_, err = byName["insert_row"].Call(ctx, map[string]any{
		"table_name": "users",
		"data":       "not json",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON in data")

	mustCall[sqlite.CreateTableOutput](t, byName["create_table"], map[string]any{
		"table_name": "users",
		"schema":     "id INTEGER",
	})
	_, err = byName["insert_row"].Call(ctx, map[string]any{
		"table_name": "users",
		"data":       `{"bad-col": 1}`,
	})
	assert.EqualError(t, err, "invalid column name: bad-col")

	_, err = byName["insert_row"].Call(ctx, map[string]any{
		"table_name": "users",
		"data":       `{}`,
	})
	assert.EqualError(t, err, "invalid request: empty data")

	_, err = byName["drop_table"].Call(ctx, map[string]any{"table_name": "1bad"})
	assert.EqualError(t, err, "invalid table name: 1bad")
}
