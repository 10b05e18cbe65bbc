package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColumnsKeepsDeclarationOrder(t *testing.T) {
	columns, err := ParseColumns(`{"name":"varchar(50)","weight":"int","height":"int","age":" int "}`)
	require.NoError(t, err)
	assert.Equal(t, []Column{
		{Name: "name", Type: "varchar(50)"},
		{Name: "weight", Type: "int"},
		{Name: "height", Type: "int"},
		{Name: "age", Type: "int"},
	}, columns)
}

func TestParseColumnsRejects(t *testing.T) {
	for _, raw := range []string{
		``,
		`not json`,
		`["name"]`,
		`{}`,
		`{"name":""}`,
		`{"":"int"}`,
		`{"age":5}`,
		`{"age":"int"} {"x":"int"}`,
		`{"age":"int"`,
	} {
		_, err := ParseColumns(raw)
		assert.Errorf(t, err, "ParseColumns(%q)", raw)
	}
}

func TestParseRowsNormalizesValues(t *testing.T) {
	rows, err := ParseRows(`[{"name":"Amy","age":"20"},{"name":"Bo","age":21,"score":9.5,"ok":true,"tags":["a","b"],"note":null}]`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"name": "Amy", "age": "20"}, rows[0])
	assert.Equal(t, Row{
		"name":  "Bo",
		"age":   int64(21),
		"score": 9.5,
		"ok":    true,
		"tags":  `["a","b"]`,
		"note":  nil,
	}, rows[1])
}

func TestParseRowsRejects(t *testing.T) {
	for _, raw := range []string{`{"name":"Amy"}`, `[1,2]`, `[{}]`, `nope`, `[] []`} {
		_, err := ParseRows(raw)
		assert.Errorf(t, err, "ParseRows(%q)", raw)
	}
	rows, err := ParseRows(`[]`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDefinition(t *testing.T) {
	def := TableDef{Name: "students", Columns: []Column{{Name: "name", Type: "varchar(50)"}, {Name: "age", Type: "int"}}}
	assert.Equal(t, "(SNO INT PRIMARY KEY AUTO_INCREMENT, `name` varchar(50), `age` int)", def.Definition())
	assert.Equal(t, []string{"name", "age"}, def.ColumnNames())

	col, ok := def.Column("AGE")
	assert.True(t, ok)
	assert.Equal(t, "age", col.Name)
}

func TestValidate(t *testing.T) {
	valid := TableDef{Name: "students", Columns: []Column{{Name: "name", Type: "varchar(50)"}}}
	require.NoError(t, valid.Validate())

	tests := map[string]TableDef{
		"bad table name":    {Name: "stu dents", Columns: valid.Columns},
		"quoted table name": {Name: "a`b", Columns: valid.Columns},
		"no columns":        {Name: "t"},
		"bad column name":   {Name: "t", Columns: []Column{{Name: "na;me", Type: "int"}}},
		"reserved column":   {Name: "t", Columns: []Column{{Name: "sno", Type: "int"}}},
		"duplicate column":  {Name: "t", Columns: []Column{{Name: "a", Type: "int"}, {Name: "A", Type: "int"}}},
		"bad type":          {Name: "t", Columns: []Column{{Name: "a", Type: "int; DROP TABLE t"}}},
		"quote in type":     {Name: "t", Columns: []Column{{Name: "a", Type: "varchar(5) DEFAULT 'x'"}}},
		"too long":          {Name: "t", Columns: longColumns(40)},
	}
	for name, def := range tests {
		assert.Errorf(t, def.Validate(), name)
	}
}

func longColumns(n int) []Column {
	cols := make([]Column, 0, n)
	for i := 0; i < n; i++ {
		cols = append(cols, Column{Name: "column_" + strings.Repeat("x", 5) + string(rune('a'+i%26)) + string(rune('a'+i/26)), Type: "varchar(255)"})
	}
	return cols
}
