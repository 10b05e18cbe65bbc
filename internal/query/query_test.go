package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultMarshalsAsArrayOfObjectsInColumnOrder(t *testing.T) {
	result := Result{
		Columns: []string{"SNO", "name", "age"},
		Rows: [][]any{
			{int64(1), "Amy", int64(20)},
			{int64(2), "Bo", nil},
		},
	}

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, `[{"SNO":1,"name":"Amy","age":20},{"SNO":2,"name":"Bo","age":null}]`, string(raw))
}

func TestEmptyResultMarshalsAsEmptyArray(t *testing.T) {
	raw, err := json.Marshal(Result{Columns: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(raw))
}
