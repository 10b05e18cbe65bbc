package storage

import (
	"fmt"
	"path"
	"regexp"
)

const DatasetFile = "dataset.parquet"

var tableComponentPattern = regexp.MustCompile(`^\w{1,64}$`)

// DatasetKey is the object key holding the archived rows of a table.
func DatasetKey(tableName string) (string, error) {
	if !tableComponentPattern.MatchString(tableName) {
		return "", fmt.Errorf("invalid table name: %q", tableName)
	}
	return path.Join("tables", tableName, DatasetFile), nil
}
