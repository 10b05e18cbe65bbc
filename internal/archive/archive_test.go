package archive

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/storage"
)

var students = catalog.TableDef{
	Name:    "students",
	Columns: []catalog.Column{{Name: "name", Type: "varchar(50)"}, {Name: "age", Type: "int"}},
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode(students, []catalog.Row{
		{"name": "Amy", "age": int64(20)},
		{"name": "Bo", "age": int64(21)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	dataset, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, students, dataset.Table)
	assert.Equal(t, []catalog.Row{
		{"name": "Amy", "age": int64(20)},
		{"name": "Bo", "age": int64(21)},
	}, dataset.Rows)
}

func TestEncodeKeepsColumnOrder(t *testing.T) {
	def := catalog.TableDef{
		Name:    "scores",
		Columns: []catalog.Column{{Name: "zeta", Type: "int"}, {Name: "alpha", Type: "decimal(10, 2)"}},
	}
	data, err := Encode(def, []catalog.Row{{"zeta": int64(1), "alpha": 2.5}})
	require.NoError(t, err)

	dataset, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, dataset.Table.ColumnNames())
	assert.Equal(t, def.Definition(), dataset.Table.Definition())
	assert.Equal(t, []catalog.Row{{"zeta": int64(1), "alpha": 2.5}}, dataset.Rows)
}

func TestEncodeEmptyTableKeepsSchema(t *testing.T) {
	data, err := Encode(students, nil)
	require.NoError(t, err)

	dataset, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, students, dataset.Table)
	assert.Empty(t, dataset.Rows)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not parquet"))
	require.Error(t, err)
}

func TestArchiveLoadRemove(t *testing.T) {
	store := newMemStore()
	archiver, err := New(store)
	require.NoError(t, err)

	info, err := archiver.Archive(context.Background(), students, []catalog.Row{{"name": "Amy", "age": int64(20)}})
	require.NoError(t, err)
	assert.Equal(t, "tables/students/dataset.parquet", info.Key)
	assert.Equal(t, contentType, store.contentTypes[info.Key])

	dataset, err := archiver.Load(context.Background(), "students")
	require.NoError(t, err)
	assert.Equal(t, "students", dataset.Table.Name)
	assert.Equal(t, []catalog.Row{{"name": "Amy", "age": int64(20)}}, dataset.Rows)

	require.NoError(t, archiver.Remove(context.Background(), "students"))
	_, err = archiver.Load(context.Background(), "students")
	require.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestArchiveRejectsInvalidTableName(t *testing.T) {
	archiver, err := New(newMemStore())
	require.NoError(t, err)

	_, err = archiver.Archive(context.Background(), catalog.TableDef{Name: "../etc"}, nil)
	require.Error(t, err)
	require.Error(t, archiver.Remove(context.Background(), "a/b"))
	_, err = archiver.Load(context.Background(), "a/b")
	require.Error(t, err)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

type memStore struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}
