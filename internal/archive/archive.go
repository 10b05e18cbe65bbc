// Package archive snapshots provisioned tables to object storage as a
// single parquet dataset per table.
package archive

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/storage"
)

const contentType = "application/vnd.apache.parquet"

// schemaRow marks the record that carries only the column layout of an
// empty table.
const schemaRow = -1

// Record is one archived row. Columns repeats the column layout as an
// ordered JSON object so a dataset can be restored without the registry.
type Record struct {
	TableName   string `parquet:"table_name"`
	Columns     string `parquet:"columns"`
	RowIndex    int64  `parquet:"row_index"`
	PayloadJSON string `parquet:"payload_json"`
}

// Dataset is a decoded archive: the table definition and its rows in
// insertion order.
type Dataset struct {
	Table catalog.TableDef
	Rows  []catalog.Row
}

type Archiver struct {
	store storage.ObjectStore
}

func New(store storage.ObjectStore) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Archiver{store: store}, nil
}

// Encode renders rows as parquet. An empty table is written as a single
// schema record.
func Encode(def catalog.TableDef, rows []catalog.Row) ([]byte, error) {
	columns, err := encodeColumns(def.Columns)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, max(len(rows), 1))
	for i, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		records = append(records, Record{
			TableName:   def.Name,
			Columns:     columns,
			RowIndex:    int64(i),
			PayloadJSON: string(payload),
		})
	}
	if len(records) == 0 {
		records = append(records, Record{TableName: def.Name, Columns: columns, RowIndex: schemaRow})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Record](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode rebuilds the dataset written by Encode. Row values come back
// normalized the same way as provisioned rows.
func Decode(data []byte) (Dataset, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Dataset{}, fmt.Errorf("open parquet file: %w", err)
	}
	reader := parquet.NewGenericReader[Record](file)
	defer func() { _ = reader.Close() }()

	records := make([]Record, reader.NumRows())
	n, err := reader.Read(records)
	if err != nil && !errors.Is(err, io.EOF) {
		return Dataset{}, fmt.Errorf("read parquet rows: %w", err)
	}
	records = records[:n]
	if len(records) == 0 {
		return Dataset{}, errors.New("dataset has no records")
	}

	head := records[0]
	columns, err := catalog.ParseColumns(head.Columns)
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset columns: %w", err)
	}
	def := catalog.TableDef{Name: head.TableName, Columns: columns}
	if err := def.Validate(); err != nil {
		return Dataset{}, fmt.Errorf("dataset definition: %w", err)
	}

	slices.SortStableFunc(records, func(a, b Record) int { return cmp.Compare(a.RowIndex, b.RowIndex) })
	payloads := make([]string, 0, len(records))
	for _, record := range records {
		if record.TableName != def.Name {
			return Dataset{}, fmt.Errorf("dataset mixes tables %q and %q", def.Name, record.TableName)
		}
		if record.RowIndex == schemaRow {
			continue
		}
		payloads = append(payloads, record.PayloadJSON)
	}
	rows, err := catalog.ParseRows("[" + strings.Join(payloads, ",") + "]")
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset rows: %w", err)
	}
	return Dataset{Table: def, Rows: rows}, nil
}

func encodeColumns(columns []catalog.Column) (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, col := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		name, err := json.Marshal(col.Name)
		if err != nil {
			return "", err
		}
		typ, err := json.Marshal(col.Type)
		if err != nil {
			return "", err
		}
		b.Write(name)
		b.WriteByte(':')
		b.Write(typ)
	}
	b.WriteByte('}')
	return b.String(), nil
}

func (a *Archiver) Archive(ctx context.Context, def catalog.TableDef, rows []catalog.Row) (storage.ObjectInfo, error) {
	key, err := storage.DatasetKey(def.Name)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	data, err := Encode(def, rows)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	return a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (a *Archiver) Load(ctx context.Context, tableName string) (Dataset, error) {
	key, err := storage.DatasetKey(tableName)
	if err != nil {
		return Dataset{}, err
	}
	body, err := a.store.Get(ctx, key)
	if err != nil {
		return Dataset{}, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset %q: %w", key, err)
	}
	dataset, err := Decode(data)
	if err != nil {
		return Dataset{}, fmt.Errorf("decode dataset %q: %w", key, err)
	}
	return dataset, nil
}

func (a *Archiver) Remove(ctx context.Context, tableName string) error {
	key, err := storage.DatasetKey(tableName)
	if err != nil {
		return err
	}
	return a.store.Delete(ctx, key)
}
