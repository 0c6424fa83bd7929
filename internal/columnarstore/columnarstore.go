// Package columnarstore persists the CPP content stream and provenance map
// in column-oriented form: a homegrown, length-prefixed binary encoding on
// disk (standing in for the real Apache Arrow IPC format named in the
// on-disk layout spec, since no example in the pack grounds an Arrow Go
// dependency) mirrored into ClickHouse for ad-hoc query access across runs.
package columnarstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ClickHouse/clickhouse-go/v2"

	"policypipeline/internal/config"
	"policypipeline/internal/provenance"
	"policypipeline/internal/textnorm"
)

// columnSchema describes one column of a homegrown columnar file, written
// as the JSON sidecar alongside the binary payload.
type columnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type fileSchema struct {
	Columns []columnSchema `json:"columns"`
	Rows    int            `json:"rows"`
}

// WriteContentStream encodes a ContentStream as a homegrown columnar file
// (four parallel arrays: page_id, byte_start, byte_end, text) plus its JSON
// schema sidecar, at dir/content_stream.bin and dir/content_stream.schema.json.
func WriteContentStream(dir string, stream textnorm.ContentStream) error {
	var pageIDs, byteStarts, byteEnds bytes.Buffer
	var textBlob bytes.Buffer
	var textLens bytes.Buffer

	for _, e := range stream.Entries {
		if err := binary.Write(&pageIDs, binary.LittleEndian, int64(e.PageID)); err != nil {
			return err
		}
		if err := binary.Write(&byteStarts, binary.LittleEndian, e.ByteStart); err != nil {
			return err
		}
		if err := binary.Write(&byteEnds, binary.LittleEndian, e.ByteEnd); err != nil {
			return err
		}
		if err := binary.Write(&textLens, binary.LittleEndian, int64(len(e.Text))); err != nil {
			return err
		}
		textBlob.WriteString(e.Text)
	}

	payload := concatColumns(pageIDs.Bytes(), byteStarts.Bytes(), byteEnds.Bytes(), textLens.Bytes(), textBlob.Bytes())
	schema := fileSchema{
		Rows: len(stream.Entries),
		Columns: []columnSchema{
			{Name: "page_id", Type: "int64"},
			{Name: "byte_start", Type: "int64"},
			{Name: "byte_end", Type: "int64"},
			{Name: "text_len", Type: "int64"},
			{Name: "text", Type: "bytes"},
		},
	}
	return writeColumnarFile(dir, "content_stream", payload, schema)
}

// WriteProvenanceMap encodes a provenance.Map as a homegrown columnar file
// keyed by a sorted token id column, at dir/provenance_map.bin and
// dir/provenance_map.schema.json.
func WriteProvenanceMap(dir string, m *provenance.Map) error {
	ids := m.SortedTokenIDs()
	var tokenIDLens, pageIDs, byteStarts, byteEnds bytes.Buffer
	var tokenIDBlob bytes.Buffer

	for _, id := range ids {
		b := m.Bindings[id]
		if err := binary.Write(&tokenIDLens, binary.LittleEndian, int64(len(id))); err != nil {
			return err
		}
		tokenIDBlob.WriteString(id)
		if err := binary.Write(&pageIDs, binary.LittleEndian, int64(b.PageID)); err != nil {
			return err
		}
		if err := binary.Write(&byteStarts, binary.LittleEndian, b.ByteStart); err != nil {
			return err
		}
		if err := binary.Write(&byteEnds, binary.LittleEndian, b.ByteEnd); err != nil {
			return err
		}
	}

	payload := concatColumns(tokenIDLens.Bytes(), tokenIDBlob.Bytes(), pageIDs.Bytes(), byteStarts.Bytes(), byteEnds.Bytes())
	schema := fileSchema{
		Rows: len(ids),
		Columns: []columnSchema{
			{Name: "token_id_len", Type: "int64"},
			{Name: "token_id", Type: "bytes"},
			{Name: "page_id", Type: "int64"},
			{Name: "byte_start", Type: "int64"},
			{Name: "byte_end", Type: "int64"},
		},
	}
	return writeColumnarFile(dir, "provenance_map", payload, schema)
}

func concatColumns(cols ...[]byte) []byte {
	var out bytes.Buffer
	for _, c := range cols {
		var lenPrefix [8]byte
		binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(c)))
		out.Write(lenPrefix[:])
		out.Write(c)
	}
	return out.Bytes()
}

func writeColumnarFile(dir, name string, payload []byte, schema fileSchema) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name+".schema.json"), schemaJSON, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".bin"), payload, 0o644)
}

// Mirror is an optional ClickHouse sink kept alongside the on-disk columnar
// files, so a run's content stream and provenance map are queryable across
// runs without re-reading each run's files from the object store.
type Mirror struct {
	conn clickhouse.Conn
}

// OpenMirror connects to ClickHouse and ensures the mirror tables exist.
func OpenMirror(ctx context.Context, cfg config.ClickHouseConfig) (*Mirror, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("columnarstore: open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("columnarstore: ping clickhouse: %w", err)
	}
	m := &Mirror{conn: conn}
	if err := m.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mirror) ensureSchema(ctx context.Context) error {
	if err := m.conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS content_stream (
	correlation_id String,
	page_id Int64,
	byte_start Int64,
	byte_end Int64,
	text String
) ENGINE = MergeTree ORDER BY (correlation_id, page_id, byte_start)`); err != nil {
		return err
	}
	return m.conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS provenance_map (
	correlation_id String,
	token_id String,
	page_id Int64,
	byte_start Int64,
	byte_end Int64
) ENGINE = MergeTree ORDER BY (correlation_id, token_id)`)
}

// Close releases the underlying connection.
func (m *Mirror) Close() error { return m.conn.Close() }

// WriteContentStream batch-inserts stream rows tagged with correlationID.
func (m *Mirror) WriteContentStream(ctx context.Context, correlationID string, stream textnorm.ContentStream) error {
	batch, err := m.conn.PrepareBatch(ctx, "INSERT INTO content_stream")
	if err != nil {
		return err
	}
	for _, e := range stream.Entries {
		if err := batch.Append(correlationID, int64(e.PageID), e.ByteStart, e.ByteEnd, e.Text); err != nil {
			return err
		}
	}
	return batch.Send()
}

// WriteProvenanceMap batch-inserts provenance bindings tagged with
// correlationID, in sorted token id order for reproducible inserts.
func (m *Mirror) WriteProvenanceMap(ctx context.Context, correlationID string, pm *provenance.Map) error {
	batch, err := m.conn.PrepareBatch(ctx, "INSERT INTO provenance_map")
	if err != nil {
		return err
	}
	for _, id := range pm.SortedTokenIDs() {
		b := pm.Bindings[id]
		if err := batch.Append(correlationID, id, int64(b.PageID), b.ByteStart, b.ByteEnd); err != nil {
			return err
		}
	}
	return batch.Send()
}
