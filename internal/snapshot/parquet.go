package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// parquetRow keeps the snapshot schema independent of the table's own
// columns: every row is stored as a JSON object keyed by column name.
type parquetRow struct {
	RowNumber int64  `parquet:"row_number"`
	RowJSON   string `parquet:"row_json"`
}

type encodeResult struct {
	Data     []byte
	RowCount int64
}

func encodeRows(columns []string, rows [][]any) (encodeResult, error) {
	records := make([]parquetRow, 0, len(rows))
	for index, values := range rows {
		if len(values) != len(columns) {
			return encodeResult{}, fmt.Errorf("row %d has %d values for %d columns", index+1, len(values), len(columns))
		}
		object := make(map[string]any, len(columns))
		for i, column := range columns {
			object[column] = values[i]
		}
		payload, err := json.Marshal(object)
		if err != nil {
			return encodeResult{}, fmt.Errorf("encode row %d: %w", index+1, err)
		}
		records = append(records, parquetRow{RowNumber: int64(index + 1), RowJSON: string(payload)})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if len(records) > 0 {
		if _, err := writer.Write(records); err != nil {
			return encodeResult{}, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return encodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return encodeResult{Data: buf.Bytes(), RowCount: int64(len(records))}, nil
}
