package explorer

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

const exportBatch = 500

type parquetEvent struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Height     int64  `parquet:"name=height, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pool       string `parquet:"name=pool, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account    string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest     string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Digest is the hex blake3 hash of the record's sequence, height, type and
// attributes. Exports carry it so downstream copies can be reconciled.
func (r EventRecord) Digest() string {
	payload := strconv.FormatUint(r.Seq, 10) + "|" + strconv.FormatUint(r.Height, 10) + "|" + r.Type + "|" + r.Attributes
	sum := blake3.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ExportParquet writes every record matching filter to w in emission order
// and returns the row count. filter.Limit is ignored.
func (i *Index) ExportParquet(ctx context.Context, w io.Writer, filter Filter) (int, error) {
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(parquetEvent), 1)
	if err != nil {
		return 0, fmt.Errorf("explorer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	var (
		written int
		after   uint64
	)
	for {
		tx, err := i.filtered(ctx, filter)
		if err != nil {
			return written, err
		}
		var batch []EventRecord
		if err := tx.Where("seq > ?", after).Order("seq asc").Limit(exportBatch).Find(&batch).Error; err != nil {
			i.metrics.RecordError("export")
			return written, fmt.Errorf("explorer: export query: %w", err)
		}
		for _, rec := range batch {
			row := &parquetEvent{
				Seq:        int64(rec.Seq),
				Height:     int64(rec.Height),
				Type:       rec.Type,
				Pool:       rec.Pool,
				Account:    rec.Account,
				Attributes: rec.Attributes,
				Digest:     rec.Digest(),
			}
			if err := pw.Write(row); err != nil {
				return written, fmt.Errorf("explorer: parquet write: %w", err)
			}
			written++
			after = rec.Seq
		}
		if len(batch) < exportBatch {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("explorer: parquet flush: %w", err)
	}
	return written, nil
}
