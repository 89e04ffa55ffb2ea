package object_storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/jpirolla/aws-data-querying/internal/model"
)

// Parquet object naming and content type.
const (
	ParquetExtension   = ".parquet"
	ParquetFileSuffix  = ".snappy.parquet"
	ParquetContentType = "application/vnd.apache.parquet"
)

// EncodeProductsParquet serializes products into a single Parquet file with
// Snappy compression.
func EncodeProductsParquet(products []model.Product) ([]byte, error) {
	var buf bytes.Buffer

	w := parquet.NewGenericWriter[model.Product](&buf, parquet.Compression(&parquet.Snappy))

	if _, err := w.Write(products); err != nil {
		return nil, fmt.Errorf("parquet write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("parquet close: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeProductsParquet reads every row of a Parquet file with the Product schema.
func DecodeProductsParquet(data []byte) ([]model.Product, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parquet open: %w", err)
	}

	r := parquet.NewGenericReader[model.Product](f)
	defer func() { _ = r.Close() }()

	rows := make([]model.Product, r.NumRows())
	n, err := r.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parquet read: %w", err)
	}

	return rows[:n], nil
}
