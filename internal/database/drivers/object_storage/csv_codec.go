package object_storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/jpirolla/aws-data-querying/internal/model"
)

// CSVContentType is the content type set on uploaded CSV objects.
const CSVContentType = "text/csv"

// EncodeProductsCSV serializes products as comma-delimited text with a header
// row and no index column. Booleans are written as True/False and prices in
// their shortest decimal form.
func EncodeProductsCSV(products []model.Product) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(model.ProductColumns))
	for i, c := range model.ProductColumns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range products {
		record := []string{
			strconv.FormatInt(p.ProductID, 10),
			p.Name,
			p.Category,
			model.FormatValue(p.Price),
			model.FormatValue(p.InStock),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeProductsCSV parses text produced by EncodeProductsCSV, restoring the
// column types. Columns are located by header name.
func DecodeProductsCSV(data []byte) ([]model.Product, error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV has no header row")
	}

	header := records[0]
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, c := range model.ProductColumns {
		if _, ok := idx[c.Name]; !ok {
			return nil, fmt.Errorf("CSV header missing column %q", c.Name)
		}
	}

	products := make([]model.Product, 0, len(records)-1)
	for line, rec := range records[1:] {
		p, err := parseProductRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line+2, err)
		}
		products = append(products, p)
	}
	return products, nil
}

func parseProductRecord(rec []string, idx map[string]int) (model.Product, error) {
	var (
		p   model.Product
		err error
	)

	if p.ProductID, err = strconv.ParseInt(rec[idx["product_id"]], 10, 64); err != nil {
		return p, fmt.Errorf("product_id: %w", err)
	}
	p.Name = rec[idx["name"]]
	p.Category = rec[idx["category"]]
	if p.Price, err = strconv.ParseFloat(rec[idx["price"]], 64); err != nil {
		return p, fmt.Errorf("price: %w", err)
	}
	if p.InStock, err = strconv.ParseBool(rec[idx["in_stock"]]); err != nil {
		return p, fmt.Errorf("in_stock: %w", err)
	}
	return p, nil
}
