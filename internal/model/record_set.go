package model

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Catalog type names used for column descriptions.
const (
	TypeBigInt  = "bigint"
	TypeInteger = "int"
	TypeString  = "string"
	TypeDouble  = "double"
	TypeDecimal = "decimal"
	TypeBoolean = "boolean"
)

// ColumnInfo represents column information in the record set
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// RecordSet is an ordered, fixed-schema collection of rows. Cell values are
// int64, float64, string, bool or nil.
type RecordSet struct {
	Columns []ColumnInfo    `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// ProductsRecordSet converts products into a record set with the Product schema.
func ProductsRecordSet(products []Product) *RecordSet {
	rs := &RecordSet{
		Columns: append([]ColumnInfo(nil), ProductColumns...),
		Rows:    make([][]interface{}, 0, len(products)),
	}
	for _, p := range products {
		rs.Rows = append(rs.Rows, []interface{}{p.ProductID, p.Name, p.Category, p.Price, p.InStock})
	}
	return rs
}

// Len returns the number of rows.
func (rs *RecordSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (rs *RecordSet) ColumnIndex(name string) int {
	for i, c := range rs.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Products converts the record set back into typed products. Columns are
// matched by name, so the order returned by a query engine does not matter.
func (rs *RecordSet) Products() ([]Product, error) {
	idx := make([]int, len(ProductColumns))
	for i, c := range ProductColumns {
		idx[i] = rs.ColumnIndex(c.Name)
		if idx[i] < 0 {
			return nil, fmt.Errorf("column %q missing from record set", c.Name)
		}
	}

	products := make([]Product, 0, len(rs.Rows))
	for n, row := range rs.Rows {
		if len(row) != len(rs.Columns) {
			return nil, fmt.Errorf("row %d: expected %d values, got %d", n, len(rs.Columns), len(row))
		}

		var (
			p   Product
			err error
		)
		if p.ProductID, err = toInt64(row[idx[0]]); err != nil {
			return nil, fmt.Errorf("row %d product_id: %w", n, err)
		}
		p.Name = toString(row[idx[1]])
		p.Category = toString(row[idx[2]])
		if p.Price, err = toFloat64(row[idx[3]]); err != nil {
			return nil, fmt.Errorf("row %d price: %w", n, err)
		}
		if p.InStock, err = toBool(row[idx[4]]); err != nil {
			return nil, fmt.Errorf("row %d in_stock: %w", n, err)
		}
		products = append(products, p)
	}
	return products, nil
}

// String renders the record set as an aligned text table with a row index,
// similar to a DataFrame print.
func (rs *RecordSet) String() string {
	if rs == nil {
		return "<nil>"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)

	header := make([]string, 0, len(rs.Columns)+1)
	header = append(header, "")
	for _, c := range rs.Columns {
		header = append(header, c.Name)
	}
	fmt.Fprintln(w, strings.Join(header, "\t")+"\t")

	for i, row := range rs.Rows {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, strconv.Itoa(i))
		for _, v := range row {
			cells = append(cells, FormatValue(v))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
	}
	_ = w.Flush()

	if len(rs.Rows) == 0 {
		b.WriteString("(empty)\n")
	}
	return b.String()
}

// FormatValue renders a single cell.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int32:
		return int64(val), nil
	case int:
		return int64(val), nil
	case float64:
		return int64(val), nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	case []byte:
		return strconv.ParseInt(string(val), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(val, 64)
	case []byte:
		return strconv.ParseFloat(string(val), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to decimal", v)
	}
}

func toBool(v interface{}) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(val)
	case []byte:
		return strconv.ParseBool(string(val))
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", v)
	}
}
