package model

// Product is one row of the fruit product record set. The parquet tags define
// the on-disk column names; the field order defines the CSV column order.
type Product struct {
	ProductID int64   `parquet:"product_id" json:"product_id"`
	Name      string  `parquet:"name" json:"name"`
	Category  string  `parquet:"category" json:"category"`
	Price     float64 `parquet:"price" json:"price"`
	InStock   bool    `parquet:"in_stock" json:"in_stock"`
}

// ProductColumns describes the Product schema using catalog (Hive) type names.
var ProductColumns = []ColumnInfo{
	{Name: "product_id", Type: TypeBigInt},
	{Name: "name", Type: TypeString},
	{Name: "category", Type: TypeString},
	{Name: "price", Type: TypeDouble},
	{Name: "in_stock", Type: TypeBoolean},
}

// UploadFixture is the record set pushed by the CSV upload workflow.
func UploadFixture() []Product {
	return []Product{
		{ProductID: 101, Name: "Banana", Category: "Fruta", Price: 3.5, InStock: true},
		{ProductID: 102, Name: "Maçã", Category: "Fruta", Price: 4.2, InStock: false},
		{ProductID: 103, Name: "Laranja", Category: "Fruta", Price: 3.8, InStock: true},
	}
}

// PublishFixture is the record set written as a cataloged Parquet dataset.
func PublishFixture() []Product {
	return []Product{
		{ProductID: 111, Name: "Morango", Category: "Fruta", Price: 10, InStock: true},
		{ProductID: 112, Name: "Kiwi", Category: "Fruta", Price: 14.2, InStock: true},
		{ProductID: 113, Name: "Melancia", Category: "Fruta", Price: 6.8, InStock: true},
	}
}
