package testhelpers

import (
	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// SeedSQL creates the retail schema described by SalesTables.
const SeedSQL = `
CREATE TABLE IF NOT EXISTS customers (
	id      integer PRIMARY KEY,
	name    varchar(200) NOT NULL,
	region  text
);
COMMENT ON COLUMN customers.region IS 'Sales region of the customer';

CREATE TABLE IF NOT EXISTS sales (
	id          integer PRIMARY KEY,
	date        date NOT NULL,
	amount      numeric(12,2) NOT NULL,
	revenue     numeric(12,2),
	region      text,
	customer_id integer REFERENCES customers(id)
);

CREATE TABLE IF NOT EXISTS products (
	id       integer PRIMARY KEY,
	name     text NOT NULL,
	category text,
	price    numeric(10,2)
);
`

// SalesTables is a small retail schema used across package tests.
func SalesTables() []models.Table {
	return []models.Table{
		{
			Name: "sales",
			Columns: []models.Column{
				{Name: "id", Type: "integer", SemanticTags: []string{models.TagKey}},
				{Name: "date", Type: "date", SemanticTags: []string{models.TagTemporal}},
				{Name: "amount", Type: "numeric(12,2)", SemanticTags: []string{models.TagMetric}},
				{Name: "revenue", Type: "numeric(12,2)", Nullable: true, SemanticTags: []string{models.TagMetric}},
				{Name: "region", Type: "text", Nullable: true, SemanticTags: []string{models.TagDimension}},
				{Name: "customer_id", Type: "integer", Nullable: true, SemanticTags: []string{models.TagKey}},
			},
		},
		{
			Name: "customers",
			Columns: []models.Column{
				{Name: "id", Type: "integer", SemanticTags: []string{models.TagKey}},
				{Name: "name", Type: "varchar(200)", SemanticTags: []string{models.TagDimension}},
				{Name: "region", Type: "text", Nullable: true, SemanticTags: []string{models.TagDimension}},
			},
		},
		{
			Name: "products",
			Columns: []models.Column{
				{Name: "id", Type: "integer", SemanticTags: []string{models.TagKey}},
				{Name: "name", Type: "text", SemanticTags: []string{models.TagDimension}},
				{Name: "category", Type: "text", Nullable: true, SemanticTags: []string{models.TagDimension}},
				{Name: "price", Type: "numeric(10,2)", Nullable: true, SemanticTags: []string{models.TagMetric}},
			},
		},
	}
}

// SalesCatalog returns SalesTables as a catalog.
func SalesCatalog() *catalog.Catalog {
	return catalog.MustNew(SalesTables())
}

// SalesExamples are prior question/query pairs over SalesTables.
func SalesExamples() []models.ContextExample {
	return []models.ContextExample{
		{ID: "ex-1", Question: "total sales by region", Query: "SELECT region, SUM(amount) FROM sales GROUP BY region"},
		{ID: "ex-2", Question: "monthly revenue trend", Query: "SELECT date_trunc('month', date) AS month, SUM(revenue) FROM sales GROUP BY date_trunc('month', date) ORDER BY month"},
		{ID: "ex-3", Question: "list customer names", Query: "SELECT name FROM customers"},
		{ID: "ex-4", Question: "most expensive products", Query: "SELECT name, price FROM products ORDER BY price DESC LIMIT 10"},
	}
}
