package catalogsource

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// ColumnRow is one column as discovered from a database system catalog.
type ColumnRow struct {
	SchemaName   string
	TableName    string
	ColumnName   string
	DataType     string
	IsNullable   bool
	IsPrimaryKey bool
	Description  string
}

// BuildCatalog groups discovered columns into tables, in row order.
// Tables whose bare name appears in more than one schema keep their
// schema-qualified name so the catalog stays unambiguous.
func BuildCatalog(rows []ColumnRow) (*catalog.Catalog, error) {
	schemasByName := make(map[string]map[string]bool)
	for _, r := range rows {
		key := strings.ToLower(r.TableName)
		if schemasByName[key] == nil {
			schemasByName[key] = make(map[string]bool)
		}
		schemasByName[key][strings.ToLower(r.SchemaName)] = true
	}

	var order []string
	tables := make(map[string]*models.Table)
	for _, r := range rows {
		name := r.TableName
		if len(schemasByName[strings.ToLower(name)]) > 1 {
			name = r.SchemaName + "." + r.TableName
		}
		t, ok := tables[name]
		if !ok {
			t = &models.Table{Name: name, Schema: r.SchemaName}
			tables[name] = t
			order = append(order, name)
		}

		col := models.Column{
			Name:        r.ColumnName,
			Type:        strings.ToLower(r.DataType),
			Nullable:    r.IsNullable,
			Description: r.Description,
		}
		col.SemanticTags = InferTags(col, r.IsPrimaryKey)
		t.Columns = append(t.Columns, col)
	}

	out := make([]models.Table, 0, len(order))
	for _, name := range order {
		out = append(out, *tables[name])
	}
	cat, err := catalog.New(out)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	return cat, nil
}

// InferTags derives semantic tags for a discovered column. Keys and columns
// named like identifiers are never metrics even when numeric.
func InferTags(col models.Column, primaryKey bool) []string {
	name := strings.ToLower(col.Name)
	isID := primaryKey || name == "id" || strings.HasSuffix(name, "_id")

	var tags []string
	switch {
	case isID:
		tags = append(tags, models.TagKey)
	case col.IsTemporal():
		tags = append(tags, models.TagTemporal)
	case col.IsNumeric():
		tags = append(tags, models.TagMetric)
	case col.IsText():
		tags = append(tags, models.TagDimension)
	}
	return tags
}
