// Package catalog holds the immutable schema catalog that grounds query
// synthesis and validation. Lookups are case-insensitive.
package catalog

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// Catalog is safe for concurrent use; it is never mutated after New.
type Catalog struct {
	tables      []models.Table
	byName      map[string]int
	columns     []map[string]int
	fingerprint string
}

// New validates and copies the given tables into a catalog.
// Table names must be unique within the catalog and column names unique
// within a table, both compared case-insensitively.
func New(tables []models.Table) (*Catalog, error) {
	c := &Catalog{
		tables:  make([]models.Table, 0, len(tables)),
		byName:  make(map[string]int, len(tables)),
		columns: make([]map[string]int, 0, len(tables)),
	}

	for _, t := range tables {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("table with empty name")
		}
		key := strings.ToLower(name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("duplicate table %q", name)
		}

		cp := t.Clone()
		cp.Name = name
		cols := make(map[string]int, len(cp.Columns))
		for i, col := range cp.Columns {
			colName := strings.TrimSpace(col.Name)
			if colName == "" {
				return nil, fmt.Errorf("table %q: column with empty name", name)
			}
			colKey := strings.ToLower(colName)
			if _, dup := cols[colKey]; dup {
				return nil, fmt.Errorf("table %q: duplicate column %q", name, colName)
			}
			cp.Columns[i].Name = colName
			cols[colKey] = i
		}

		c.byName[key] = len(c.tables)
		c.tables = append(c.tables, cp)
		c.columns = append(c.columns, cols)
	}

	c.fingerprint = c.computeFingerprint()
	return c, nil
}

// MustNew is New for static catalogs in tests and examples.
func MustNew(tables []models.Table) *Catalog {
	c, err := New(tables)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of tables.
func (c *Catalog) Len() int { return len(c.tables) }

// Tables returns a copy of every table in declaration order.
func (c *Catalog) Tables() []models.Table {
	out := make([]models.Table, len(c.tables))
	for i, t := range c.tables {
		out[i] = t.Clone()
	}
	return out
}

// TableNames returns the canonical table names sorted alphabetically.
func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.tables))
	for i, t := range c.tables {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}

// Table looks a table up by name. A schema qualifier ("public.sales") is
// accepted and ignored when the qualified name itself is unknown.
func (c *Catalog) Table(name string) (models.Table, bool) {
	idx, ok := c.tableIndex(name)
	if !ok {
		return models.Table{}, false
	}
	return c.tables[idx].Clone(), true
}

// HasTable reports whether the table exists.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.tableIndex(name)
	return ok
}

// CanonicalTableName returns the declared spelling of a table name.
func (c *Catalog) CanonicalTableName(name string) (string, bool) {
	idx, ok := c.tableIndex(name)
	if !ok {
		return "", false
	}
	return c.tables[idx].Name, true
}

// Column looks a column up within a table.
func (c *Catalog) Column(table, column string) (models.Column, bool) {
	idx, ok := c.tableIndex(table)
	if !ok {
		return models.Column{}, false
	}
	ci, ok := c.columns[idx][strings.ToLower(strings.TrimSpace(column))]
	if !ok {
		return models.Column{}, false
	}
	return c.tables[idx].Columns[ci], true
}

// HasColumn reports whether table.column exists.
func (c *Catalog) HasColumn(table, column string) bool {
	_, ok := c.Column(table, column)
	return ok
}

// ColumnNames returns the declared column names of a table, or nil when unknown.
func (c *Catalog) ColumnNames(table string) []string {
	idx, ok := c.tableIndex(table)
	if !ok {
		return nil
	}
	names := make([]string, len(c.tables[idx].Columns))
	for i, col := range c.tables[idx].Columns {
		names[i] = col.Name
	}
	return names
}

// TablesWithColumn returns the canonical names of tables declaring the column, sorted.
func (c *Catalog) TablesWithColumn(column string) []string {
	key := strings.ToLower(strings.TrimSpace(column))
	var out []string
	for i, cols := range c.columns {
		if _, ok := cols[key]; ok {
			out = append(out, c.tables[i].Name)
		}
	}
	sort.Strings(out)
	return out
}

// Fingerprint identifies the catalog contents. Two catalogs with the same
// tables, columns, types and tags have the same fingerprint regardless of
// table declaration order or name casing.
func (c *Catalog) Fingerprint() string {
	return c.fingerprint
}

func (c *Catalog) tableIndex(name string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if idx, ok := c.byName[key]; ok {
		return idx, true
	}
	if dot := strings.LastIndexByte(key, '.'); dot >= 0 {
		idx, ok := c.byName[key[dot+1:]]
		return idx, ok
	}
	return 0, false
}

func (c *Catalog) computeFingerprint() string {
	order := make([]int, len(c.tables))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return strings.ToLower(c.tables[order[a]].Name) < strings.ToLower(c.tables[order[b]].Name)
	})

	var sb strings.Builder
	for _, idx := range order {
		t := c.tables[idx]
		fmt.Fprintf(&sb, "t:%s\n", strings.ToLower(t.Name))
		for _, col := range t.Columns {
			tags := make([]string, len(col.SemanticTags))
			for i, tag := range col.SemanticTags {
				tags[i] = strings.ToLower(tag)
			}
			sort.Strings(tags)
			fmt.Fprintf(&sb, "c:%s:%s:%t:%s\n",
				strings.ToLower(col.Name), strings.ToLower(col.Type), col.Nullable, strings.Join(tags, ","))
		}
	}

	sum := blake3.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:8])
}
