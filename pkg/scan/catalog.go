package scan

import (
	"github.com/ajitpratap0/runscan/pkg/store"
)

// Catalog lists the columns of a table and where their data lives.
type Catalog struct {
	// Rows is the row count of a table without regular columns. When regular
	// columns exist the row count comes from their stores.
	Rows    int64
	Columns []ColumnSpec
}

// ColumnSpec describes one column of a Catalog. It is either a Regular or a
// RunEncoded column.
type ColumnSpec interface {
	ColumnName() string
	isColumnSpec()
}

// Regular is a column read row by row from a store. Its element type, width
// and row count come from Store.Describe.
type Regular struct {
	Name  string
	Store store.Store
	Ref   string
}

// RunEncoded is a column stored as run starts and one value per run, both
// held in the same store.
type RunEncoded struct {
	Name      string
	Store     store.Store
	StartsRef string
	ValuesRef string
}

func (r Regular) ColumnName() string    { return r.Name }
func (r RunEncoded) ColumnName() string { return r.Name }

func (Regular) isColumnSpec()    {}
func (RunEncoded) isColumnSpec() {}

// Lookup returns the column named name.
func (c *Catalog) Lookup(name string) (ColumnSpec, bool) {
	for _, col := range c.Columns {
		if col.ColumnName() == name {
			return col, true
		}
	}
	return nil, false
}

// Names returns the column names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.ColumnName()
	}
	return names
}
