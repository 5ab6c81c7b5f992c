package config

import "fmt"

// Column kinds accepted in a catalog manifest.
const (
	KindRegular    = "regular"
	KindRunEncoded = "run_encoded"
)

// Store drivers accepted in a catalog manifest.
const (
	DriverRaw     = "raw"
	DriverBlock   = "block"
	DriverParquet = "parquet"
	DriverS3      = "s3"
	DriverGCS     = "gcs"
)

// CatalogConfig is the on-disk description of the columns a scan can read.
type CatalogConfig struct {
	// Name of the table
	Name string `yaml:"name" json:"name"`
	// Rows is used only when the catalog has no regular columns
	Rows int64 `yaml:"rows" json:"rows"`
	// Columns in table order
	Columns []ColumnConfig `yaml:"columns" json:"columns"`
}

// ColumnConfig describes one column. Regular columns set Source; run encoded
// columns set RunStarts and Values.
type ColumnConfig struct {
	Name      string        `yaml:"name" json:"name"`
	Kind      string        `yaml:"kind" json:"kind"`
	Source    *SourceConfig `yaml:"source,omitempty" json:"source,omitempty"`
	RunStarts *SourceConfig `yaml:"run_starts,omitempty" json:"run_starts,omitempty"`
	Values    *SourceConfig `yaml:"values,omitempty" json:"values,omitempty"`
}

// SourceConfig locates one dataset inside a store.
type SourceConfig struct {
	// Driver selects the store implementation
	Driver string `yaml:"driver" json:"driver"`
	// Path of a local file
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// Column selects a column inside a parquet file
	Column string `yaml:"column,omitempty" json:"column,omitempty"`
	// Bucket and Key locate an object in S3 or GCS
	Bucket string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Key    string `yaml:"key,omitempty" json:"key,omitempty"`
	// Region and Endpoint override the S3 client defaults
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// Credentials is a GCS service account file; empty uses the default chain
	Credentials string `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	// ChunkRows is the preferred read size of an object source in rows
	ChunkRows int64 `yaml:"chunk_rows,omitempty" json:"chunk_rows,omitempty"`
	// Type is the element type for raw layouts (int32, float64, ...)
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
	// Dims lists the inner dimensions of a multi-dimensional column
	Dims []int `yaml:"dims,omitempty" json:"dims,omitempty"`
	// Rows bounds raw layouts stored remotely; zero means derive from object size
	Rows int64 `yaml:"rows,omitempty" json:"rows,omitempty"`
}

// Validate checks the structure of the manifest. Store level problems such as
// missing files surface when the catalog is opened.
func (c *CatalogConfig) Validate() error {
	if len(c.Columns) == 0 {
		return fmt.Errorf("catalog %q has no columns", c.Name)
	}
	if c.Rows < 0 {
		return fmt.Errorf("rows cannot be negative")
	}
	seen := make(map[string]bool, len(c.Columns))
	for i, col := range c.Columns {
		if col.Name == "" {
			return fmt.Errorf("column %d has no name", i)
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate column %q", col.Name)
		}
		seen[col.Name] = true

		switch col.Kind {
		case KindRegular:
			if col.Source == nil {
				return fmt.Errorf("regular column %q needs a source", col.Name)
			}
			if err := col.Source.validate(); err != nil {
				return fmt.Errorf("column %q: %w", col.Name, err)
			}
		case KindRunEncoded:
			if col.RunStarts == nil || col.Values == nil {
				return fmt.Errorf("run encoded column %q needs run_starts and values", col.Name)
			}
			if err := col.RunStarts.validate(); err != nil {
				return fmt.Errorf("column %q run_starts: %w", col.Name, err)
			}
			if err := col.Values.validate(); err != nil {
				return fmt.Errorf("column %q values: %w", col.Name, err)
			}
		default:
			return fmt.Errorf("column %q has unknown kind %q", col.Name, col.Kind)
		}
	}
	return nil
}

func (s *SourceConfig) validate() error {
	switch s.Driver {
	case DriverRaw, DriverBlock:
		if s.Path == "" {
			return fmt.Errorf("%s source needs a path", s.Driver)
		}
	case DriverParquet:
		if s.Path == "" || s.Column == "" {
			return fmt.Errorf("parquet source needs a path and a column")
		}
	case DriverS3, DriverGCS:
		if s.Bucket == "" || s.Key == "" {
			return fmt.Errorf("%s source needs a bucket and a key", s.Driver)
		}
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	if (s.Driver == DriverRaw || s.Driver == DriverS3 || s.Driver == DriverGCS) && s.Type == "" {
		return fmt.Errorf("%s source needs an element type", s.Driver)
	}
	for _, d := range s.Dims {
		if d <= 0 {
			return fmt.Errorf("dims must be positive")
		}
	}
	return nil
}

// Width returns the number of elements stored per row.
func (s *SourceConfig) Width() int {
	w := 1
	for _, d := range s.Dims {
		w *= d
	}
	return w
}
