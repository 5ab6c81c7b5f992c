// Package columnar maps the element types of scanned columns onto Apache
// Arrow arrays.
//
// Columns are exchanged with stores as typed Go slices ([]int32, []float64,
// []string, ...) and emitted to consumers as arrow.Array values. A batch
// whose rows all share one value is emitted as a run-end encoded array with a
// single run instead of count copies of the value. Multi-dimensional columns
// become fixed-size lists whose child holds the flattened elements.
//
// The package also carries the comparison rules used for filter constants:
// Constant normalizes a literal once, and Compare orders a column value
// against it across signed, unsigned, floating point and string domains.
package columnar
