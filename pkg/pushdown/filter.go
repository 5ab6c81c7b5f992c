// Package pushdown turns simple predicates on run-encoded columns into the
// row ranges a scan has to visit.
//
// A claimed Filter compares one run-encoded column with a constant using
// =, >, >=, < or <=. Because every row of a run shares the run's value, a run
// either satisfies all filters of its column or none of them, and the ranges
// produced by Prune are exact per run. Pruning is an optimization: consumers
// still evaluate their predicates against the emitted rows.
package pushdown

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ajitpratap0/runscan/pkg/columnar"
	"github.com/ajitpratap0/runscan/pkg/rowrange"
	"github.com/ajitpratap0/runscan/pkg/runenc"
)

// Comparator is a binary comparison operator.
type Comparator uint8

const (
	Equal Comparator = iota + 1
	Greater
	GreaterOrEqual
	Less
	LessOrEqual
	// NotEqual can appear in predicates but is never claimed.
	NotEqual
)

var comparatorSymbols = map[Comparator]string{
	Equal:          "=",
	Greater:        ">",
	GreaterOrEqual: ">=",
	Less:           "<",
	LessOrEqual:    "<=",
	NotEqual:       "!=",
}

func (c Comparator) String() string {
	if s, ok := comparatorSymbols[c]; ok {
		return s
	}
	return fmt.Sprintf("Comparator(%d)", uint8(c))
}

// Claimable reports whether c may be pushed down to the pruner.
func (c Comparator) Claimable() bool {
	return c >= Equal && c <= LessOrEqual
}

// Flip returns the comparator that gives the same result with its operands
// swapped, so that `5 < x` becomes `x > 5`.
func (c Comparator) Flip() Comparator {
	switch c {
	case Greater:
		return Less
	case GreaterOrEqual:
		return LessOrEqual
	case Less:
		return Greater
	case LessOrEqual:
		return GreaterOrEqual
	default:
		return c
	}
}

// Holds applies c to the outcome of a three-way comparison. Unordered pairs
// satisfy nothing.
func (c Comparator) Holds(result int, ordered bool) bool {
	if !ordered {
		return false
	}
	switch c {
	case Equal:
		return result == 0
	case Greater:
		return result > 0
	case GreaterOrEqual:
		return result >= 0
	case Less:
		return result < 0
	case LessOrEqual:
		return result <= 0
	case NotEqual:
		return result != 0
	default:
		return false
	}
}

// Filter is a claimed comparison of a run-encoded column with a constant.
type Filter struct {
	Column string
	Op     Comparator
	Value  any
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Column, f.Op, f.Value)
}

// Between returns the two filters a BETWEEN low AND high predicate claims.
func Between(column string, low, high any) []Filter {
	return []Filter{
		{Column: column, Op: GreaterOrEqual, Value: low},
		{Column: column, Op: LessOrEqual, Value: high},
	}
}

type boundFilter struct {
	op    Comparator
	value columnar.Constant
}

// Prune computes the rows that may satisfy every filter. Filters on the same
// column are applied together run by run; the per-column range lists are then
// intersected in column name order. Without filters the whole table is
// returned.
//
// Prune panics when a filter carries a comparator that cannot be claimed;
// such filters must be rejected by the claim layer. Filters whose column is
// unknown or whose constant cannot be ordered against the column are skipped,
// which only widens the result.
func Prune(columns map[string]*runenc.Column, filters []Filter, totalRows int64, logger *zap.Logger) rowrange.List {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, f := range filters {
		if !f.Op.Claimable() {
			panic(fmt.Sprintf("pushdown: comparator %s on %s reached the pruner", f.Op, f.Column))
		}
	}

	result := rowrange.Full(totalRows)
	if len(filters) == 0 {
		return result
	}

	byColumn := make(map[string][]boundFilter)
	for _, f := range filters {
		col, ok := columns[f.Column]
		if !ok {
			logger.Warn("filter on column without run metadata skipped", zap.Stringer("filter", f))
			continue
		}
		c, err := columnar.NewConstant(f.Value)
		if err != nil || !c.ComparableWith(col.Type()) {
			logger.Warn("filter constant not comparable with column, skipped",
				zap.Stringer("filter", f),
				zap.Stringer("type", col.Type()))
			continue
		}
		byColumn[f.Column] = append(byColumn[f.Column], boundFilter{op: f.Op, value: c})
	}

	names := make([]string, 0, len(byColumn))
	for name := range byColumn {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ranges := columnRanges(columns[name], byColumn[name])
		result = rowrange.Intersect(result, ranges)
		logger.Debug("column pruned",
			zap.String("column", name),
			zap.Int("ranges", len(ranges)),
			zap.Int64("rows", ranges.Rows()))
		if len(result) == 0 {
			break
		}
	}
	return result
}

// columnRanges walks the runs of col in storage order and returns the ranges
// whose runs satisfy every filter.
func columnRanges(col *runenc.Column, filters []boundFilter) rowrange.List {
	var (
		out     rowrange.List
		inRange bool
		start   int64
	)
	for i := 0; i < col.NumRuns(); i++ {
		match := runMatches(col.Value(i), filters)
		switch {
		case match && !inRange:
			start = col.RunStart(i)
			inRange = true
		case !match && inRange:
			out = append(out, rowrange.RowRange{Start: start, End: col.RunStart(i)})
			inRange = false
		}
	}
	if inRange {
		out = append(out, rowrange.RowRange{Start: start, End: col.TotalRows()})
	}
	return out
}

func runMatches(v any, filters []boundFilter) bool {
	for _, f := range filters {
		if !f.op.Holds(f.value.Compare(v)) {
			return false
		}
	}
	return true
}
