// Package rowrange provides half-open row intervals and sorted, disjoint lists
// of them. Pruning produces a List, the cursor hands batches out of it and the
// chunk cache never fetches rows outside of it.
package rowrange

import (
	"fmt"
	"sort"
	"strings"
)

// RowRange is the half-open interval [Start, End) of row indexes.
type RowRange struct {
	Start int64
	End   int64
}

// Len returns the number of rows in the range.
func (r RowRange) Len() int64 {
	return r.End - r.Start
}

// Contains reports whether row lies in the range.
func (r RowRange) Contains(row int64) bool {
	return row >= r.Start && row < r.End
}

func (r RowRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// List is a sequence of ranges kept sorted by Start with no two ranges
// overlapping. Adjacent ranges are allowed.
type List []RowRange

// Full returns the list covering every row of a table with totalRows rows.
// A table with no rows yields an empty list.
func Full(totalRows int64) List {
	if totalRows <= 0 {
		return List{}
	}
	return List{{Start: 0, End: totalRows}}
}

// Rows returns the total number of rows covered by the list.
func (l List) Rows() int64 {
	var n int64
	for _, r := range l {
		n += r.Len()
	}
	return n
}

// Contains reports whether row falls inside one of the ranges.
func (l List) Contains(row int64) bool {
	_, ok := l.find(row)
	return ok
}

// NextFrom returns the first range that still has rows at or after pos,
// trimmed so that it starts no earlier than pos.
func (l List) NextFrom(pos int64) (RowRange, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i].End > pos })
	if i == len(l) {
		return RowRange{}, false
	}
	r := l[i]
	if r.Start < pos {
		r.Start = pos
	}
	return r, true
}

// NextRow returns the first row at or after pos that lies in the list, or
// limit when there is none.
func (l List) NextRow(pos, limit int64) int64 {
	r, ok := l.NextFrom(pos)
	if !ok || r.Start > limit {
		return limit
	}
	return r.Start
}

// EndOf returns the end of the range containing row. ok is false when row is
// not covered by the list.
func (l List) EndOf(row int64) (int64, bool) {
	r, ok := l.find(row)
	if !ok {
		return 0, false
	}
	return r.End, true
}

func (l List) find(row int64) (RowRange, bool) {
	i := sort.Search(len(l), func(i int) bool { return l[i].End > row })
	if i == len(l) || !l[i].Contains(row) {
		return RowRange{}, false
	}
	return l[i], true
}

// Validate checks that every range is non-empty and that the list is sorted
// and non-overlapping.
func (l List) Validate() error {
	for i, r := range l {
		if r.Start < 0 || r.Start >= r.End {
			return fmt.Errorf("range %d %s is empty or negative", i, r)
		}
		if i > 0 && l[i-1].End > r.Start {
			return fmt.Errorf("range %d %s overlaps or precedes %s", i, r, l[i-1])
		}
	}
	return nil
}

// Simplify merges adjacent ranges.
func (l List) Simplify() List {
	if len(l) == 0 {
		return l
	}
	out := make(List, 0, len(l))
	cur := l[0]
	for _, r := range l[1:] {
		if r.Start <= cur.End {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	return append(out, cur)
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, r := range l {
		parts[i] = r.String()
	}
	return strings.Join(parts, " ")
}

// Intersect returns the rows present in both lists. Both inputs must be
// sorted and disjoint; so is the result. Runs in O(len(a)+len(b)).
func Intersect(a, b List) List {
	out := make(List, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := max(a[i].Start, b[j].Start)
		end := min(a[i].End, b[j].End)
		if start < end {
			out = append(out, RowRange{Start: start, End: end})
		}
		// advance whichever side finishes first
		if a[i].End < b[j].End {
			i++
		} else {
			j++
		}
	}
	return out
}
