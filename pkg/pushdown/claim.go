package pushdown

import (
	"fmt"

	"github.com/ajitpratap0/runscan/pkg/columnar"
)

// Expr is a predicate over the columns of a row.
type Expr interface {
	fmt.Stringer
	expr()
}

// Operand is either a column reference or a literal.
type Operand struct {
	Column string
	Value  any
}

// Col references a column.
func Col(name string) Operand { return Operand{Column: name} }

// Lit wraps a literal.
func Lit(v any) Operand { return Operand{Value: v} }

// IsColumn reports whether the operand references a column.
func (o Operand) IsColumn() bool { return o.Column != "" }

func (o Operand) String() string {
	if o.IsColumn() {
		return o.Column
	}
	if s, ok := o.Value.(string); ok {
		return fmt.Sprintf("'%s'", s)
	}
	return fmt.Sprint(o.Value)
}

// Comparison is `Left Op Right`.
type Comparison struct {
	Left  Operand
	Op    Comparator
	Right Operand
}

// BetweenExpr is `Column BETWEEN Low AND High`, inclusive on both ends.
type BetweenExpr struct {
	Column string
	Low    any
	High   any
}

// And is the conjunction of its terms.
type And []Expr

func (Comparison) expr()  {}
func (BetweenExpr) expr() {}
func (And) expr()         {}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

func (b BetweenExpr) String() string {
	return fmt.Sprintf("%s BETWEEN %s AND %s", b.Column, Lit(b.Low), Lit(b.High))
}

func (a And) String() string {
	s := ""
	for i, e := range a {
		if i > 0 {
			s += " AND "
		}
		if _, nested := e.(And); nested {
			s += "(" + e.String() + ")"
		} else {
			s += e.String()
		}
	}
	return s
}

// Claim extracts the filters that can be pushed down from a predicate.
// Conjunctions are split, BETWEEN is decomposed into >= and <=, and a
// constant on the left of a comparison is moved to the right by flipping the
// comparator. Only comparisons of a column accepted by claimable with a
// constant using a claimable comparator are taken; everything else is
// returned as unclaimed. The claimed filters still have to be evaluated by
// the consumer.
func Claim(e Expr, claimable func(column string) bool) (claimed []Filter, unclaimed []Expr) {
	switch x := e.(type) {
	case nil:
		return nil, nil
	case And:
		for _, term := range x {
			c, u := Claim(term, claimable)
			claimed = append(claimed, c...)
			unclaimed = append(unclaimed, u...)
		}
		return claimed, unclaimed
	case BetweenExpr:
		if claimable(x.Column) {
			return Between(x.Column, x.Low, x.High), nil
		}
		return nil, []Expr{x}
	case Comparison:
		if f, ok := claimComparison(x, claimable); ok {
			return []Filter{f}, nil
		}
		return nil, []Expr{x}
	default:
		return nil, []Expr{e}
	}
}

func claimComparison(c Comparison, claimable func(string) bool) (Filter, bool) {
	if !c.Op.Claimable() {
		return Filter{}, false
	}
	switch {
	case c.Left.IsColumn() && !c.Right.IsColumn():
		if claimable(c.Left.Column) {
			return Filter{Column: c.Left.Column, Op: c.Op, Value: c.Right.Value}, true
		}
	case !c.Left.IsColumn() && c.Right.IsColumn():
		if claimable(c.Right.Column) {
			return Filter{Column: c.Right.Column, Op: c.Op.Flip(), Value: c.Left.Value}, true
		}
	}
	return Filter{}, false
}

// Columns returns the columns referenced by e, in order of first use.
func Columns(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case And:
			for _, t := range x {
				walk(t)
			}
		case BetweenExpr:
			add(x.Column)
		case Comparison:
			add(x.Left.Column)
			add(x.Right.Column)
		}
	}
	walk(e)
	return out
}

// Row looks up the value of a column in the row being evaluated.
type Row func(column string) (any, bool)

// Evaluate applies e to a row. Comparisons involving a missing or null
// column are false.
func Evaluate(e Expr, row Row) (bool, error) {
	switch x := e.(type) {
	case nil:
		return true, nil
	case And:
		for _, t := range x {
			ok, err := Evaluate(t, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case BetweenExpr:
		lo, err := Evaluate(Comparison{Left: Col(x.Column), Op: GreaterOrEqual, Right: Lit(x.Low)}, row)
		if err != nil || !lo {
			return false, err
		}
		return Evaluate(Comparison{Left: Col(x.Column), Op: LessOrEqual, Right: Lit(x.High)}, row)
	case Comparison:
		left, ok := resolve(x.Left, row)
		if !ok {
			return false, nil
		}
		right, ok := resolve(x.Right, row)
		if !ok {
			return false, nil
		}
		c, err := columnar.NewConstant(right)
		if err != nil {
			return false, err
		}
		if _, isString := left.(string); isString != c.IsString() {
			return false, fmt.Errorf("cannot compare %v with %s", left, c)
		}
		return x.Op.Holds(c.Compare(left)), nil
	default:
		return false, fmt.Errorf("unsupported expression %T", e)
	}
}

func resolve(o Operand, row Row) (any, bool) {
	if !o.IsColumn() {
		return o.Value, o.Value != nil
	}
	v, ok := row(o.Column)
	return v, ok && v != nil
}
