package pushdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runEncoded(names ...string) func(string) bool {
	set := make(map[string]bool)
	for _, n := range names {
		set[n] = true
	}
	return func(c string) bool { return set[c] }
}

func TestClaim(t *testing.T) {
	e := And{
		Comparison{Left: Lit(int64(5)), Op: Less, Right: Col("level")},
		BetweenExpr{Column: "run", Low: int64(1), High: int64(3)},
		Comparison{Left: Col("level"), Op: NotEqual, Right: Lit(int64(7))},
		Comparison{Left: Col("temp"), Op: Greater, Right: Lit(1.5)},
		Comparison{Left: Col("level"), Op: Equal, Right: Col("run")},
	}

	claimed, unclaimed := Claim(e, runEncoded("level", "run"))
	assert.Equal(t, []Filter{
		{Column: "level", Op: Greater, Value: int64(5)},
		{Column: "run", Op: GreaterOrEqual, Value: int64(1)},
		{Column: "run", Op: LessOrEqual, Value: int64(3)},
	}, claimed)
	require.Len(t, unclaimed, 3)
	assert.Equal(t, "level != 7", unclaimed[0].String())
	assert.Equal(t, "temp > 1.5", unclaimed[1].String())

	claimed, unclaimed = Claim(nil, runEncoded())
	assert.Empty(t, claimed)
	assert.Empty(t, unclaimed)
}

func TestClaimBetweenOnRegularColumn(t *testing.T) {
	claimed, unclaimed := Claim(BetweenExpr{Column: "temp", Low: 1, High: 2}, runEncoded("run"))
	assert.Empty(t, claimed)
	assert.Len(t, unclaimed, 1)
}

func TestParsePredicate(t *testing.T) {
	e, err := ParsePredicate(`level >= 3 AND run between 1 and 5.5 AND 'it''s' = name AND (temp < -2e3 AND temp <> 0)`)
	require.NoError(t, err)
	want := And{
		Comparison{Left: Col("level"), Op: GreaterOrEqual, Right: Lit(int64(3))},
		BetweenExpr{Column: "run", Low: int64(1), High: 5.5},
		Comparison{Left: Lit("it's"), Op: Equal, Right: Col("name")},
		And{
			Comparison{Left: Col("temp"), Op: Less, Right: Lit(-2000.0)},
			Comparison{Left: Col("temp"), Op: NotEqual, Right: Lit(int64(0))},
		},
	}
	assert.Equal(t, want, e)
	assert.Equal(t, []string{"level", "run", "name", "temp"}, Columns(e))

	e, err = ParsePredicate("  ")
	require.NoError(t, err)
	assert.Nil(t, e)

	single, err := ParsePredicate(`x == "a"`)
	require.NoError(t, err)
	assert.Equal(t, Comparison{Left: Col("x"), Op: Equal, Right: Lit("a")}, single)
}

func TestParsePredicateErrors(t *testing.T) {
	for _, in := range []string{
		"x >",
		"x ! 3",
		"x = 'open",
		"3 BETWEEN 1 AND 2",
		"x BETWEEN 1 2",
		"(x = 1",
		"x = 1 y = 2",
		"x # 1",
		"x = .",
	} {
		_, err := ParsePredicate(in)
		assert.Error(t, err, in)
	}
}

func TestEvaluate(t *testing.T) {
	row := map[string]any{"level": int64(4), "name": "b", "temp": float32(1.5), "missing": nil}
	lookup := func(c string) (any, bool) {
		v, ok := row[c]
		return v, ok
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"level = 4", true},
		{"5 > level", true},
		{"level BETWEEN 4 AND 6", true},
		{"level BETWEEN 5 AND 6", false},
		{"name >= 'a' AND temp < 2", true},
		{"temp > 1.5", false},
		{"missing = 1", false},
		{"absent = 1", false},
		{"level != 4", false},
	}
	for _, tt := range tests {
		e, err := ParsePredicate(tt.expr)
		require.NoError(t, err, tt.expr)
		got, err := Evaluate(e, lookup)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}

	e, err := ParsePredicate("name = 3")
	require.NoError(t, err)
	_, err = Evaluate(e, lookup)
	assert.Error(t, err)

	ok, err := Evaluate(nil, lookup)
	require.NoError(t, err)
	assert.True(t, ok)
}
