package json

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowWriterLines(t *testing.T) {
	var out bytes.Buffer
	rw, err := NewRowWriter(&out, Lines, []string{"id", "name", "vec"})
	require.NoError(t, err)

	require.NoError(t, rw.WriteRow([]any{int64(1), "a b", []any{float32(1.5), float32(2)}}))
	require.NoError(t, rw.WriteRows([][]any{{int64(2), nil, nil}, {int64(3), "c", []any{}}}))
	require.NoError(t, rw.Close())

	assert.Equal(t, int64(3), rw.Rows())
	assert.Equal(t,
		`{"id":1,"name":"a b","vec":[1.5,2]}`+"\n"+
			`{"id":2,"name":null,"vec":null}`+"\n"+
			`{"id":3,"name":"c","vec":[]}`+"\n",
		out.String())
}

func TestRowWriterArray(t *testing.T) {
	var out bytes.Buffer
	rw, err := NewRowWriter(&out, Array, []string{"x"})
	require.NoError(t, err)
	require.NoError(t, rw.WriteRow([]any{1}))
	require.NoError(t, rw.WriteRow([]any{2}))
	require.NoError(t, rw.Close())

	var decoded []map[string]int
	require.NoError(t, Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, []map[string]int{{"x": 1}, {"x": 2}}, decoded)

	assert.Error(t, rw.WriteRow([]any{3}))
}

func TestRowWriterEmptyArray(t *testing.T) {
	var out bytes.Buffer
	rw, err := NewRowWriter(&out, Array, []string{"x"})
	require.NoError(t, err)
	require.NoError(t, rw.Close())
	require.NoError(t, rw.Close())
	assert.Equal(t, "[]\n", out.String())
}

func TestRowWriterConcurrent(t *testing.T) {
	var out bytes.Buffer
	rw, err := NewRowWriter(&out, Lines, []string{"worker", "row"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rows := make([][]any, 50)
			for i := range rows {
				rows[i] = []any{w, i}
			}
			assert.NoError(t, rw.WriteRows(rows))
		}(w)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 400)
	for _, line := range lines {
		var row map[string]int
		require.NoError(t, Unmarshal([]byte(line), &row))
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{"": Lines, "jsonl": Lines, "lines": Lines, "array": Array} {
		got, ok := ParseFormat(name)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := ParseFormat("csv")
	assert.False(t, ok)
}
