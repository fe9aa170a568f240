package preview

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_HeaderKeyedRows(t *testing.T) {
	p := New(0, nil)
	tbl, err := p.Parse("date,amount\n2024-01-01,100\n\n2024-01-02,250\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "amount"}, tbl.Headers)
	assert.Equal(t, 2, tbl.RecordCount)
	assert.False(t, tbl.Truncated)
	assert.Equal(t, "250", tbl.Cell(1, "amount"))
	assert.Equal(t, "", tbl.Cell(5, "amount"))
	assert.Equal(t, "PREVIEW MODE (TOP 100 ROWS)", tbl.Footer())
}

func TestParse_LimitsRowsButCountsAll(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := range 250 {
		fmt.Fprintf(&b, "%d,%d\n", i, i*2)
	}

	p := New(100, nil)
	tbl, err := p.Parse(b.String())
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 100)
	assert.Equal(t, 250, tbl.RecordCount)
	assert.True(t, tbl.Truncated)
	assert.Equal(t, 250, p.Count(b.String()))
}

func TestParse_RaggedRowsAndHeaders(t *testing.T) {
	p := New(10, nil)
	tbl, err := p.Parse("\ufeffname,,name\na,b,c,d\ne\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "column_2", "name_2"}, tbl.Headers)
	assert.Equal(t, "c", tbl.Cell(0, "name_2"))
	assert.Equal(t, "e", tbl.Cell(1, "name"))
	assert.Equal(t, "", tbl.Cell(1, "column_2"))
}

func TestParse_GeneratedHeadersDoNotCollide(t *testing.T) {
	tbl, err := New(10, nil).Parse("a,a,a_2,,column_4\n1,2,3,4,5\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a_3", "a_2", "column_4_2", "column_4"}, tbl.Headers)
	for i, want := range []string{"1", "2", "3", "4", "5"} {
		assert.Equal(t, want, tbl.Cell(0, tbl.Headers[i]))
	}
}

func TestParse_Empty(t *testing.T) {
	p := New(10, nil)
	for _, raw := range []string{"", "\n\n", " , \n"} {
		_, err := p.Parse(raw)
		assert.ErrorIs(t, err, ErrEmpty, "raw=%q", raw)
		assert.Zero(t, p.Count(raw))
	}
}

func TestParse_Memoised(t *testing.T) {
	p := New(10, nil)
	a, err := p.Parse("x\n1\n")
	require.NoError(t, err)
	b, err := p.Parse("x\n1\n")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := p.Parse("x\n2\n")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}
