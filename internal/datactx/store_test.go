package datactx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestAndList(t *testing.T) {
	s := NewStore()

	replaced, err := s.Ingest("sales.csv", "date,amount\n1,2", 150)
	require.NoError(t, err)
	assert.False(t, replaced)

	_, err = s.Ingest("stock.csv", "sku,qty", 40)
	require.NoError(t, err)

	assert.Equal(t, []string{"sales.csv", "stock.csv"}, names(s))
	assert.Equal(t, 190, s.RecordsIngested())

	raw, err := s.Get("sales.csv")
	require.NoError(t, err)
	assert.Equal(t, "date,amount\n1,2", raw)
}

func TestReingestReplacesInPlace(t *testing.T) {
	s := NewStore()
	_, err := s.Ingest("a.csv", "v1", 10)
	require.NoError(t, err)
	_, err = s.Ingest("b.csv", "b", 5)
	require.NoError(t, err)

	replaced, err := s.Ingest("a.csv", "v2", 12)
	require.NoError(t, err)
	assert.True(t, replaced)

	assert.Equal(t, []string{"a.csv", "b.csv"}, names(s), "position unchanged")
	raw, err := s.Get("a.csv")
	require.NoError(t, err)
	assert.Equal(t, "v2", raw)
	assert.Equal(t, 27, s.RecordsIngested(), "counts are additive on re-ingest")
	assert.Equal(t, 12, s.Sources()[0].RecordCount)
}

func TestEvict(t *testing.T) {
	s := NewStore()
	_, _ = s.Ingest("a.csv", "a", 1)
	_, _ = s.Ingest("b.csv", "b", 2)
	_, _ = s.Ingest("c.csv", "c", 3)

	assert.True(t, s.Evict("b.csv"))
	assert.Equal(t, []string{"a.csv", "c.csv"}, names(s))
	assert.Equal(t, 6, s.RecordsIngested(), "eviction never lowers the total")

	_, err := s.Get("b.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.False(t, s.Evict("b.csv"))
	assert.False(t, s.Evict("never-loaded.csv"))
	assert.Len(t, s.Sources(), 2)
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	s := NewStore()

	_, err := s.Ingest("", "x", 1)
	assert.Error(t, err)

	_, err = s.Ingest("a.csv", "x", -1)
	assert.Error(t, err)

	assert.Empty(t, names(s))
	assert.Zero(t, s.RecordsIngested())
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	_, _ = s.Ingest("a.csv", "a", 1)

	snap := s.Snapshot()
	snap["a.csv"] = "mutated"
	snap["z.csv"] = "added"

	raw, err := s.Get("a.csv")
	require.NoError(t, err)
	assert.Equal(t, "a", raw)
	assert.Equal(t, []string{"a.csv"}, names(s))

	_, _ = s.Ingest("a.csv", "b", 1)
	assert.Equal(t, "mutated", snap["a.csv"], "later ingests do not leak into a snapshot")
}

func TestZeroCountIngest(t *testing.T) {
	s := NewStore()
	_, err := s.Ingest("empty.csv", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"empty.csv"}, names(s))
	assert.Zero(t, s.RecordsIngested())
}

func names(s *Store) []string {
	var out []string
	for _, src := range s.Sources() {
		out = append(out, src.Name)
	}
	return out
}
