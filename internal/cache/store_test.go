package cache

import (
	"errors"
	"testing"

	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatrix(t *testing.T, rows [][]float32) *vector.Matrix {
	t.Helper()
	m, err := vector.FromRows(rows)
	require.NoError(t, err)
	return m
}

func mustStore(t *testing.T, ids []string, rows [][]float32) *Store {
	t.Helper()
	s, err := NewStore(ids, mustMatrix(t, rows))
	require.NoError(t, err)
	return s
}

func TestNewStore_Misaligned(t *testing.T) {
	_, err := NewStore([]string{"a", "b"}, vector.NewMatrix(1, 2))
	require.Error(t, err)
}

func TestPartition(t *testing.T) {
	store := mustStore(t, []string{"a", "b", "c"}, [][]float32{{1, 0}, {0, 1}, {1, 1}})

	plan := Partition([]string{"c", "x", "a", "y", "x"}, store)
	assert.Equal(t, 5, plan.Size)
	assert.Equal(t, []Hit{{Pos: 0, Row: 2}, {Pos: 2, Row: 0}}, plan.Hits)
	assert.Equal(t, []string{"x", "y"}, plan.MissIDs())
	assert.Equal(t, []int{1, 4}, plan.Misses[0].Positions)
}

func TestPartition_EmptyStore(t *testing.T) {
	plan := Partition([]string{"a", "b"}, nil)
	assert.Empty(t, plan.Hits)
	assert.Equal(t, []string{"a", "b"}, plan.MissIDs())
}

func TestPartition_AllHits(t *testing.T) {
	store := mustStore(t, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})
	plan := Partition([]string{"b", "a"}, store)
	assert.Empty(t, plan.Misses)
	assert.Len(t, plan.Hits, 2)
}

func TestAssemble(t *testing.T) {
	store := mustStore(t, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})
	plan := Partition([]string{"b", "new", "a", "new"}, store)
	computed := mustMatrix(t, [][]float32{{0.6, 0.8}})

	out, err := Assemble(plan, store, computed)
	require.NoError(t, err)
	require.Equal(t, 4, out.Rows())
	assert.Equal(t, []float32{0, 1}, out.Row(0))
	assert.Equal(t, []float32{0.6, 0.8}, out.Row(1))
	assert.Equal(t, []float32{1, 0}, out.Row(2))
	assert.Equal(t, []float32{0.6, 0.8}, out.Row(3))
}

func TestAssemble_DimensionMismatch(t *testing.T) {
	store := mustStore(t, []string{"a"}, [][]float32{{1, 0}})
	plan := Partition([]string{"a", "b"}, store)
	computed := mustMatrix(t, [][]float32{{1, 0, 0}})

	_, err := Assemble(plan, store, computed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDimensionMismatch))
}

func TestAssemble_CountMismatch(t *testing.T) {
	plan := Partition([]string{"a", "b"}, nil)
	_, err := Assemble(plan, nil, mustMatrix(t, [][]float32{{1}}))
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	prev := mustStore(t, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})

	merged, err := Merge(prev, []string{"c", "a", "c"}, mustMatrix(t, [][]float32{{0.5, 0.5}, {0.6, 0.8}, {0.5, 0.5}}))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, merged.IDs)
	assert.Equal(t, []float32{0.6, 0.8}, merged.Features.Row(0))
	assert.Equal(t, []float32{0, 1}, merged.Features.Row(1))
	assert.Equal(t, []float32{0.5, 0.5}, merged.Features.Row(2))

	// prev is untouched
	assert.Equal(t, []float32{1, 0}, prev.Features.Row(0))
}

func TestMerge_IntoEmpty(t *testing.T) {
	merged, err := Merge(nil, []string{"a"}, mustMatrix(t, [][]float32{{1, 2, 3}}))
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Len())
	assert.Equal(t, 3, merged.Dim())
}

func TestMerge_NothingNew(t *testing.T) {
	prev := mustStore(t, []string{"a"}, [][]float32{{1}})
	merged, err := Merge(prev, nil, nil)
	require.NoError(t, err)
	assert.Same(t, prev, merged)
}

func TestMerge_DimensionMismatch(t *testing.T) {
	prev := mustStore(t, []string{"a"}, [][]float32{{1, 0}})
	_, err := Merge(prev, []string{"b"}, mustMatrix(t, [][]float32{{1, 0, 0}}))
	require.Error(t, err)
	var dm *models.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}
