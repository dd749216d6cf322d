package dedup

import (
	"testing"

	"github.com/hyperjump/imgdedup/internal/vector"
	"github.com/stretchr/testify/require"
)

func mustMatrix(t *testing.T, rows [][]float32) *vector.Matrix {
	t.Helper()
	m, err := vector.FromRows(rows)
	require.NoError(t, err)
	return m
}
