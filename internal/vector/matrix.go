// Package vector provides the row-major embedding matrix and helpers for normalized vectors.
package vector

import (
	"fmt"

	"github.com/hyperjump/imgdedup/internal/models"
)

// Matrix is a dense row-major matrix of float32 embeddings. Row order mirrors
// the image list it was built from and is the only link back to image identity.
type Matrix struct {
	rows int
	dim  int
	data []float32
}

// NewMatrix returns a zero-filled matrix with the given shape.
func NewMatrix(rows, dim int) *Matrix {
	if rows < 0 || dim < 0 {
		panic(fmt.Sprintf("vector: invalid shape %dx%d", rows, dim))
	}
	return &Matrix{rows: rows, dim: dim, data: make([]float32, rows*dim)}
}

// FromRows copies rows into a new matrix. All rows must share one length.
func FromRows(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	dim := len(rows[0])
	m := NewMatrix(len(rows), dim)
	for i, r := range rows {
		if err := m.SetRow(i, r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FromData wraps data (rows*dim values) without copying.
func FromData(rows, dim int, data []float32) (*Matrix, error) {
	if rows < 0 || dim < 0 || len(data) != rows*dim {
		return nil, fmt.Errorf("data length %d does not match shape %dx%d", len(data), rows, dim)
	}
	return &Matrix{rows: rows, dim: dim, data: data}, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Dim returns the row length.
func (m *Matrix) Dim() int { return m.dim }

// Data returns the backing slice.
func (m *Matrix) Data() []float32 { return m.data }

// Row returns row i as a view into the backing slice.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.dim : (i+1)*m.dim : (i+1)*m.dim]
}

// SetRow copies v into row i.
func (m *Matrix) SetRow(i int, v []float32) error {
	if len(v) != m.dim {
		return &models.DimensionMismatchError{Expected: m.dim, Actual: len(v)}
	}
	if i < 0 || i >= m.rows {
		return fmt.Errorf("row %d out of range [0,%d)", i, m.rows)
	}
	copy(m.data[i*m.dim:(i+1)*m.dim], v)
	return nil
}

// Slice returns rows [start,end) as a view sharing storage with m.
func (m *Matrix) Slice(start, end int) *Matrix {
	if start < 0 || end > m.rows || start > end {
		panic(fmt.Sprintf("vector: slice [%d:%d] out of range for %d rows", start, end, m.rows))
	}
	return &Matrix{rows: end - start, dim: m.dim, data: m.data[start*m.dim : end*m.dim]}
}

// Equal reports whether both matrices have the same shape and bit-identical values.
func (m *Matrix) Equal(o *Matrix) bool {
	if m.rows != o.rows || m.dim != o.dim {
		return false
	}
	for i := range m.data {
		if m.data[i] != o.data[i] {
			return false
		}
	}
	return true
}
