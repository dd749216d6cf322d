// Package cache persists image embeddings across runs and splits each request
// into rows that can be reused and images that still need computing.
package cache

import (
	"fmt"

	"github.com/hyperjump/imgdedup/internal/models"
	"github.com/hyperjump/imgdedup/internal/vector"
)

// Store is the persisted pair of position-aligned sequences: identifiers and
// the embedding matrix. IDs[i] names Features.Row(i).
type Store struct {
	IDs      []string
	Features *vector.Matrix
}

// NewStore validates that ids and features are aligned.
func NewStore(ids []string, features *vector.Matrix) (*Store, error) {
	if features == nil {
		features = vector.NewMatrix(0, 0)
	}
	if len(ids) != features.Rows() {
		return nil, fmt.Errorf("identifiers (%d) and features (%d) length mismatch", len(ids), features.Rows())
	}
	return &Store{IDs: ids, Features: features}, nil
}

// EmptyStore returns a store with no entries.
func EmptyStore() *Store {
	return &Store{Features: vector.NewMatrix(0, 0)}
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.IDs) }

// Dim returns the embedding dimension, 0 when empty.
func (s *Store) Dim() int {
	if s.Len() == 0 {
		return 0
	}
	return s.Features.Dim()
}

// index builds the identifier to row lookup. The first occurrence of an id wins.
func (s *Store) index() map[string]int {
	idx := make(map[string]int, len(s.IDs))
	for i, id := range s.IDs {
		if _, ok := idx[id]; !ok {
			idx[id] = i
		}
	}
	return idx
}

// Hit is a requested position served from a cached row.
type Hit struct {
	Pos int
	Row int
}

// Miss is an identifier that needs computing, with every requested position
// that carries it. Positions are ascending.
type Miss struct {
	ID        string
	Positions []int
}

// Plan is the result of Partition.
type Plan struct {
	Size   int
	Hits   []Hit
	Misses []Miss
}

// MissIDs returns the identifiers needing computation in request order.
func (p *Plan) MissIDs() []string {
	ids := make([]string, len(p.Misses))
	for i, m := range p.Misses {
		ids[i] = m.ID
	}
	return ids
}

// Partition splits requested identifiers into cached rows and misses, in time
// proportional to len(requested)+store.Len(). Misses keep the order of first
// appearance; an identifier requested twice is computed once.
func Partition(requested []string, store *Store) *Plan {
	if store == nil {
		store = EmptyStore()
	}
	lookup := store.index()
	plan := &Plan{Size: len(requested)}
	pending := make(map[string]int)
	for pos, id := range requested {
		if row, ok := lookup[id]; ok {
			plan.Hits = append(plan.Hits, Hit{Pos: pos, Row: row})
			continue
		}
		if mi, ok := pending[id]; ok {
			plan.Misses[mi].Positions = append(plan.Misses[mi].Positions, pos)
			continue
		}
		pending[id] = len(plan.Misses)
		plan.Misses = append(plan.Misses, Miss{ID: id, Positions: []int{pos}})
	}
	return plan
}

// Assemble builds the matrix for the requested list: hit rows are copied from
// store, miss rows from computed (row i of computed belongs to plan.Misses[i]).
func Assemble(plan *Plan, store *Store, computed *vector.Matrix) (*vector.Matrix, error) {
	if computed == nil {
		computed = vector.NewMatrix(0, 0)
	}
	if computed.Rows() != len(plan.Misses) {
		return nil, fmt.Errorf("computed %d vectors for %d misses", computed.Rows(), len(plan.Misses))
	}
	dim := 0
	switch {
	case len(plan.Hits) > 0:
		dim = store.Features.Dim()
		if len(plan.Misses) > 0 && computed.Dim() != dim {
			return nil, &models.DimensionMismatchError{Expected: dim, Actual: computed.Dim()}
		}
	case len(plan.Misses) > 0:
		dim = computed.Dim()
	}
	out := vector.NewMatrix(plan.Size, dim)
	for _, h := range plan.Hits {
		if err := out.SetRow(h.Pos, store.Features.Row(h.Row)); err != nil {
			return nil, err
		}
	}
	for i, m := range plan.Misses {
		for _, pos := range m.Positions {
			if err := out.SetRow(pos, computed.Row(i)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Merge returns prev with ids/vectors folded in: prior entries keep their
// order, an id already present is overwritten in place, new ids are appended.
func Merge(prev *Store, ids []string, vectors *vector.Matrix) (*Store, error) {
	if prev == nil {
		prev = EmptyStore()
	}
	if vectors == nil {
		vectors = vector.NewMatrix(0, 0)
	}
	if len(ids) != vectors.Rows() {
		return nil, fmt.Errorf("identifiers (%d) and vectors (%d) length mismatch", len(ids), vectors.Rows())
	}
	if len(ids) == 0 {
		return prev, nil
	}
	dim := vectors.Dim()
	if prev.Len() > 0 && prev.Dim() != dim {
		return nil, &models.DimensionMismatchError{Expected: prev.Dim(), Actual: dim}
	}
	lookup := prev.index()
	var appended []int
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if _, ok := lookup[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		appended = append(appended, i)
	}
	merged := vector.NewMatrix(prev.Len()+len(appended), dim)
	copy(merged.Data(), prev.Features.Data())
	outIDs := make([]string, 0, merged.Rows())
	outIDs = append(outIDs, prev.IDs...)
	for i, id := range ids {
		if row, ok := lookup[id]; ok {
			if err := merged.SetRow(row, vectors.Row(i)); err != nil {
				return nil, err
			}
		}
	}
	for k, i := range appended {
		if err := merged.SetRow(prev.Len()+k, vectors.Row(i)); err != nil {
			return nil, err
		}
		outIDs = append(outIDs, ids[i])
	}
	return NewStore(outIDs, merged)
}
