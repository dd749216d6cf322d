package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// KeyFunc maps an image path to the identity it is memoised under.
type KeyFunc func(path string) (string, error)

// MemoProvider keeps recently computed vectors in memory so a long-lived
// process (watch, serve) does not recompute an unchanged image. Vectors are
// cloned on the way in and out.
type MemoProvider struct {
	next  Provider
	key   KeyFunc
	cache *lru.Cache[string, []float32]
}

// WrapMemo wraps next with an LRU of the given size. A non-positive size
// returns next unchanged.
func WrapMemo(next Provider, size int, key KeyFunc) (Provider, error) {
	if next == nil || size <= 0 || key == nil {
		return next, nil
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create memo: %w", err)
	}
	return &MemoProvider{next: next, key: key, cache: c}, nil
}

// EmbedBatch serves memoised paths and forwards the rest in one call.
func (m *MemoProvider) EmbedBatch(ctx context.Context, paths []string) ([][]float32, error) {
	out := make([][]float32, len(paths))
	keys := make([]string, len(paths))
	var missing []string
	var missingPos []int
	for i, p := range paths {
		k, err := m.key(p)
		if err != nil {
			return nil, err
		}
		keys[i] = k
		if v, ok := m.cache.Get(k); ok {
			out[i] = cloneEmbedding(v)
			continue
		}
		missing = append(missing, p)
		missingPos = append(missingPos, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := m.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("provider returned %d vectors for %d images", len(vecs), len(missing))
	}
	for j, pos := range missingPos {
		out[pos] = vecs[j]
		m.cache.Add(keys[pos], cloneEmbedding(vecs[j]))
	}
	return out, nil
}

// Len returns the number of memoised vectors.
func (m *MemoProvider) Len() int { return m.cache.Len() }

// Dimensions returns the wrapped provider's dimension.
func (m *MemoProvider) Dimensions() int { return m.next.Dimensions() }

// Close purges the memo and closes the wrapped provider.
func (m *MemoProvider) Close() error {
	m.cache.Purge()
	return m.next.Close()
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
