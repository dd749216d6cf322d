package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyAll(t *testing.T) {
	src := t.TempDir()
	a := filepath.Join(src, "a.png")
	b := filepath.Join(src, "b.png")
	require.NoError(t, os.WriteFile(a, []byte("aaa"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("bb"), 0644))

	out := filepath.Join(t.TempDir(), "out", "nested")
	n, err := NewCopier(out).CopyAll(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := os.ReadFile(filepath.Join(out, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(got))
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCopyAll_IntoSourceDir(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(a, []byte("keep me"), 0644))

	n, err := NewCopier(dir).CopyAll(context.Background(), []string{a})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got), "source altered")
}

func TestCopyAll_MissingSource(t *testing.T) {
	_, err := NewCopier(t.TempDir()).CopyAll(context.Background(), []string{filepath.Join(t.TempDir(), "gone.png")})
	assert.Error(t, err)
}
