package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesLayout(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	assert.DirExists(t, s.PapersDir())
	assert.DirExists(t, s.ProcessedDir())
	assert.Equal(t, filepath.Join(root, "raw", "doi_list.json"), s.DOIList())

	dir, err := s.MkJob("abc")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "uploads"))
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b.json")
	in := map[string]string{"doi": "10.1/x", "title": "Fe & C <steel>"}
	require.NoError(t, WriteJSON(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Fe & C <steel>")

	var out map[string]string
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)
}

func TestReadJSONMissing(t *testing.T) {
	var v []string
	err := ReadJSON(filepath.Join(t.TempDir(), "none.json"), &v)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
