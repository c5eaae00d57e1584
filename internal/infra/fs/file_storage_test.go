package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Keys []string `json:"keys"`
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	var got sample
	ok, err := s.LoadJSON("wave_monitor/seen.json", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveJSON("wave_monitor/seen.json", sample{Keys: []string{"0x1", "0x2"}}))
	ok, err = s.LoadJSON("wave_monitor/seen.json", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"0x1", "0x2"}, got.Keys)

	_, err = os.Stat(s.Path("wave_monitor/seen.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreLoadEmptyAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), []byte("{}"), 0644))
	ok, err := s.LoadJSON("empty.json", &sample{})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644))
	_, err = s.LoadJSON("bad.json", &sample{})
	assert.Error(t, err)
}

func TestNewStoreDefaultDir(t *testing.T) {
	assert.Equal(t, filepath.Join(DefaultDir, "x.json"), NewStore("").Path("x.json"))
}
