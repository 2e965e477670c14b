package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDraftStore(t *testing.T) (*DraftStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drafts.json")
	d, err := NewDraftStore(path)
	require.NoError(t, err)
	return d, path
}

func TestDraftStoreSetAndGet(t *testing.T) {
	d, _ := newTestDraftStore(t)

	d.Set(0, "unsent thought")
	d.Set(5, "another one")

	assert.Equal(t, "unsent thought", d.Get(0))
	assert.Equal(t, "another one", d.Get(5))
	assert.Empty(t, d.Get(6))
}

func TestDraftStoreClear(t *testing.T) {
	d, _ := newTestDraftStore(t)

	d.Set(5, "soon gone")
	d.Clear(5)
	assert.Empty(t, d.Get(5))
}

func TestDraftStoreFlushPersists(t *testing.T) {
	d, path := newTestDraftStore(t)

	d.Set(3, "persist me")
	require.NoError(t, d.Flush())

	reopened, err := NewDraftStore(path)
	require.NoError(t, err)
	assert.Equal(t, "persist me", reopened.Get(3))
}

func TestDraftStoreDebouncesWrites(t *testing.T) {
	d, path := newTestDraftStore(t)
	d.delay = 20 * time.Millisecond

	// A typing burst; only the final value should land on disk.
	d.Set(1, "h")
	d.Set(1, "he")
	d.Set(1, "hello")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "flush should not happen before the debounce window")

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		var drafts map[string]string
		if err := json.Unmarshal(data, &drafts); err != nil {
			return false
		}
		return drafts["conv:1"] == "hello"
	}, time.Second, 5*time.Millisecond)
}

func TestDraftStoreSurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drafts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	d, err := NewDraftStore(path)
	require.NoError(t, err)
	assert.Empty(t, d.Get(1))
}
