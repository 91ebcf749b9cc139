package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietpage/quietpage/internal/page"
)

func testDoc(id, title, body string) *page.Document {
	return &page.Document{
		ID:       id,
		Title:    title,
		Body:     body,
		Modified: time.Now(),
		URL:      "/" + id,
		Tags:     []string{"test"},
	}
}

func TestOpenSlot_CreatesStorage(t *testing.T) {
	// Given: a path that does not exist yet
	path := filepath.Join(t.TempDir(), "alpha")

	// When: the slot is opened
	slot, err := OpenSlot(path)
	require.NoError(t, err)
	defer func() { _ = slot.Close() }()

	// Then: it is empty and the directory exists
	count, err := slot.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenSlot_CorruptedStorage_Reinitializes(t *testing.T) {
	// Given: a slot directory with a corrupt meta file
	path := filepath.Join(t.TempDir(), "alpha")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte("{not json"), 0o644))

	// When: the slot is opened
	slot, err := OpenSlot(path)

	// Then: it opens fresh instead of failing startup
	require.NoError(t, err)
	defer func() { _ = slot.Close() }()
	count, err := slot.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSlot_UpsertBatch_AllDocumentsLand(t *testing.T) {
	slot, err := OpenSlot(filepath.Join(t.TempDir(), "alpha"))
	require.NoError(t, err)
	defer func() { _ = slot.Close() }()

	docs := []*page.Document{
		testDoc("a", "First", "alpha body"),
		testDoc("b", "Second", "beta body"),
		testDoc("c", "Third", "gamma body"),
	}
	require.NoError(t, slot.UpsertBatch(docs))

	count, err := slot.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestSlot_UpsertBatch_ReplacesExistingID(t *testing.T) {
	// Given: a document already in the slot
	slot, err := OpenSlot(filepath.Join(t.TempDir(), "alpha"))
	require.NoError(t, err)
	defer func() { _ = slot.Close() }()
	require.NoError(t, slot.UpsertBatch([]*page.Document{testDoc("a", "Old", "old body")}))

	// When: the same id is written again
	require.NoError(t, slot.UpsertBatch([]*page.Document{testDoc("a", "New", "new body")}))

	// Then: ids stay unique within the generation
	count, err := slot.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSlot_ClearAll_ReportsZeroDocuments(t *testing.T) {
	// Given: a populated slot
	slot, err := OpenSlot(filepath.Join(t.TempDir(), "alpha"))
	require.NoError(t, err)
	defer func() { _ = slot.Close() }()
	require.NoError(t, slot.UpsertBatch([]*page.Document{
		testDoc("a", "First", "body"),
		testDoc("b", "Second", "body"),
	}))

	// When: it is cleared
	require.NoError(t, slot.ClearAll())

	// Then: before any new commit it reports zero documents
	count, err := slot.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSlot_AllIDs(t *testing.T) {
	slot, err := OpenSlot(filepath.Join(t.TempDir(), "alpha"))
	require.NoError(t, err)
	defer func() { _ = slot.Close() }()
	require.NoError(t, slot.UpsertBatch([]*page.Document{
		testDoc("a", "First", "body"),
		testDoc("b", "Second", "body"),
	}))

	ids, err := slot.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
