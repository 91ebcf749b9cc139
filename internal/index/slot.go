package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/quietpage/quietpage/internal/page"
)

// Field names within a slot.
const (
	fieldTitle    = "title"
	fieldBody     = "body"
	fieldTags     = "tags"
	fieldURL      = "url"
	fieldModified = "modified"
)

// slotDocument is the storage shape of one indexed page.
type slotDocument struct {
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Tags     []string  `json:"tags"`
	URL      string    `json:"url"`
	Modified time.Time `json:"modified"`
}

// Slot is one physical, transactional storage unit for one index
// generation, bound to a directory. Writes go through single atomic
// batches; searches observe a consistent point-in-time snapshot even
// while a batch is being applied.
type Slot struct {
	index   bleve.Index
	path    string
	memOnly bool
}

// OpenSlot opens the slot at path, creating the directory and
// initializing storage if absent. A store that fails integrity
// validation or fails to open due to corruption is destroyed and
// reinitialized rather than failing startup.
func OpenSlot(path string) (*Slot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create slot parent directory: %w", err)
	}

	if validErr := validateSlotIntegrity(path); validErr != nil {
		slog.Warn("slot corrupted, reinitializing",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("slot corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
		}
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, slotMapping())
	} else if err != nil && isCorruptionError(err) {
		slog.Warn("slot open failed, reinitializing",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("slot corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		idx, err = bleve.New(path, slotMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open slot %s: %w", path, err)
	}

	return &Slot{index: idx, path: path}, nil
}

// newPlaceholderSlot creates a minimal throwaway in-memory slot. It
// stands in for a real handle while the real one is closed during a
// swap, so readers never observe a handle-less state.
func newPlaceholderSlot() (*Slot, error) {
	idx, err := bleve.NewMemOnly(slotMapping())
	if err != nil {
		return nil, fmt.Errorf("create placeholder slot: %w", err)
	}
	return &Slot{index: idx, memOnly: true}, nil
}

// slotMapping builds the index mapping: title, body and tags are
// searchable; title, body and url are stored for hit rendering.
func slotMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Store = true
	title.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(fieldTitle, title)

	body := bleve.NewTextFieldMapping()
	body.Store = true
	body.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(fieldBody, body)

	tags := bleve.NewTextFieldMapping()
	tags.Store = true
	docMapping.AddFieldMappingsAt(fieldTags, tags)

	url := bleve.NewKeywordFieldMapping()
	url.Store = true
	url.Index = false
	url.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldURL, url)

	modified := bleve.NewDateTimeFieldMapping()
	modified.Store = true
	modified.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldModified, modified)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// validateSlotIntegrity checks whether the slot storage at path is
// openable. Returns nil for a missing (not yet created) slot.
func validateSlotIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError reports whether err indicates storage corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// UpsertBatch applies all documents in one atomic batch: either every
// document lands or, on failure, the slot remains exactly as before the
// call. Writing an existing id replaces it.
func (s *Slot) UpsertBatch(docs []*page.Document) error {
	if len(docs) == 0 {
		return nil
	}

	batch := s.index.NewBatch()
	for _, doc := range docs {
		stored := slotDocument{
			Title:    doc.Title,
			Body:     doc.Body,
			Tags:     doc.Tags,
			URL:      doc.URL,
			Modified: doc.Modified,
		}
		if err := batch.Index(doc.ID, stored); err != nil {
			return fmt.Errorf("stage document %s: %w", doc.ID, err)
		}
	}

	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch of %d documents: %w", len(docs), err)
	}
	return nil
}

// ClearAll removes every document in one batch.
func (s *Slot) ClearAll() error {
	ids, err := s.AllIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("clear slot: %w", err)
	}
	return nil
}

// AllIDs returns every document id in the slot.
func (s *Slot) AllIDs() ([]string, error) {
	docCount, err := s.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if docCount == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	result, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("enumerate documents: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Count returns the number of documents in the slot.
func (s *Slot) Count() (uint64, error) {
	return s.index.DocCount()
}

// Search executes a search request against the slot's latest committed
// snapshot.
func (s *Slot) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	return s.index.SearchInContext(ctx, req)
}

// Close releases the slot's resources. It blocks until background
// closing has fully completed.
func (s *Slot) Close() error {
	return s.index.Close()
}

// Path returns the slot's directory, empty for placeholder slots.
func (s *Slot) Path() string {
	return s.path
}
