package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/gofrs/flock"

	"github.com/quietpage/quietpage/internal/page"
)

// Role is a logical index role.
type Role int

const (
	// RoleActive is the generation answering queries.
	RoleActive Role = iota
	// RoleStaging is the generation being rebuilt.
	RoleStaging

	roleCount = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleActive:
		return "active"
	case RoleStaging:
		return "staging"
	default:
		return "unknown"
	}
}

// Physical slot directory names. The two slots are permanent and
// interchangeable; only the role binding distinguishes them.
const (
	slotAlpha = "alpha"
	slotBeta  = "beta"

	rolesFile = "roles.json"
	lockFile  = "index.lock"
)

// rolesRecord is the on-disk role binding, persisted so roles re-resolve
// correctly across process restarts.
type rolesRecord struct {
	Active string `json:"active"`
}

// RoleSet owns the two physical slots and the flippable role binding.
// The binding is protected by single-writer (swap) / multiple-reader
// (queries) discipline; it is threaded explicitly through the
// orchestrator and query components, never held as package state.
type RoleSet struct {
	root string
	lock *flock.Flock

	mu sync.RWMutex
	// handles is indexed by role. An entry may be nil after a failed
	// post-flip reopen; it is reconstructed lazily on next access.
	handles [roleCount]*Slot
	// flipped selects the role→slot binding: false means active=alpha,
	// true means active=beta.
	flipped bool
}

// Open opens (or initializes) the index root: takes the process lock,
// restores the persisted role binding and opens both slots.
func Open(root string) (*RoleSet, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create index root: %w", err)
	}

	lock := flock.New(filepath.Join(root, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index root %s is locked by another process", root)
	}

	rs := &RoleSet{root: root, lock: lock}

	flipped, err := loadRoles(filepath.Join(root, rolesFile))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	rs.flipped = flipped
	if err := rs.persistRoles(flipped); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	for r := RoleActive; r < roleCount; r++ {
		slot, err := OpenSlot(rs.slotPath(r))
		if err != nil {
			rs.closeHandles()
			_ = lock.Unlock()
			return nil, fmt.Errorf("open %s slot: %w", r, err)
		}
		rs.handles[r] = slot
	}

	slog.Info("search index opened",
		slog.String("root", root),
		slog.String("active_slot", rs.activeSlotName()))
	return rs, nil
}

// loadRoles reads the persisted role binding. A missing file defaults to
// alpha active; an unreadable one is an error.
func loadRoles(path string) (flipped bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read role record: %w", err)
	}

	var rec rolesRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, fmt.Errorf("parse role record: %w", err)
	}
	return rec.Active == slotBeta, nil
}

// persistRoles writes the role binding for the given flip state
// atomically (temp file + rename).
func (rs *RoleSet) persistRoles(flipped bool) error {
	rec := rolesRecord{Active: slotAlpha}
	if flipped {
		rec.Active = slotBeta
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode role record: %w", err)
	}

	path := filepath.Join(rs.root, rolesFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write role record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit role record: %w", err)
	}
	return nil
}

// slotPath resolves a role to its physical slot directory under the
// current flip state. Callers must hold the lock.
func (rs *RoleSet) slotPath(r Role) string {
	name := slotAlpha
	if (r == RoleActive) == rs.flipped {
		name = slotBeta
	}
	return filepath.Join(rs.root, name)
}

// activeSlotName returns the physical name bound to the active role.
func (rs *RoleSet) activeSlotName() string {
	if rs.flipped {
		return slotBeta
	}
	return slotAlpha
}

// withRole runs fn with the slot bound to role under the read lock,
// reconstructing a missing handle first if a prior reopen failed.
func (rs *RoleSet) withRole(r Role, fn func(*Slot) error) error {
	rs.mu.RLock()
	if rs.handles[r] == nil {
		rs.mu.RUnlock()
		if err := rs.reconstruct(r); err != nil {
			return err
		}
		rs.mu.RLock()
	}
	defer rs.mu.RUnlock()

	slot := rs.handles[r]
	if slot == nil {
		return fmt.Errorf("%s slot unavailable", r)
	}
	return fn(slot)
}

// reconstruct reopens a handle that was lost to a failed reopen.
func (rs *RoleSet) reconstruct(r Role) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.handles[r] != nil {
		return nil
	}
	slot, err := OpenSlot(rs.slotPath(r))
	if err != nil {
		return fmt.Errorf("reconstruct %s handle: %w", r, err)
	}
	rs.handles[r] = slot
	slog.Info("reconstructed slot handle", slog.String("role", r.String()))
	return nil
}

// ClearStaging removes every document from the staging slot.
func (rs *RoleSet) ClearStaging() error {
	return rs.withRole(RoleStaging, func(s *Slot) error {
		return s.ClearAll()
	})
}

// UpsertStaging commits one batch of documents to the staging slot.
func (rs *RoleSet) UpsertStaging(docs []*page.Document) error {
	return rs.withRole(RoleStaging, func(s *Slot) error {
		return s.UpsertBatch(docs)
	})
}

// SearchActive runs a search against the active slot's latest committed
// snapshot. It never blocks on reindexing: staging writes touch the
// other slot, and a swap in progress holds the write lock only for the
// handle exchange itself.
func (rs *RoleSet) SearchActive(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	var result *bleve.SearchResult
	err := rs.withRole(RoleActive, func(s *Slot) error {
		var searchErr error
		result, searchErr = s.Search(ctx, req)
		return searchErr
	})
	return result, err
}

// Count returns the document count of the slot bound to role.
func (rs *RoleSet) Count(r Role) (uint64, error) {
	var count uint64
	err := rs.withRole(r, func(s *Slot) error {
		var countErr error
		count, countErr = s.Count()
		return countErr
	})
	return count, err
}

// ActiveIDs returns every document id in the active slot.
func (rs *RoleSet) ActiveIDs() ([]string, error) {
	var ids []string
	err := rs.withRole(RoleActive, func(s *Slot) error {
		var idsErr error
		ids, idsErr = s.AllIDs()
		return idsErr
	})
	return ids, err
}

// closeHandles closes any open handles. Callers must hold the write
// lock or have exclusive access.
func (rs *RoleSet) closeHandles() {
	for r := range rs.handles {
		if rs.handles[r] != nil {
			_ = rs.handles[r].Close()
			rs.handles[r] = nil
		}
	}
}

// Close closes both slots and releases the process lock.
func (rs *RoleSet) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var firstErr error
	for r := range rs.handles {
		if rs.handles[r] == nil {
			continue
		}
		if err := rs.handles[r].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		rs.handles[r] = nil
	}
	if err := rs.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
