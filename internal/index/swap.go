package index

import (
	"fmt"
	"log/slog"
)

// Swap exchanges the active and staging bindings. It is the single
// moment generation visibility changes and runs as a three-phase
// protocol under the write lock, so a reader resolving "active" at any
// instant gets either the pre-flip or the post-flip slot, never a
// half-swapped or handle-less state.
//
// The phases exist because the storage engine's handle holds
// memory-mapped resources that cannot be re-pointed at different backing
// storage: each role's real handle is first replaced by a throwaway
// placeholder and fully closed (quiesce), then the binding flips, then
// fresh handles are opened against the new slots (reopen).
//
// Failure rules: an error before the flip commits aborts the swap and
// restores the prior binding and handles. Once the flip has committed
// the swap counts as successful; reopen errors are logged and the
// affected handle is reconstructed lazily on next access.
func (rs *RoleSet) Swap() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	slog.Debug("swapping active and staging slots")

	// Quiesce: release both real handles, waiting out any background
	// closing, while placeholders keep every role resolvable.
	for r := RoleActive; r < roleCount; r++ {
		if err := rs.quiesce(r); err != nil {
			rs.restoreBinding()
			return fmt.Errorf("quiesce %s handle: %w", r, err)
		}
	}

	// Flip: persist first, then toggle. If persisting fails the prior
	// binding is still the committed one.
	if err := rs.persistRoles(!rs.flipped); err != nil {
		rs.restoreBinding()
		return fmt.Errorf("flip role binding: %w", err)
	}
	rs.flipped = !rs.flipped

	// Reopen: bind fresh handles to the new slots. The generation
	// switch is already committed; failures here only cost lazy
	// reconstruction later.
	for r := RoleActive; r < roleCount; r++ {
		rs.reopen(r)
	}

	slog.Info("slot swap completed", slog.String("active_slot", rs.activeSlotName()))
	return nil
}

// quiesce substitutes a placeholder for the role's handle and closes the
// real one, blocking until the close has fully completed.
func (rs *RoleSet) quiesce(r Role) error {
	placeholder, err := newPlaceholderSlot()
	if err != nil {
		return err
	}

	old := rs.handles[r]
	rs.handles[r] = placeholder
	if old == nil {
		return nil
	}
	if err := old.Close(); err != nil {
		return fmt.Errorf("close %s slot: %w", r, err)
	}
	return nil
}

// reopen replaces the role's placeholder with a real handle bound to the
// role's (now different) physical slot, then discards the placeholder.
// A reopen failure leaves the handle nil for lazy reconstruction.
func (rs *RoleSet) reopen(r Role) {
	placeholder := rs.handles[r]

	slot, err := OpenSlot(rs.slotPath(r))
	if err != nil {
		slog.Error("reopen after swap failed, handle will be reconstructed on next access",
			slog.String("role", r.String()),
			slog.String("error", err.Error()))
		rs.handles[r] = nil
	} else {
		rs.handles[r] = slot
	}

	if placeholder != nil && placeholder.memOnly {
		_ = placeholder.Close()
	}
}

// restoreBinding recovers from a pre-flip swap failure: every handle
// that was quiesced or replaced by a placeholder is reopened against its
// unchanged physical slot.
func (rs *RoleSet) restoreBinding() {
	for r := RoleActive; r < roleCount; r++ {
		handle := rs.handles[r]
		if handle != nil && !handle.memOnly {
			continue
		}
		if handle != nil {
			_ = handle.Close()
			rs.handles[r] = nil
		}
		slot, err := OpenSlot(rs.slotPath(r))
		if err != nil {
			slog.Error("could not restore slot handle after aborted swap",
				slog.String("role", r.String()),
				slog.String("error", err.Error()))
			continue
		}
		rs.handles[r] = slot
	}
}
