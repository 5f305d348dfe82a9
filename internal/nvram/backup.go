package nvram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"tizigbee/internal/mt"
	"tizigbee/internal/zerr"
)

// Snapshot is a point-in-time capture of the legacy and extended NV items
// this driver cares about, including the trust-center link key table and
// frame counter that carry over the network's security state. Absent items
// are recorded as absent rather than omitted, so a restore can tell "never
// had a value" apart from "read failed".
type Snapshot struct {
	Items    map[LegacyID]Item
	Extended map[ExtendedItem]Item
}

// Item is one entry of a Snapshot.
type Item struct {
	Present bool
	Value   []byte
}

// Backup reads every item in ids and extIDs into a Snapshot without writing
// anything, satisfying invariant I5 (a backup never mutates NVRAM state).
// Read errors other than "item not found" abort the backup.
func (m *Manager) Backup(ctx context.Context, ids []LegacyID, extIDs []ExtendedItem) (*Snapshot, error) {
	snap := &Snapshot{
		Items:    make(map[LegacyID]Item, len(ids)),
		Extended: make(map[ExtendedItem]Item, len(extIDs)),
	}
	for _, id := range ids {
		value, err := m.ReadLegacy(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			snap.Items[id] = Item{Present: false}
		case err != nil:
			return nil, err
		default:
			snap.Items[id] = Item{Present: true, Value: value}
		}
	}
	for _, it := range extIDs {
		value, err := m.ReadExtended(ctx, it)
		switch {
		case errors.Is(err, ErrNotFound):
			snap.Extended[it] = Item{Present: false}
		case err != nil:
			return nil, err
		default:
			snap.Extended[it] = Item{Present: true, Value: value}
		}
	}
	return snap, nil
}

// Restore resets the coprocessor to a known-clean NVRAM state, writes every
// present item in snap back (creating items that don't currently exist and
// deleting items the snapshot recorded as absent), then reads each written
// item back and compares it against the snapshot. Per-item write failures
// are collected rather than aborting the whole restore, so a
// partially-incompatible chip still recovers what it can; any readback
// mismatch is reported as zerr.NvramMismatch.
func (m *Manager) Restore(ctx context.Context, snap *Snapshot) error {
	if err := m.resetForRestore(ctx); err != nil {
		return fmt.Errorf("nvram: reset before restore: %w", err)
	}

	var errs []error
	for id, item := range snap.Items {
		var err error
		if item.Present {
			err = m.WriteLegacy(ctx, id, item.Value, true)
		} else {
			_, err = m.DeleteLegacy(ctx, id)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	for it, item := range snap.Extended {
		var err error
		if item.Present {
			err = m.WriteExtended(ctx, it, item.Value, true)
		} else {
			_, err = m.DeleteExtended(ctx, it)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	return m.verifyRestore(ctx, snap)
}

// verifyRestore reads back every item the snapshot recorded and compares it
// against what was written, per the restore-then-verify invariant.
func (m *Manager) verifyRestore(ctx context.Context, snap *Snapshot) error {
	var errs []error
	for id, item := range snap.Items {
		got, err := m.ReadLegacy(ctx, id)
		switch {
		case item.Present && errors.Is(err, ErrNotFound):
			errs = append(errs, zerr.New(zerr.NvramMismatch, fmt.Sprintf("item %#04x: expected present, still absent after restore", uint16(id))))
		case item.Present && err != nil:
			errs = append(errs, fmt.Errorf("nvram: verify %#04x: %w", uint16(id), err))
		case item.Present && !bytes.Equal(got, item.Value):
			errs = append(errs, zerr.New(zerr.NvramMismatch, fmt.Sprintf("item %#04x: readback does not match restored value", uint16(id))))
		case !item.Present && err == nil:
			errs = append(errs, zerr.New(zerr.NvramMismatch, fmt.Sprintf("item %#04x: expected absent, still present after restore", uint16(id))))
		case !item.Present && !errors.Is(err, ErrNotFound):
			errs = append(errs, fmt.Errorf("nvram: verify %#04x: %w", uint16(id), err))
		}
	}
	for it, item := range snap.Extended {
		got, err := m.ReadExtended(ctx, it)
		switch {
		case item.Present && errors.Is(err, ErrNotFound):
			errs = append(errs, zerr.New(zerr.NvramMismatch, fmt.Sprintf("item %+v: expected present, still absent after restore", it)))
		case item.Present && err != nil:
			errs = append(errs, fmt.Errorf("nvram: verify %+v: %w", it, err))
		case item.Present && !bytes.Equal(got, item.Value):
			errs = append(errs, zerr.New(zerr.NvramMismatch, fmt.Sprintf("item %+v: readback does not match restored value", it)))
		case !item.Present && err == nil:
			errs = append(errs, zerr.New(zerr.NvramMismatch, fmt.Sprintf("item %+v: expected absent, still present after restore", it)))
		case !item.Present && !errors.Is(err, ErrNotFound):
			errs = append(errs, fmt.Errorf("nvram: verify %+v: %w", it, err))
		}
	}
	return errors.Join(errs...)
}

// resetForRestore soft-resets the coprocessor so restored NVRAM items take
// effect against a known-clean state, the same reset-before-write sequence
// forming uses.
func (m *Manager) resetForRestore(ctx context.Context) error {
	const resetTypeSoft = 1
	resetInd, ok := m.cat.ByName("SYS.ResetInd")
	if !ok {
		return nil
	}
	matcher := func(f mt.Frame, _ mt.Values) bool {
		return f.Subsystem == resetInd.Subsystem && f.ID == resetInd.ID
	}
	stream := m.bus.Subscribe(matcher, false)
	defer stream.Close()

	if err := m.bus.Send(m.cmd("SYS.ResetReq"), mt.Values{"Type": uint64(resetTypeSoft)}); err != nil {
		return err
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-stream.Frames():
		return nil
	case <-stream.Done():
		return zerr.New(zerr.Disconnected, "SYS.ResetInd")
	case <-timer.C:
		return zerr.New(zerr.Timeout, "SYS.ResetInd")
	case <-ctx.Done():
		return zerr.New(zerr.Cancelled, "SYS.ResetInd")
	}
}

// ResetNetwork deletes the network-identity items and the
// commissioning-completed markers, so the coprocessor forgets its current
// network on next boot without touching its IEEE address or app-layer state.
func (m *Manager) ResetNetwork(ctx context.Context) error {
	var errs []error
	for _, id := range commissioningMarkerItems {
		if _, err := m.DeleteLegacy(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	for _, id := range networkFormingItems {
		if _, err := m.DeleteLegacy(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetFactory deletes the legacy items in factoryResetItems, a strictly
// deeper reset than ResetNetwork that also discards the coprocessor's IEEE
// address override, boot counter and startup option. It leaves the
// deprecated poll-rate item and the extended NV items in place, and it does
// not reset the coprocessor afterwards.
func (m *Manager) ResetFactory(ctx context.Context) error {
	var errs []error
	for _, id := range factoryResetItems() {
		if _, err := m.DeleteLegacy(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
