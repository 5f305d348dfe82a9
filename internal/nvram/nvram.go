// Package nvram implements C5: reading, writing, backing up and restoring
// the coprocessor's persistent NVRAM store across both wire layouts Z-Stack
// exposes (legacy OSAL NV addressed by a bare item id, and extended NV
// addressed by (sys, item, sub)).
package nvram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tizigbee/internal/mt"
	"tizigbee/internal/mtbus"
	"tizigbee/internal/zerr"
)

// chunkSize is the largest Value a single OSALNVWriteExt/NVWrite can carry.
const chunkSize = 244

// CapabilitySAPI mirrors SYS.Ping's capability bitmask bit for the SAPI
// subsystem, needed to decide whether the legacy security-fallback read
// path is available at all.
const CapabilitySAPI = 1 << 5

// ErrNotFound is returned by the Read methods, and by the Write methods when
// create is false, when the item does not exist, mirroring the original
// driver's KeyError semantics. The Delete methods report a missing item as
// false with a nil error instead.
var ErrNotFound = errors.New("nvram: item does not exist")

// Manager is the C5 NVRAM component. It talks to the coprocessor
// exclusively through a *mtbus.Bus, never touching the transport directly.
type Manager struct {
	bus          *mtbus.Bus
	cat          *mt.Catalogue
	logger       *slog.Logger
	capabilities uint16
	timeout      time.Duration
}

// New builds a Manager. capabilities is the bitmask SYS.Ping returned during
// bring-up; it gates the SAPI security-fallback read path.
func New(bus *mtbus.Bus, cat *mt.Catalogue, logger *slog.Logger, capabilities uint16) *Manager {
	return &Manager{bus: bus, cat: cat, logger: logger, capabilities: capabilities, timeout: 5 * time.Second}
}

func (m *Manager) cmd(name string) *mt.Command {
	c, ok := m.cat.ByName(name)
	if !ok {
		panic("nvram: catalogue missing " + name)
	}
	return c
}

func (m *Manager) request(ctx context.Context, name string, vals mt.Values) (mt.Values, error) {
	return m.bus.Request(ctx, m.cmd(name), vals, m.timeout)
}

// legacyLength returns 0 for an item that does not exist, matching the
// original driver's "every item has a length, even missing ones" note.
func (m *Manager) legacyLength(ctx context.Context, id LegacyID) (int, error) {
	rsp, err := m.request(ctx, "SYS.OSALNVLength", mt.Values{"Id": uint64(id)})
	if err != nil {
		return 0, err
	}
	return int(rsp["ItemLen"].(uint64)), nil
}

// ReadLegacy reads a complete value from legacy OSAL NV, chunked across as
// many OSALNVReadExt calls as needed, falling back to the SAPI
// ZBReadConfiguration path for security-restricted items when available.
func (m *Manager) ReadLegacy(ctx context.Context, id LegacyID) ([]byte, error) {
	if isProxied(id) {
		rsp, err := m.request(ctx, "SYS.OSALNVRead", mt.Values{"Id": uint64(id), "Offset": uint64(0)})
		if err != nil {
			return nil, err
		}
		if Status(rsp["Status"].(uint64)) != StatusSuccess {
			return nil, zerr.New(zerr.CommandStatus, "SYS.OSALNVRead")
		}
		return rsp["Value"].([]byte), nil
	}

	length, err := m.legacyLength(ctx, id)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("%w: 0x%04X", ErrNotFound, id)
	}

	data := make([]byte, 0, length)
	for len(data) < length {
		rsp, err := m.request(ctx, "SYS.OSALNVReadExt", mt.Values{"Id": uint64(id), "Offset": uint64(len(data))})
		if err != nil {
			return nil, err
		}
		status := Status(rsp["Status"].(uint64))
		if status == StatusInvalidParameter {
			return m.readViaSAPIFallback(ctx, id, length)
		}
		if !status.ok() {
			return nil, zerr.New(zerr.CommandStatus, "SYS.OSALNVReadExt")
		}
		data = append(data, rsp["Value"].([]byte)...)
	}
	return data, nil
}

// readViaSAPIFallback is the security-restricted read path: some legacy
// items refuse OSALNVReadExt but can still be read through the SAPI
// configuration-item interface, which only supports 8-bit item ids.
func (m *Manager) readViaSAPIFallback(ctx context.Context, id LegacyID, wantLen int) ([]byte, error) {
	if m.capabilities&CapabilitySAPI == 0 || id > 0xFF {
		return nil, zerr.New(zerr.NvramMissing, fmt.Sprintf("0x%04X", id))
	}

	rsp, err := m.request(ctx, "SAPI.ZBReadConfiguration", mt.Values{"ConfigId": uint64(id)})
	if err != nil {
		return nil, err
	}
	if Status(rsp["Status"].(uint64)) != StatusSuccess {
		return nil, zerr.New(zerr.NvramMissing, fmt.Sprintf("0x%04X", id))
	}
	data := rsp["Value"].([]byte)
	if len(data) != wantLen {
		return nil, zerr.New(zerr.NvramMismatch, fmt.Sprintf("0x%04X", id))
	}
	return data, nil
}

// WriteLegacy writes value to a legacy OSAL NV item, recreating it first (if
// create is true and the length differs) via OSALNVDelete + OSALNVItemInit,
// then chunking the write across OSALNVWriteExt calls.
func (m *Manager) WriteLegacy(ctx context.Context, id LegacyID, value []byte, create bool) error {
	if len(value) == 0 {
		return errors.New("nvram: value cannot be empty")
	}

	length, err := m.legacyLength(ctx, id)
	if err != nil {
		return err
	}

	if length != len(value) && !isProxied(id) {
		if !create {
			if length == 0 {
				return fmt.Errorf("%w: 0x%04X", ErrNotFound, id)
			}
			return zerr.New(zerr.NvramMismatch, fmt.Sprintf("0x%04X", id))
		}

		if length != 0 {
			if _, err := m.request(ctx, "SYS.OSALNVDelete", mt.Values{"Id": uint64(id), "ItemLen": uint64(length)}); err != nil {
				return err
			}
		}

		initLen := len(value)
		if initLen > chunkSize {
			initLen = chunkSize
		}
		if _, err := m.request(ctx, "SYS.OSALNVItemInit", mt.Values{
			"Id": uint64(id), "ItemLen": uint64(len(value)), "Value": append([]byte(nil), value[:initLen]...),
		}); err != nil {
			return err
		}
	}

	for off := 0; off < len(value); off += chunkSize {
		end := off + chunkSize
		if end > len(value) {
			end = len(value)
		}
		rsp, err := m.request(ctx, "SYS.OSALNVWriteExt", mt.Values{
			"Id": uint64(id), "Offset": uint64(off), "Value": append([]byte(nil), value[off:end]...),
		})
		if err != nil {
			return err
		}
		if Status(rsp["Status"].(uint64)) != StatusSuccess {
			return zerr.New(zerr.CommandStatus, "SYS.OSALNVWriteExt")
		}
	}
	return nil
}

// DeleteLegacy deletes a legacy item, returning whether it existed.
func (m *Manager) DeleteLegacy(ctx context.Context, id LegacyID) (bool, error) {
	length, err := m.legacyLength(ctx, id)
	if err != nil {
		return false, err
	}
	if length == 0 {
		return false, nil
	}
	rsp, err := m.request(ctx, "SYS.OSALNVDelete", mt.Values{"Id": uint64(id), "ItemLen": uint64(length)})
	if err != nil {
		return false, err
	}
	return Status(rsp["Status"].(uint64)) == StatusSuccess, nil
}

// extendedLength returns 0 when the item is absent.
func (m *Manager) extendedLength(ctx context.Context, it ExtendedItem) (int, error) {
	rsp, err := m.request(ctx, "SYS.NVLength", mt.Values{
		"SysId": uint64(it.Sys), "ItemId": uint64(it.Item), "SubId": uint64(it.Sub),
	})
	if err != nil {
		return 0, err
	}
	return int(rsp["Length"].(uint64)), nil
}

// ReadExtended reads a complete extended NV item, chunked across NVRead.
func (m *Manager) ReadExtended(ctx context.Context, it ExtendedItem) ([]byte, error) {
	length, err := m.extendedLength(ctx, it)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("%w: %+v", ErrNotFound, it)
	}

	data := make([]byte, 0, length)
	for len(data) < length {
		remaining := length - len(data)
		readLen := remaining
		if readLen > 255 {
			readLen = 255
		}
		rsp, err := m.request(ctx, "SYS.NVRead", mt.Values{
			"SysId": uint64(it.Sys), "ItemId": uint64(it.Item), "SubId": uint64(it.Sub),
			"Offset": uint64(len(data)), "Length": uint64(readLen),
		})
		if err != nil {
			return nil, err
		}
		if Status(rsp["Status"].(uint64)) != StatusSuccess {
			return nil, zerr.New(zerr.CommandStatus, "SYS.NVRead")
		}
		data = append(data, rsp["Value"].([]byte)...)
	}
	return data, nil
}

// WriteExtended writes value to an extended NV item, creating it first via
// NVCreate when its length differs from len(value) and create is true.
func (m *Manager) WriteExtended(ctx context.Context, it ExtendedItem, value []byte, create bool) error {
	if len(value) == 0 {
		return errors.New("nvram: value cannot be empty")
	}

	length, err := m.extendedLength(ctx, it)
	if err != nil {
		return err
	}

	if length != len(value) {
		if !create {
			if length == 0 {
				return fmt.Errorf("%w: %+v", ErrNotFound, it)
			}
			return zerr.New(zerr.NvramMismatch, fmt.Sprintf("%+v", it))
		}
		rsp, err := m.request(ctx, "SYS.NVCreate", mt.Values{
			"SysId": uint64(it.Sys), "ItemId": uint64(it.Item), "SubId": uint64(it.Sub), "Length": uint64(len(value)),
		})
		if err != nil {
			return err
		}
		status := Status(rsp["Status"].(uint64))
		if status != StatusSuccess && status != StatusNVItemUninit {
			return zerr.New(zerr.CommandStatus, "SYS.NVCreate")
		}
	}

	for off := 0; off < len(value); off += chunkSize {
		end := off + chunkSize
		if end > len(value) {
			end = len(value)
		}
		rsp, err := m.request(ctx, "SYS.NVWrite", mt.Values{
			"SysId": uint64(it.Sys), "ItemId": uint64(it.Item), "SubId": uint64(it.Sub),
			"Offset": uint64(off), "Value": append([]byte(nil), value[off:end]...),
		})
		if err != nil {
			return err
		}
		if Status(rsp["Status"].(uint64)) != StatusSuccess {
			return zerr.New(zerr.CommandStatus, "SYS.NVWrite")
		}
	}
	return nil
}

// DeleteExtended deletes an extended item, returning whether it existed.
func (m *Manager) DeleteExtended(ctx context.Context, it ExtendedItem) (bool, error) {
	rsp, err := m.request(ctx, "SYS.NVDelete", mt.Values{
		"SysId": uint64(it.Sys), "ItemId": uint64(it.Item), "SubId": uint64(it.Sub),
	})
	if err != nil {
		return false, err
	}
	return Status(rsp["Status"].(uint64)) == StatusSuccess, nil
}
