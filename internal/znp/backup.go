package znp

import (
	"context"

	"tizigbee/internal/nvram"
)

// backupItems is the set of legacy NV items a network backup captures:
// enough to restore network membership on a replacement coprocessor
// without carrying over device-specific state like the boot counter.
var backupItems = []nvram.LegacyID{
	nvram.IDExtAddr,
	nvram.IDNIB,
	nvram.IDPANID,
	nvram.IDAPSUseExtPANID,
	nvram.IDPrecfgKey,
	nvram.IDPrecfgKeysEnable,
	nvram.IDChanList,
	nvram.IDExtendedPANID,
	nvram.IDNwkActiveKeyInfo,
	nvram.IDNwkAlternKeyInfo,
	nvram.IDHasConfiguredZStack1,
	nvram.IDHasConfiguredZStack3,
}

// backupExtendedItems is the set of extended NV items a network backup
// captures alongside backupItems: the trust-center link key table (so a
// restored coordinator recognises devices it previously trusted) and the
// outgoing NWK frame counter (so it never reuses a counter value the
// network has already seen a frame with).
var backupExtendedItems = []nvram.ExtendedItem{
	nvram.ExtTCLKTable,
	nvram.ExtNwkSecMaterialTable,
}

// Backup captures the coprocessor's network-identity NVRAM items, trust
// center link keys, and frame counter bookkeeping. The bus holds no other
// exclusive lock during a backup beyond the SREQ lane already serialising
// every request, satisfying invariant I5 (backups never mutate NVRAM).
func (d *Driver) Backup(ctx context.Context) (*nvram.Snapshot, error) {
	return d.nv.Backup(ctx, backupItems, backupExtendedItems)
}

// ResetNetwork forgets the current network's identity without touching the
// coprocessor's IEEE address, so a subsequent Start re-commissions instead
// of rejoining.
func (d *Driver) ResetNetwork(ctx context.Context) error {
	return d.nv.ResetNetwork(ctx)
}

// ResetFactory deletes the network items, the commissioning markers and the
// EXTADDR, BOOTCOUNTER and STARTUP_OPTION legacy items. Extended NV items and
// the deprecated poll-rate item are left in place, and no reset is sent.
func (d *Driver) ResetFactory(ctx context.Context) error {
	return d.nv.ResetFactory(ctx)
}
