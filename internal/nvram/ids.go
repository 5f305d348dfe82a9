package nvram

// LegacyID is a legacy OSAL NV item id: SYS.OSALNV* addresses items by this
// bare 16-bit value alone.
type LegacyID uint16

// The subset of Z-Stack's OSAL NV item catalogue this driver reads or
// writes directly, either for coordinator bring-up or for backup/restore.
const (
	IDExtAddr             LegacyID = 0x0001
	IDBootCounter         LegacyID = 0x0002
	IDStartupOption       LegacyID = 0x0003
	IDNIB                 LegacyID = 0x0021
	IDPollRateOld16       LegacyID = 0x0024
	IDAPSUseExtPANID      LegacyID = 0x0047
	IDPrecfgKey           LegacyID = 0x0062
	IDPrecfgKeysEnable    LegacyID = 0x0063
	IDBDBNodeIsOnANetwork LegacyID = 0x0055
	IDPANID               LegacyID = 0x0083
	IDChanList            LegacyID = 0x0084
	IDExtendedPANID       LegacyID = 0x002D
	IDNwkActiveKeyInfo    LegacyID = 0x003A
	IDNwkAlternKeyInfo    LegacyID = 0x003B
	IDHasConfiguredZStack1 LegacyID = 0x0F00
	IDHasConfiguredZStack3 LegacyID = 0x0060
)

// PROXIED_NVIDS in the original driver: items Z-Stack does not behave
// consistently with over the normal length-then-read/write protocol, and
// which must instead be read and written directly at offset 0.
var proxiedIDs = map[LegacyID]bool{
	IDPollRateOld16: true,
}

func isProxied(id LegacyID) bool { return proxiedIDs[id] }

// SysID identifies the owning subsystem of an extended NV item.
type SysID uint8

const (
	SysZStack SysID = 0x01
)

// ExtendedItem is an extended OSAL NV item, addressed by (SysId, ItemId,
// SubId) via SYS.NVCreate/NVRead/NVWrite/NVDelete.
type ExtendedItem struct {
	Sys  SysID
	Item uint16
	Sub  uint16
}

var ExtTCLKTable = ExtendedItem{Sys: SysZStack, Item: 0x0004}

// ExtNwkSecMaterialTable holds the outgoing NWK frame counter Z-Stack
// persists across reboots so a restored coprocessor never reuses a frame
// counter value the network has already seen.
var ExtNwkSecMaterialTable = ExtendedItem{Sys: SysZStack, Item: 0x0007}

// networkFormingItems is the set of legacy items write_network_info rewrites
// when joining or forming a network. It excludes items that only mark
// completed-commissioning state, which are handled separately below.
var networkFormingItems = []LegacyID{
	IDNIB,
	IDPANID,
	IDAPSUseExtPANID,
	IDPrecfgKey,
	IDPrecfgKeysEnable,
	IDChanList,
	IDExtendedPANID,
	IDNwkActiveKeyInfo,
	IDNwkAlternKeyInfo,
}

// commissioningMarkerItems record that the coprocessor has already joined or
// formed a network; a network-only reset deletes these as well as the
// items above, so a subsequent boot re-runs commissioning
// instead of rejoining the stale network.
var commissioningMarkerItems = []LegacyID{
	IDHasConfiguredZStack1,
	IDHasConfiguredZStack3,
	IDBDBNodeIsOnANetwork,
}

// factoryResetItems is the legacy item list a factory reset clears: the
// network-only reset's items plus EXTADDR, BOOTCOUNTER and STARTUP_OPTION.
// It does not include IDPollRateOld16.
func factoryResetItems() []LegacyID {
	items := append([]LegacyID{}, networkFormingItems...)
	items = append(items, commissioningMarkerItems...)
	items = append(items, IDExtAddr, IDBootCounter, IDStartupOption)
	return items
}
