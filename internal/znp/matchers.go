package znp

import (
	"tizigbee/internal/mt"
	"tizigbee/internal/mtbus"
)

// onCommissioningNotification matches any BDB commissioning-complete
// indication whatever its Status. formNetwork takes the first match as the
// end of the commissioning wait without reading its Status; the
// coordinator-started wait that follows is what confirms formation.
func onCommissioningNotification(cat *mt.Catalogue) mtbus.Matcher {
	return mtbus.OnCommand(cat, "APPConfig.BDBCommissioningNotification", nil)
}

// onDataConfirm matches the AF.DataConfirm indication for a specific
// transaction sequence number.
func onDataConfirm(cat *mt.Catalogue, tsn uint8) mtbus.Matcher {
	return mtbus.OnCommand(cat, "AF.DataConfirm", mt.Values{"TSN": uint64(tsn)})
}

// onResetInd matches the SYS.ResetInd callback a coprocessor sends once it
// has finished rebooting after SYS.ResetReq.
func onResetInd(cat *mt.Catalogue) mtbus.Matcher {
	return mtbus.OnCommand(cat, "SYS.ResetInd", nil)
}

// onActiveEpRsp matches the ZDO.ActiveEpRsp indication reporting nwkAddr's
// active endpoint list.
func onActiveEpRsp(cat *mt.Catalogue, nwkAddr uint16) mtbus.Matcher {
	return mtbus.OnCommand(cat, "ZDO.ActiveEpRsp", mt.Values{"NWK": uint64(nwkAddr)})
}
