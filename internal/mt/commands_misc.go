package mt

// sapiCommands, utilCommands and appConfCommands round out the subsystems
// the application layer needs: the SAPI configuration-item fallback path
// NVRAM uses for security-restricted items, device-info introspection, and
// the Base Device Behaviour commissioning commands Z-Stack 3+ formation
// drives through.
var sapiCommands = []Command{
	{
		Subsystem: SAPI, ID: 0x04, Name: "SAPI.ZBReadConfiguration", ReqType: SREQ,
		Request: []Field{{Name: "ConfigId", Kind: KindU8}},
		Response: []Field{
			{Name: "Status", Kind: KindEnum8},
			{Name: "ConfigId", Kind: KindU8},
			{Name: "Value", Kind: KindVarBytes},
		},
	},
	{
		Subsystem: SAPI, ID: 0x05, Name: "SAPI.ZBWriteConfiguration", ReqType: SREQ,
		Request: []Field{
			{Name: "ConfigId", Kind: KindU8},
			{Name: "Value", Kind: KindVarBytes},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
}

var utilCommands = []Command{
	{
		Subsystem: UTIL, ID: 0x00, Name: "UTIL.GetDeviceInfo", ReqType: SREQ,
		Request: nil,
		Response: []Field{
			{Name: "Status", Kind: KindEnum8},
			{Name: "IEEE", Kind: KindIEEEAddr},
			{Name: "NWK", Kind: KindNWKAddr},
			{Name: "DeviceType", Kind: KindU8},
			{Name: "DeviceState", Kind: KindEnum8},
		},
	},
	{
		Subsystem: UTIL, ID: 0x10, Name: "UTIL.LedControl", ReqType: SREQ,
		Request: []Field{
			{Name: "LedId", Kind: KindU8},
			{Name: "Mode", Kind: KindU8},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
}

var appConfCommands = []Command{
	{
		Subsystem: APPConf, ID: 0x08, Name: "APPConfig.BDBSetChannel", ReqType: SREQ,
		Request: []Field{
			{Name: "IsPrimary", Kind: KindBool8},
			{Name: "Channel", Kind: KindChannelMask},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: APPConf, ID: 0x05, Name: "APPConfig.BDBStartCommissioning", ReqType: SREQ,
		Request:  []Field{{Name: "Mode", Kind: KindU8}},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "APPConfig.BDBCommissioningNotification",
	},
	{
		Subsystem: APPConf, ID: 0x80, Name: "APPConfig.BDBCommissioningNotification", ReqType: AREQ,
		Request: []Field{
			{Name: "Status", Kind: KindEnum8},
			{Name: "Mode", Kind: KindU8},
			{Name: "RemainingModes", Kind: KindU8},
		},
	},
}

// DefaultCatalogue is the catalogue used by the rest of the driver. It is
// assembled from per-subsystem tables purely for source readability; the
// catalogue itself has no notion of which file a Command came from.
var DefaultCatalogue = NewCatalogue(concatCommands(
	sysCommands,
	zdoCommands,
	afCommands,
	sapiCommands,
	utilCommands,
	appConfCommands,
))

func concatCommands(groups ...[]Command) []Command {
	var total int
	for _, g := range groups {
		total += len(g)
	}
	out := make([]Command, 0, total)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
