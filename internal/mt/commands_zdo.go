package mt

// zdoCommands catalogues the ZDO subsystem: network start-up, endpoint and
// binding discovery, and the network-management indications that drive the
// application layer's device table.
var zdoCommands = []Command{
	{
		Subsystem: ZDO, ID: 0x40, Name: "ZDO.StartupFromApp", ReqType: SREQ,
		Request:  []Field{{Name: "StartDelay", Kind: KindU16}},
		Response: []Field{{Name: "State", Kind: KindEnum8}},
	},
	{
		Subsystem: ZDO, ID: 0x05, Name: "ZDO.ActiveEpReq", ReqType: SREQ,
		Request: []Field{
			{Name: "DstAddr", Kind: KindNWKAddr},
			{Name: "NWKAddrOfInterest", Kind: KindNWKAddr},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "ZDO.ActiveEpRsp",
	},
	{
		Subsystem: ZDO, ID: 0x85, Name: "ZDO.ActiveEpRsp", ReqType: AREQ,
		Request: []Field{
			{Name: "Src", Kind: KindNWKAddr},
			{Name: "Status", Kind: KindEnum8},
			{Name: "NWK", Kind: KindNWKAddr},
			{Name: "ActiveEndpoints", Kind: KindList, Elem: []Field{{Name: "Endpoint", Kind: KindU8}}},
		},
	},
	{
		Subsystem: ZDO, ID: 0x04, Name: "ZDO.SimpleDescReq", ReqType: SREQ,
		Request: []Field{
			{Name: "DstAddr", Kind: KindNWKAddr},
			{Name: "NWKAddrOfInterest", Kind: KindNWKAddr},
			{Name: "Endpoint", Kind: KindU8},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: ZDO, ID: 0x21, Name: "ZDO.BindReq", ReqType: SREQ,
		Request: []Field{
			{Name: "DstAddr", Kind: KindNWKAddr},
			{Name: "SrcAddress", Kind: KindIEEEAddr},
			{Name: "SrcEndpoint", Kind: KindU8},
			{Name: "ClusterId", Kind: KindU16},
			{Name: "DstAddrModeAddress", Kind: KindIEEEAddr},
			{Name: "DstEndpoint", Kind: KindU8},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "ZDO.BindRsp",
	},
	{
		Subsystem: ZDO, ID: 0xA1, Name: "ZDO.BindRsp", ReqType: AREQ,
		Request: []Field{
			{Name: "Src", Kind: KindNWKAddr},
			{Name: "Status", Kind: KindEnum8},
		},
	},
	{
		Subsystem: ZDO, ID: 0x34, Name: "ZDO.MgmtLeaveReq", ReqType: SREQ,
		Request: []Field{
			{Name: "DstAddr", Kind: KindNWKAddr},
			{Name: "DeviceAddress", Kind: KindIEEEAddr},
			{Name: "RemoveChildrenRejoin", Kind: KindU8},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "ZDO.MgmtLeaveRsp",
	},
	{
		Subsystem: ZDO, ID: 0xB4, Name: "ZDO.MgmtLeaveRsp", ReqType: AREQ,
		Request: []Field{
			{Name: "Src", Kind: KindNWKAddr},
			{Name: "Status", Kind: KindEnum8},
		},
	},
	{
		Subsystem: ZDO, ID: 0x36, Name: "ZDO.MgmtPermitJoinReq", ReqType: SREQ,
		Request: []Field{
			{Name: "AddrMode", Kind: KindU8},
			{Name: "Dst", Kind: KindNWKAddr},
			{Name: "Duration", Kind: KindU8},
			{Name: "TCSignificance", Kind: KindU8},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "ZDO.MgmtPermitJoinRsp",
	},
	{
		Subsystem: ZDO, ID: 0xB6, Name: "ZDO.MgmtPermitJoinRsp", ReqType: AREQ,
		Request: []Field{
			{Name: "Src", Kind: KindNWKAddr},
			{Name: "Status", Kind: KindEnum8},
		},
	},
	{
		Subsystem: ZDO, ID: 0x31, Name: "ZDO.MgmtLqiReq", ReqType: SREQ,
		Request: []Field{
			{Name: "DstAddr", Kind: KindNWKAddr},
			{Name: "StartIndex", Kind: KindU8},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "ZDO.MgmtLqiRsp",
	},
	{
		Subsystem: ZDO, ID: 0xB1, Name: "ZDO.MgmtLqiRsp", ReqType: AREQ,
		Request: []Field{
			{Name: "Src", Kind: KindNWKAddr},
			{Name: "Status", Kind: KindEnum8},
		},
	},

	// Unsolicited network-management indications.
	{
		Subsystem: ZDO, ID: 0xC0, Name: "ZDO.StateChangeInd", ReqType: AREQ,
		Request: []Field{{Name: "State", Kind: KindEnum8}},
	},
	{
		Subsystem: ZDO, ID: 0xC1, Name: "ZDO.EndDeviceAnnceInd", ReqType: AREQ,
		Request: []Field{
			{Name: "Src", Kind: KindNWKAddr},
			{Name: "NWK", Kind: KindNWKAddr},
			{Name: "IEEE", Kind: KindIEEEAddr},
			{Name: "Capabilities", Kind: KindU8},
		},
	},
	{
		Subsystem: ZDO, ID: 0xC9, Name: "ZDO.LeaveInd", ReqType: AREQ,
		Request: []Field{
			{Name: "NWK", Kind: KindNWKAddr},
			{Name: "IEEE", Kind: KindIEEEAddr},
			{Name: "Request", Kind: KindBool8},
			{Name: "Remove", Kind: KindBool8},
			{Name: "Rejoin", Kind: KindBool8},
		},
	},
	{
		Subsystem: ZDO, ID: 0x00, Name: "ZDO.NwkAddrReq", ReqType: SREQ,
		Request: []Field{
			{Name: "IEEE", Kind: KindIEEEAddr},
			{Name: "RequestType", Kind: KindU8},
			{Name: "StartIndex", Kind: KindU8},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "ZDO.NwkAddrRsp",
	},
	{
		Subsystem: ZDO, ID: 0x80, Name: "ZDO.NwkAddrRsp", ReqType: AREQ,
		Request: []Field{
			{Name: "Status", Kind: KindEnum8},
			{Name: "IEEE", Kind: KindIEEEAddr},
			{Name: "NWK", Kind: KindNWKAddr},
		},
	},
}
