package mt

// sysCommands catalogues the SYS subsystem: reset, capability probing, and
// both NVRAM storage layouts (legacy OSAL NV and extended NV).
var sysCommands = []Command{
	{
		Subsystem: SYS, ID: 0x00, Name: "SYS.ResetReq", ReqType: AREQ,
		Request: []Field{{Name: "Type", Kind: KindU8}},
	},
	{
		Subsystem: SYS, ID: 0x01, Name: "SYS.Ping", ReqType: SREQ,
		Request:  nil,
		Response: []Field{{Name: "Capabilities", Kind: KindU16}},
	},
	{
		Subsystem: SYS, ID: 0x02, Name: "SYS.Version", ReqType: SREQ,
		Request: nil,
		Response: []Field{
			{Name: "TransportRev", Kind: KindU8},
			{Name: "ProductId", Kind: KindU8},
			{Name: "MajorRel", Kind: KindU8},
			{Name: "MinorRel", Kind: KindU8},
			{Name: "MaintRel", Kind: KindU8},
		},
	},
	{
		Subsystem: SYS, ID: 0x14, Name: "SYS.SetTxPower", ReqType: SREQ,
		Request:  []Field{{Name: "TXPower", Kind: KindI8}},
		Response: []Field{{Name: "TXPower", Kind: KindI8}},
	},

	// Legacy OSAL NV, addressed by a bare 16-bit item id.
	{
		Subsystem: SYS, ID: 0x07, Name: "SYS.OSALNVItemInit", ReqType: SREQ,
		Request: []Field{
			{Name: "Id", Kind: KindU16},
			{Name: "ItemLen", Kind: KindU16},
			{Name: "Value", Kind: KindVarBytes},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: SYS, ID: 0x08, Name: "SYS.OSALNVRead", ReqType: SREQ,
		Request: []Field{
			{Name: "Id", Kind: KindU16},
			{Name: "Offset", Kind: KindU8},
		},
		Response: []Field{
			{Name: "Status", Kind: KindEnum8},
			{Name: "Value", Kind: KindVarBytes},
		},
	},
	{
		Subsystem: SYS, ID: 0x1C, Name: "SYS.OSALNVReadExt", ReqType: SREQ,
		Request: []Field{
			{Name: "Id", Kind: KindU16},
			{Name: "Offset", Kind: KindU16},
		},
		Response: []Field{
			{Name: "Status", Kind: KindEnum8},
			{Name: "Value", Kind: KindVarBytes},
		},
	},
	{
		Subsystem: SYS, ID: 0x09, Name: "SYS.OSALNVWrite", ReqType: SREQ,
		Request: []Field{
			{Name: "Id", Kind: KindU16},
			{Name: "Offset", Kind: KindU8},
			{Name: "Value", Kind: KindVarBytes},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: SYS, ID: 0x1D, Name: "SYS.OSALNVWriteExt", ReqType: SREQ,
		Request: []Field{
			{Name: "Id", Kind: KindU16},
			{Name: "Offset", Kind: KindU16},
			{Name: "Value", Kind: KindVarBytes},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: SYS, ID: 0x12, Name: "SYS.OSALNVDelete", ReqType: SREQ,
		Request: []Field{
			{Name: "Id", Kind: KindU16},
			{Name: "ItemLen", Kind: KindU16},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: SYS, ID: 0x13, Name: "SYS.OSALNVLength", ReqType: SREQ,
		Request:  []Field{{Name: "Id", Kind: KindU16}},
		Response: []Field{{Name: "ItemLen", Kind: KindU16}},
	},

	// Extended OSAL NV, addressed by (SysId, ItemId, SubId).
	{
		Subsystem: SYS, ID: 0x30, Name: "SYS.NVCreate", ReqType: SREQ,
		Request: []Field{
			{Name: "SysId", Kind: KindU8},
			{Name: "ItemId", Kind: KindU16},
			{Name: "SubId", Kind: KindU16},
			{Name: "Length", Kind: KindU32},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: SYS, ID: 0x31, Name: "SYS.NVDelete", ReqType: SREQ,
		Request: []Field{
			{Name: "SysId", Kind: KindU8},
			{Name: "ItemId", Kind: KindU16},
			{Name: "SubId", Kind: KindU16},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: SYS, ID: 0x32, Name: "SYS.NVLength", ReqType: SREQ,
		Request: []Field{
			{Name: "SysId", Kind: KindU8},
			{Name: "ItemId", Kind: KindU16},
			{Name: "SubId", Kind: KindU16},
		},
		Response: []Field{{Name: "Length", Kind: KindU32}},
	},
	{
		Subsystem: SYS, ID: 0x33, Name: "SYS.NVRead", ReqType: SREQ,
		Request: []Field{
			{Name: "SysId", Kind: KindU8},
			{Name: "ItemId", Kind: KindU16},
			{Name: "SubId", Kind: KindU16},
			{Name: "Offset", Kind: KindU16},
			{Name: "Length", Kind: KindU8},
		},
		Response: []Field{
			{Name: "Status", Kind: KindEnum8},
			{Name: "Value", Kind: KindVarBytes},
		},
	},
	{
		Subsystem: SYS, ID: 0x34, Name: "SYS.NVWrite", ReqType: SREQ,
		Request: []Field{
			{Name: "SysId", Kind: KindU8},
			{Name: "ItemId", Kind: KindU16},
			{Name: "SubId", Kind: KindU16},
			{Name: "Offset", Kind: KindU16},
			{Name: "Value", Kind: KindVarBytes},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},

	{
		Subsystem: SYS, ID: 0x80, Name: "SYS.ResetInd", ReqType: AREQ,
		Request: []Field{
			{Name: "Reason", Kind: KindEnum8},
			{Name: "TransportRev", Kind: KindU8},
			{Name: "ProductId", Kind: KindU8},
			{Name: "MajorRel", Kind: KindU8},
			{Name: "MinorRel", Kind: KindU8},
			{Name: "MaintRel", Kind: KindU8},
		},
	},
}
