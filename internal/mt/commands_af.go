package mt

// afCommands catalogues the Application Framework subsystem: endpoint
// registration and the data-plane request/confirm/indication triple that
// the coordinator's data request path drives.
var afCommands = []Command{
	{
		Subsystem: AF, ID: 0x00, Name: "AF.Register", ReqType: SREQ,
		Request: []Field{
			{Name: "Endpoint", Kind: KindU8},
			{Name: "ProfileId", Kind: KindU16},
			{Name: "DeviceId", Kind: KindU16},
			{Name: "LatencyReq", Kind: KindU8},
			{Name: "InputClusters", Kind: KindList, Elem: []Field{{Name: "ClusterId", Kind: KindU16}}},
			{Name: "OutputClusters", Kind: KindList, Elem: []Field{{Name: "ClusterId", Kind: KindU16}}},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
	},
	{
		Subsystem: AF, ID: 0x01, Name: "AF.DataRequest", ReqType: SREQ,
		Request: []Field{
			{Name: "DstAddr", Kind: KindNWKAddr},
			{Name: "DstEndpoint", Kind: KindU8},
			{Name: "SrcEndpoint", Kind: KindU8},
			{Name: "ClusterId", Kind: KindU16},
			{Name: "TSN", Kind: KindU8},
			{Name: "Options", Kind: KindU8},
			{Name: "Radius", Kind: KindU8},
			{Name: "Data", Kind: KindVarBytes},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "AF.DataConfirm",
	},
	{
		Subsystem: AF, ID: 0x02, Name: "AF.DataRequestExt", ReqType: SREQ,
		Request: []Field{
			{Name: "DstAddrMode", Kind: KindU8},
			{Name: "DstAddr", Kind: KindIEEEAddr},
			{Name: "DstEndpoint", Kind: KindU8},
			{Name: "DstPanId", Kind: KindU16},
			{Name: "SrcEndpoint", Kind: KindU8},
			{Name: "ClusterId", Kind: KindU16},
			{Name: "TSN", Kind: KindU8},
			{Name: "Options", Kind: KindU8},
			{Name: "Radius", Kind: KindU8},
			{Name: "Data", Kind: KindVarBytes},
		},
		Response: []Field{{Name: "Status", Kind: KindEnum8}},
		Confirm:  "AF.DataConfirm",
	},
	{
		Subsystem: AF, ID: 0x80, Name: "AF.DataConfirm", ReqType: AREQ,
		Request: []Field{
			{Name: "Status", Kind: KindEnum8},
			{Name: "Endpoint", Kind: KindU8},
			{Name: "TSN", Kind: KindU8},
		},
	},
	{
		Subsystem: AF, ID: 0x81, Name: "AF.IncomingMsg", ReqType: AREQ,
		Request: []Field{
			{Name: "GroupId", Kind: KindU16},
			{Name: "ClusterId", Kind: KindU16},
			{Name: "SrcAddr", Kind: KindNWKAddr},
			{Name: "SrcEndpoint", Kind: KindU8},
			{Name: "DstEndpoint", Kind: KindU8},
			{Name: "WasBroadcast", Kind: KindU8},
			{Name: "LQI", Kind: KindU8},
			{Name: "SecurityUse", Kind: KindU8},
			{Name: "TimeStamp", Kind: KindU32},
			{Name: "TSN", Kind: KindU8},
			{Name: "Data", Kind: KindVarBytes},
		},
	},
}
