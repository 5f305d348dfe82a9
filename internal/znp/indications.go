package znp

import "tizigbee/internal/mt"

// AnnounceInfo is the decoded payload of ZDO.EndDeviceAnnceInd.
type AnnounceInfo struct {
	NWK          uint16
	IEEE         uint64
	Capabilities uint8
}

// LeaveInfo is the decoded payload of ZDO.LeaveInd.
type LeaveInfo struct {
	NWK    uint16
	IEEE   uint64
	Rejoin bool
}

// IncomingMsg is the decoded payload of AF.IncomingMsg.
type IncomingMsg struct {
	SrcAddr     uint16
	SrcEndpoint uint8
	DstEndpoint uint8
	ClusterID   uint16
	Data        []byte
}

// subscribeIndications wires the unsolicited ZDO/AF indications this driver
// understands onto the bus's dispatch path and republishes them on the
// driver's own EventBus, decoded into small typed structs instead of the
// raw mt.Values map the bus layer deals in.
func (d *Driver) subscribeIndications() {
	d.indicationSub = d.bus.Subscribe(anyKnownIndication(d.cat), true)

	go func() {
		for {
			select {
			case frame := <-d.indicationSub.Frames():
				d.handleIndication(frame)
			case <-d.indicationSub.Done():
				return
			}
		}
	}()
}

func anyKnownIndication(cat *mt.Catalogue) func(mt.Frame, mt.Values) bool {
	names := []string{"ZDO.EndDeviceAnnceInd", "ZDO.LeaveInd", "AF.IncomingMsg", "ZDO.StateChangeInd"}
	addrs := make(map[mt.Subsystem]map[uint8]bool)
	for _, n := range names {
		cmd, ok := cat.ByName(n)
		if !ok {
			continue
		}
		if addrs[cmd.Subsystem] == nil {
			addrs[cmd.Subsystem] = make(map[uint8]bool)
		}
		addrs[cmd.Subsystem][cmd.ID] = true
	}
	return func(f mt.Frame, _ mt.Values) bool {
		return addrs[f.Subsystem][f.ID]
	}
}

func (d *Driver) handleIndication(frame mt.Frame) {
	cmd, ok := d.cat.ByAddress(frame.Subsystem, frame.ID)
	if !ok {
		return
	}
	vals, err := cmd.DecodeIndication(frame.Data)
	if err != nil {
		d.logger.Warn("znp: failed to decode indication", "command", cmd.Name, "err", err)
		return
	}

	switch cmd.Name {
	case "ZDO.EndDeviceAnnceInd":
		d.events.Emit(Event{Type: EventDeviceAnnounce, Data: AnnounceInfo{
			NWK:          uint16(vals["NWK"].(uint64)),
			IEEE:         vals["IEEE"].(uint64),
			Capabilities: uint8(vals["Capabilities"].(uint64)),
		}})
	case "ZDO.LeaveInd":
		d.events.Emit(Event{Type: EventDeviceLeft, Data: LeaveInfo{
			NWK:    uint16(vals["NWK"].(uint64)),
			IEEE:   vals["IEEE"].(uint64),
			Rejoin: vals["Rejoin"].(bool),
		}})
	case "AF.IncomingMsg":
		d.events.Emit(Event{Type: EventIncomingMsg, Data: IncomingMsg{
			SrcAddr:     uint16(vals["SrcAddr"].(uint64)),
			SrcEndpoint: uint8(vals["SrcEndpoint"].(uint64)),
			DstEndpoint: uint8(vals["DstEndpoint"].(uint64)),
			ClusterID:   uint16(vals["ClusterId"].(uint64)),
			Data:        vals["Data"].([]byte),
		}})
	}
}
