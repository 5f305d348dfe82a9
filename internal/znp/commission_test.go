package znp

import (
	"context"
	"testing"
	"time"

	"tizigbee/internal/mt"
)

// TestStartFormsNetworkWithExplicitIdentity drives Start through the full
// forming path (prepareForForming's soft reset, writeNetworkIdentity, BDB
// commissioning, and the coordinator-started wait), asserting the caller's
// explicit PAN ID actually reaches NVRAM instead of being silently dropped.
func TestStartFormsNetworkWithExplicitIdentity(t *testing.T) {
	d, fake := openTestDriver(t)
	defer d.Close()

	var gotPANID []byte

	// Every legacy item this path touches (three cleared markers, the
	// startup option, and the five network-identity items) reads as
	// absent, so every write goes through the create-then-write branch.
	fake.on(mt.SYS, 0x13, func(mt.Frame) mt.Frame {
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.SYS, ID: 0x13, Data: []byte{0, 0}}
	})
	fake.on(mt.SYS, 0x07, func(mt.Frame) mt.Frame { // OSALNVItemInit
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.SYS, ID: 0x07, Data: []byte{0}}
	})
	fake.on(mt.SYS, 0x1D, func(req mt.Frame) mt.Frame { // OSALNVWriteExt
		// Id(u16) Offset(u16) Value(len-prefixed) — IDPANID is 0x0083.
		if req.Data[0] == 0x83 && req.Data[1] == 0x00 {
			n := int(req.Data[4])
			gotPANID = append([]byte(nil), req.Data[5:5+n]...)
		}
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.SYS, ID: 0x1D, Data: []byte{0}}
	})
	fake.on(mt.SYS, 0x00, func(mt.Frame) mt.Frame { // SYS.ResetReq -> SYS.ResetInd
		return mt.Frame{Type: mt.AREQ, Subsystem: mt.SYS, ID: 0x80, Data: []byte{0, 2, 1, 2, 7, 1}}
	})
	fake.on(mt.AF, 0x00, func(mt.Frame) mt.Frame { // AF.Register
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.AF, ID: 0x00, Data: []byte{0}}
	})
	fake.on(mt.APPConf, 0x08, func(mt.Frame) mt.Frame { // BDBSetChannel
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.APPConf, ID: 0x08, Data: []byte{0}}
	})
	fake.on(mt.APPConf, 0x05, func(mt.Frame) mt.Frame { // BDBStartCommissioning
		go func() {
			time.Sleep(10 * time.Millisecond)
			fake.push(mt.Frame{Type: mt.AREQ, Subsystem: mt.APPConf, ID: 0x80, Data: []byte{0x00, 0x04, 0x00}})
			// Delayed well past registerEndpoint's round trip so awaitRunning
			// has already subscribed before this indication is broadcast.
			time.Sleep(60 * time.Millisecond)
			fake.push(mt.Frame{Type: mt.AREQ, Subsystem: mt.ZDO, ID: 0xC0, Data: []byte{0x09}})
		}()
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.APPConf, ID: 0x05, Data: []byte{0}}
	})
	fake.on(mt.UTIL, 0x00, func(mt.Frame) mt.Frame { // UTIL.GetDeviceInfo
		return mt.Frame{
			Type: mt.SRSP, Subsystem: mt.UTIL, ID: 0x00,
			Data: []byte{0x00, 1, 2, 3, 4, 5, 6, 7, 8, 0x34, 0x12, 0x00, 0x09},
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	opts := StartOptions{
		Mode: ModeForm,
		Network: NetworkConfig{
			Channel: 1 << 15,
			PANID:   0xBEEF,
		},
		Timeout: time.Second,
	}
	if err := d.Start(ctx, opts); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.State() != StateRunning {
		t.Fatalf("state = %v, want StateRunning", d.State())
	}
	if len(gotPANID) != 2 || gotPANID[0] != 0xEF || gotPANID[1] != 0xBE {
		t.Fatalf("PAN ID written = %v, want [0xEF 0xBE] (0xBEEF little-endian)", gotPANID)
	}
}
