package znp

import (
	"context"
	"fmt"
	"time"

	"tizigbee/internal/mt"
)

const (
	addrModeBroadcast   = 0x0F
	broadcastAllDevices = 0xFFFC
)

// PermitJoin opens or closes the network to new joins for duration,
// authoritatively tracking the remaining time itself rather than trusting
// the coprocessor to report it, since ZDO.MgmtPermitJoinReq does not.
// A duration of 0 closes joining immediately; 0xFF seconds worth of
// duration (255s) means "permit indefinitely" per the ZDO wire semantics.
func (d *Driver) PermitJoin(ctx context.Context, duration time.Duration, timeout time.Duration) error {
	if err := d.requireState(StateRunning); err != nil {
		return err
	}

	seconds := uint64(duration / time.Second)
	if seconds > 0xFE {
		seconds = 0xFF // 0xFF is the wire sentinel for "forever"
	}

	vals := mt.Values{
		"AddrMode":       uint64(addrModeBroadcast),
		"Dst":            uint64(broadcastAllDevices),
		"Duration":       seconds,
		"TCSignificance": uint64(1),
	}
	_, err := d.bus.Request(ctx, d.cmd("ZDO.MgmtPermitJoinReq"), vals, timeout)
	if err != nil {
		return fmt.Errorf("znp: permit join: %w", err)
	}

	d.permitMu.Lock()
	if seconds == 0 {
		d.permitUntil = time.Time{}
	} else if seconds == 0xFF {
		d.permitUntil = time.Now().Add(365 * 24 * time.Hour)
	} else {
		d.permitUntil = time.Now().Add(time.Duration(seconds) * time.Second)
	}
	d.permitMu.Unlock()

	d.events.Emit(Event{Type: EventPermitJoin, Data: seconds})
	return nil
}

// PermitJoinRemaining reports how much longer the network accepts joins,
// based on the duration this driver itself requested rather than any
// coprocessor-reported value.
func (d *Driver) PermitJoinRemaining() time.Duration {
	d.permitMu.Lock()
	defer d.permitMu.Unlock()
	remaining := time.Until(d.permitUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}
