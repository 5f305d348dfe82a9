package znp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"tizigbee/internal/mt"
	"tizigbee/internal/nvram"
	"tizigbee/internal/zerr"
)

// STARTUP_OPTION bits Z-Stack inspects on the next boot after a soft reset.
const (
	startupOptionClearConfig = 0x01
	startupOptionClearState  = 0x02
)

const resetTypeSoft = 1

// Mode selects which of the three commissioning paths Start takes.
type Mode int

const (
	// ModeAuto inspects NVRAM's commissioning-completed markers and joins
	// the previously-formed network if one exists, otherwise forms a new
	// one.
	ModeAuto Mode = iota
	ModeForm
	ModeRestore
)

// NetworkConfig is the network identity to form or to expect when
// rejoining, per §6's external configuration surface.
type NetworkConfig struct {
	Channel        uint32 // bitmask, e.g. 1<<15 for channel 15
	PANID          uint16
	ExtendedPANID  uint64
	NetworkKey     [16]byte
	PermitDuration time.Duration
}

// StartOptions configures Start.
type StartOptions struct {
	Mode           Mode
	Network        NetworkConfig
	RestoreSnapsot *nvram.Snapshot
	Timeout        time.Duration // per-command timeout, default 10s
}

func (o StartOptions) withDefaults() StartOptions {
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// Start brings the coordinator onto a network: it registers the
// coordinator's AF endpoint, decides between forming a new network or
// restoring/joining a previously-configured one, and blocks until
// ZDO.StateChangeInd reports StartedAsCoordinator or Timeout elapses.
func (d *Driver) Start(ctx context.Context, opts StartOptions) error {
	if err := d.requireState(StateConfiguring); err != nil {
		return err
	}
	opts = opts.withDefaults()

	// Mode detection reads the commissioning-completed markers, so it must
	// happen before forming clears them.
	mode := opts.Mode
	if mode == ModeAuto {
		mode = d.detectPreviousCommissioning(ctx)
	}

	switch mode {
	case ModeRestore:
		d.setState(StateRestoring)
		if opts.RestoreSnapsot != nil {
			if err := d.nv.Restore(ctx, opts.RestoreSnapsot); err != nil {
				d.setState(StateFailed)
				return fmt.Errorf("znp: restore snapshot: %w", err)
			}
		}
		if err := d.registerEndpoint(ctx, opts.Timeout); err != nil {
			d.setState(StateFailed)
			return err
		}
		if err := d.startupFromApp(ctx, opts.Timeout); err != nil {
			d.setState(StateFailed)
			return err
		}
	default:
		d.setState(StateForming)
		if err := d.formNetwork(ctx, opts.Network, opts.Timeout); err != nil {
			d.setState(StateFailed)
			return err
		}
		if err := d.registerEndpoint(ctx, opts.Timeout); err != nil {
			d.setState(StateFailed)
			return err
		}
	}

	if err := d.awaitRunning(ctx, opts.Timeout); err != nil {
		d.setState(StateFailed)
		return err
	}

	info, err := d.bus.Request(ctx, d.cmd("UTIL.GetDeviceInfo"), mt.Values{}, opts.Timeout)
	if err == nil {
		d.mu.Lock()
		d.ieee = info["IEEE"].(uint64)
		d.nwk = uint16(info["NWK"].(uint64))
		d.mu.Unlock()
	}

	d.setState(StateRunning)
	return nil
}

func (d *Driver) registerEndpoint(ctx context.Context, timeout time.Duration) error {
	vals := mt.Values{
		"Endpoint":       uint64(coordinatorEndpoint),
		"ProfileId":      uint64(0x0104), // Home Automation
		"DeviceId":       uint64(0x0005), // Combined interface
		"LatencyReq":     uint64(0),
		"InputClusters":  []mt.Values{},
		"OutputClusters": []mt.Values{},
	}
	_, err := d.bus.Request(ctx, d.cmd("AF.Register"), vals, timeout)
	if err != nil {
		return fmt.Errorf("znp: register endpoint: %w", err)
	}
	return nil
}

// detectPreviousCommissioning reads the commissioning-completed markers a
// prior run would have left behind; their presence means the coprocessor
// already has network state to resume rather than form fresh.
func (d *Driver) detectPreviousCommissioning(ctx context.Context) Mode {
	for _, id := range []nvram.LegacyID{nvram.IDHasConfiguredZStack1, nvram.IDHasConfiguredZStack3} {
		if _, err := d.nv.ReadLegacy(ctx, id); err == nil {
			return ModeRestore
		}
	}
	return ModeForm
}

// formNetwork puts NVRAM into a known state for a fresh network (clearing
// stale commissioning markers, soft-resetting, then writing the network
// identity — picking random values for anything the caller left zero), then
// drives Base Device Behaviour commissioning to create the network on
// Z-Stack 3.0 and later, or ZDO.StartupFromApp with a fresh NIB on 1.2.
func (d *Driver) formNetwork(ctx context.Context, net NetworkConfig, timeout time.Duration) error {
	if err := d.prepareForForming(ctx, timeout); err != nil {
		return err
	}
	if err := d.writeNetworkIdentity(ctx, net); err != nil {
		return err
	}

	if d.Version().ZStack == ZStack12 {
		return d.startupFromApp(ctx, timeout)
	}

	if _, err := d.bus.Request(ctx, d.cmd("APPConfig.BDBSetChannel"), mt.Values{
		"IsPrimary": true, "Channel": uint64(net.Channel),
	}, timeout); err != nil {
		return fmt.Errorf("znp: set channel: %w", err)
	}

	matcher := onCommissioningNotification(d.cat)
	const bdbModeFormNetwork = 0x04
	_, err := d.bus.RequestCallback(ctx, d.cmd("APPConfig.BDBStartCommissioning"), mt.Values{
		"Mode": uint64(bdbModeFormNetwork),
	}, matcher, timeout)
	if err != nil {
		return fmt.Errorf("znp: form network: %w", err)
	}
	return nil
}

// prepareForForming clears the commissioning-completed markers, instructs
// Z-Stack to clear its network state and config on the next boot, and
// soft-resets to reach that known state, mirroring write_network_info's
// reset-before-write sequence.
func (d *Driver) prepareForForming(ctx context.Context, timeout time.Duration) error {
	for _, id := range []nvram.LegacyID{nvram.IDHasConfiguredZStack1, nvram.IDHasConfiguredZStack3, nvram.IDBDBNodeIsOnANetwork} {
		if _, err := d.nv.DeleteLegacy(ctx, id); err != nil && !errors.Is(err, nvram.ErrNotFound) {
			return fmt.Errorf("znp: clear commissioning marker: %w", err)
		}
	}
	if err := d.nv.WriteLegacy(ctx, nvram.IDStartupOption, []byte{startupOptionClearConfig | startupOptionClearState}, true); err != nil {
		return fmt.Errorf("znp: set startup option: %w", err)
	}
	if err := d.softReset(ctx, timeout); err != nil {
		return err
	}
	return nil
}

// writeNetworkIdentity writes the PAN, extended PAN, and network key NVRAM
// items forming needs, randomising any field the caller left at its zero
// value rather than silently ignoring an explicit choice.
func (d *Driver) writeNetworkIdentity(ctx context.Context, net NetworkConfig) error {
	panID := net.PANID
	if panID == 0 {
		id, err := randomPANID()
		if err != nil {
			return fmt.Errorf("znp: generate PAN ID: %w", err)
		}
		panID = id
	}
	extPANID := net.ExtendedPANID
	if extPANID == 0 {
		id, err := randomExtendedPANID()
		if err != nil {
			return fmt.Errorf("znp: generate extended PAN ID: %w", err)
		}
		extPANID = id
	}
	key := net.NetworkKey
	if key == ([16]byte{}) {
		if err := randomNetworkKey(&key); err != nil {
			return fmt.Errorf("znp: generate network key: %w", err)
		}
	}

	panBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(panBytes, panID)
	extBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(extBytes, extPANID)
	chanBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(chanBytes, net.Channel)

	writes := []struct {
		id    nvram.LegacyID
		value []byte
	}{
		{nvram.IDPANID, panBytes},
		{nvram.IDExtendedPANID, extBytes},
		{nvram.IDPrecfgKey, key[:]},
		{nvram.IDPrecfgKeysEnable, []byte{1}},
		{nvram.IDChanList, chanBytes},
	}
	for _, w := range writes {
		if err := d.nv.WriteLegacy(ctx, w.id, w.value, true); err != nil {
			return fmt.Errorf("znp: write network identity: %w", err)
		}
	}
	return nil
}

func randomPANID() (uint16, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	// 0x0000 and 0xFFFF are both reserved sentinel values, same as
	// internal/config's validation of an explicitly configured PAN ID.
	id := binary.LittleEndian.Uint16(buf[:])
	if id == 0x0000 || id == 0xFFFF {
		id = 0x1234
	}
	return id, nil
}

func randomExtendedPANID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func randomNetworkKey(key *[16]byte) error {
	_, err := rand.Read(key[:])
	return err
}

// softReset issues SYS.ResetReq and waits for the coprocessor's
// SYS.ResetInd, registering the wait before sending per the bus's
// request-then-indication law so a fast reboot can't race the subscription.
func (d *Driver) softReset(ctx context.Context, timeout time.Duration) error {
	stream := d.bus.Subscribe(onResetInd(d.cat), false)
	defer stream.Close()

	if err := d.bus.Send(d.cmd("SYS.ResetReq"), mt.Values{"Type": uint64(resetTypeSoft)}); err != nil {
		return fmt.Errorf("znp: soft reset: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-stream.Frames():
		return nil
	case <-stream.Done():
		return zerr.New(zerr.Disconnected, "SYS.ResetInd")
	case <-timer.C:
		return zerr.New(zerr.Timeout, "SYS.ResetInd")
	case <-ctx.Done():
		return zerr.New(zerr.Cancelled, "SYS.ResetInd")
	}
}

func (d *Driver) startupFromApp(ctx context.Context, timeout time.Duration) error {
	_, err := d.bus.Request(ctx, d.cmd("ZDO.StartupFromApp"), mt.Values{"StartDelay": uint64(0)}, timeout)
	if err != nil {
		return fmt.Errorf("znp: startup from app: %w", err)
	}
	return nil
}

// awaitRunning blocks for the ZDO.StateChangeInd that reports the
// coprocessor has finished starting as coordinator.
func (d *Driver) awaitRunning(ctx context.Context, timeout time.Duration) error {
	const deviceStateStartedAsCoordinator = 0x09

	stateChange, _ := d.cat.ByName("ZDO.StateChangeInd")
	matcher := func(f mt.Frame, v mt.Values) bool {
		if f.Subsystem != stateChange.Subsystem || f.ID != stateChange.ID {
			return false
		}
		state, ok := v["State"]
		return ok && state.(uint64) == deviceStateStartedAsCoordinator
	}

	_, err := d.bus.WaitFor(ctx, matcher, timeout)
	if err != nil {
		return fmt.Errorf("znp: wait for coordinator start: %w", err)
	}
	return nil
}
