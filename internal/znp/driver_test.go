package znp

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"tizigbee/internal/mt"
	"tizigbee/internal/mtbus"
	"tizigbee/internal/nvram"
)

// fakeZNP answers requests by (subsystem, id) with a canned response frame,
// and can push arbitrary indications into the stream asynchronously.
type fakeZNP struct {
	toBus   *io.PipeWriter
	fromBus *io.PipeReader
	t       *testing.T

	handlers map[mt.Subsystem]map[uint8]func(mt.Frame) mt.Frame
}

type loopTransport struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (l *loopTransport) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *loopTransport) Write(p []byte) (int, error) { return l.w.Write(p) }

func newFakeZNP(t *testing.T) (mtbus.Transport, *fakeZNP) {
	t.Helper()
	r, w := io.Pipe()
	rr, ww := io.Pipe()

	f := &fakeZNP{
		toBus:    w,
		fromBus:  rr,
		t:        t,
		handlers: make(map[mt.Subsystem]map[uint8]func(mt.Frame) mt.Frame),
	}
	go f.run()
	return &loopTransport{r: r, w: ww}, f
}

func (f *fakeZNP) on(sub mt.Subsystem, id uint8, handler func(mt.Frame) mt.Frame) {
	if f.handlers[sub] == nil {
		f.handlers[sub] = make(map[uint8]func(mt.Frame) mt.Frame)
	}
	f.handlers[sub][id] = handler
}

func (f *fakeZNP) push(frame mt.Frame) {
	buf, err := mt.EncodeFrame(frame)
	if err != nil {
		f.t.Fatalf("encode pushed frame: %v", err)
	}
	f.toBus.Write(buf)
}

func (f *fakeZNP) run() {
	dec := mt.NewDecoder()
	buf := make([]byte, 512)
	for {
		n, err := f.fromBus.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			res := dec.Parse(buf[i])
			if res.Frame == nil {
				continue
			}
			h := f.handlers[res.Frame.Subsystem][res.Frame.ID]
			if h == nil {
				continue
			}
			f.push(h(*res.Frame))
		}
	}
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// openTestDriver opens a Driver against a fakeZNP wired to answer the
// bring-up probe (SYS.Ping, SYS.Version) as Z-Stack 3.0 (no TCLK_TABLE).
func openTestDriver(t *testing.T) (*Driver, *fakeZNP) {
	t.Helper()

	transport, fake := newFakeZNP(t)
	fake.on(mt.SYS, 0x01, func(mt.Frame) mt.Frame {
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.SYS, ID: 0x01, Data: []byte{0x65, 0x00}}
	})
	fake.on(mt.SYS, 0x02, func(mt.Frame) mt.Frame {
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.SYS, ID: 0x02, Data: []byte{2, 1, 2, 7, 1}}
	})
	fake.on(mt.SYS, 0x32, func(mt.Frame) mt.Frame { // NVLength for TCLK_TABLE probe -> absent
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.SYS, ID: 0x32, Data: []byte{0, 0, 0, 0}}
	})

	d, err := openWithTransport(t, transport)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d, fake
}

// openWithTransport builds a Driver directly over a fake transport,
// bypassing serialport.Open since we have no real UART in tests.
func openWithTransport(t *testing.T, transport mtbus.Transport) (*Driver, error) {
	t.Helper()

	bus := mtbus.New(transport, mt.DefaultCatalogue, testLogger(), mtbus.Config{})
	d := &Driver{
		bus:    bus,
		cat:    mt.DefaultCatalogue,
		logger: testLogger(),
		events: newEventBus(testLogger()),
		state:  StateDisconnected,
		sem:    make(chan struct{}, 8),
	}
	d.setState(StateProbing)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := d.probe(ctx, time.Second); err != nil {
		d.setState(StateFailed)
		return nil, err
	}

	d.nv = nvram.New(bus, mt.DefaultCatalogue, testLogger(), d.capabilities)
	d.subscribeIndications()
	d.setState(StateConfiguring)
	return d, nil
}

func TestProbeDetectsVersionAndCapabilities(t *testing.T) {
	d, _ := openTestDriver(t)
	defer d.Close()

	v := d.Version()
	if v.MajorRel != 2 {
		t.Errorf("MajorRel = %d, want 2", v.MajorRel)
	}
	if v.ZStack != ZStack3x0 {
		t.Errorf("ZStack = %v, want ZStack3x0", v.ZStack)
	}
	if d.capabilities != 0x0065 {
		t.Errorf("capabilities = %#x, want 0x65", d.capabilities)
	}
}

func TestPermitJoinTracksRemainingDuration(t *testing.T) {
	d, fake := openTestDriver(t)
	defer d.Close()
	d.setState(StateForming)
	d.setState(StateRunning)

	fake.on(mt.ZDO, 0x36, func(mt.Frame) mt.Frame {
		return mt.Frame{Type: mt.SRSP, Subsystem: mt.ZDO, ID: 0x36, Data: []byte{0x00}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := d.PermitJoin(ctx, 60*time.Second, time.Second); err != nil {
		t.Fatalf("PermitJoin: %v", err)
	}
	remaining := d.PermitJoinRemaining()
	if remaining <= 0 || remaining > 60*time.Second {
		t.Errorf("remaining = %v, want (0, 60s]", remaining)
	}
}

func TestDeviceAnnouncePublishesEvent(t *testing.T) {
	d, fake := openTestDriver(t)
	defer d.Close()

	got := make(chan AnnounceInfo, 1)
	d.Events().On(EventDeviceAnnounce, func(ev Event) {
		got <- ev.Data.(AnnounceInfo)
	})

	fake.push(mt.Frame{
		Type: mt.AREQ, Subsystem: mt.ZDO, ID: 0xC1,
		Data: []byte{0x34, 0x12, 0x34, 0x12, 1, 2, 3, 4, 5, 6, 7, 8, 0x80},
	})

	select {
	case info := <-got:
		if info.NWK != 0x1234 {
			t.Errorf("NWK = %#x, want 0x1234", info.NWK)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for device announce event")
	}
}
