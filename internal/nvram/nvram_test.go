package nvram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"tizigbee/internal/mt"
	"tizigbee/internal/mtbus"
	"tizigbee/internal/zerr"
)

// scriptedZNP answers each incoming SREQ with the next scripted response
// frame, letting the test drive the manager's request/response exchanges
// without a real coprocessor.
type scriptedZNP struct {
	toBus   *io.PipeWriter
	fromBus *io.PipeReader
	replies chan func(mt.Frame) mt.Frame
}

func newScriptedZNP(t *testing.T) (*mtbus.Bus, *scriptedZNP) {
	t.Helper()
	r, w := io.Pipe()   // bus reads from r, test writes replies via w
	rr, ww := io.Pipe() // bus writes requests via ww, test reads from rr

	tr := &loopTransport{r: r, w: ww}
	bus := mtbus.New(tr, mt.DefaultCatalogue, slog.New(slog.NewTextHandler(io.Discard, nil)), mtbus.Config{})

	s := &scriptedZNP{toBus: w, fromBus: rr, replies: make(chan func(mt.Frame) mt.Frame, 64)}

	go s.run(t)

	return bus, s
}

type loopTransport struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (l *loopTransport) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *loopTransport) Write(p []byte) (int, error) { return l.w.Write(p) }

// run decodes each request the bus sends and replies with the next scripted
// handler, if any.
func (s *scriptedZNP) run(t *testing.T) {
	dec := mt.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := s.fromBus.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			res := dec.Parse(buf[i])
			if res.Frame == nil {
				continue
			}
			var handler func(mt.Frame) mt.Frame
			select {
			case handler = <-s.replies:
			default:
				t.Errorf("unscripted request: %s", res.Frame.String())
				continue
			}
			reply := handler(*res.Frame)
			out, err := mt.EncodeFrame(reply)
			if err != nil {
				t.Errorf("encode scripted reply: %v", err)
				continue
			}
			if _, err := s.toBus.Write(out); err != nil {
				return
			}
		}
	}
}

// expect queues a canned SRSP for the next request, keyed only by response
// data since the test always knows what it's about to send.
func (s *scriptedZNP) expect(sub mt.Subsystem, id uint8, data []byte) {
	s.replies <- func(mt.Frame) mt.Frame {
		return mt.Frame{Type: mt.SRSP, Subsystem: sub, ID: id, Data: data}
	}
}

func TestReadLegacyChunksAcrossReadExt(t *testing.T) {
	bus, znp := newScriptedZNP(t)
	defer bus.Close()

	mgr := New(bus, mt.DefaultCatalogue, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)

	znp.expect(mt.SYS, 0x13, []byte{8, 0}) // OSALNVLength -> ItemLen=8
	znp.expect(mt.SYS, 0x1C, append([]byte{0x00}, append([]byte{4}, []byte{1, 2, 3, 4}...)...))
	znp.expect(mt.SYS, 0x1C, append([]byte{0x00}, append([]byte{4}, []byte{5, 6, 7, 8}...)...))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	value, err := mgr.ReadLegacy(ctx, IDExtAddr)
	if err != nil {
		t.Fatalf("ReadLegacy: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if len(value) != len(want) {
		t.Fatalf("value = %v, want %v", value, want)
	}
	for i := range want {
		if value[i] != want[i] {
			t.Fatalf("value = %v, want %v", value, want)
		}
	}
}

func TestReadLegacyMissingItemReturnsNotFound(t *testing.T) {
	bus, znp := newScriptedZNP(t)
	defer bus.Close()

	mgr := New(bus, mt.DefaultCatalogue, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	znp.expect(mt.SYS, 0x13, []byte{0, 0}) // ItemLen=0

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := mgr.ReadLegacy(ctx, IDExtAddr)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRestoreResetsWritesThenVerifiesReadback(t *testing.T) {
	bus, znp := newScriptedZNP(t)
	defer bus.Close()

	mgr := New(bus, mt.DefaultCatalogue, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)

	snap := &Snapshot{Items: map[LegacyID]Item{
		IDPANID: {Present: true, Value: []byte{0x62, 0x1A}},
	}}

	znp.replies <- func(mt.Frame) mt.Frame { // SYS.ResetInd (an AREQ) answers the soft reset
		return mt.Frame{Type: mt.AREQ, Subsystem: mt.SYS, ID: 0x80, Data: []byte{0, 2, 1, 2, 7, 1}}
	}
	znp.expect(mt.SYS, 0x13, []byte{2, 0}) // OSALNVLength during write: already sized
	znp.expect(mt.SYS, 0x1D, []byte{0})    // OSALNVWriteExt succeeds
	znp.expect(mt.SYS, 0x13, []byte{2, 0}) // OSALNVLength during verify readback
	znp.expect(mt.SYS, 0x1C, []byte{0x00, 0x02, 0x62, 0x1A})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := mgr.Restore(ctx, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
}

func TestRestoreReturnsNvramMismatchOnReadbackDiff(t *testing.T) {
	bus, znp := newScriptedZNP(t)
	defer bus.Close()

	mgr := New(bus, mt.DefaultCatalogue, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)

	snap := &Snapshot{Items: map[LegacyID]Item{
		IDPANID: {Present: true, Value: []byte{0x62, 0x1A}},
	}}

	znp.replies <- func(mt.Frame) mt.Frame {
		return mt.Frame{Type: mt.AREQ, Subsystem: mt.SYS, ID: 0x80, Data: []byte{0, 2, 1, 2, 7, 1}}
	}
	znp.expect(mt.SYS, 0x13, []byte{2, 0})
	znp.expect(mt.SYS, 0x1D, []byte{0})
	znp.expect(mt.SYS, 0x13, []byte{2, 0})
	znp.expect(mt.SYS, 0x1C, []byte{0x00, 0x02, 0xAA, 0xBB}) // written back, but firmware returns different bytes

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := mgr.Restore(ctx, snap)
	var zerrErr *zerr.Error
	if !errors.As(err, &zerrErr) || zerrErr.Kind != zerr.NvramMismatch {
		t.Fatalf("err = %v, want zerr.NvramMismatch", err)
	}
}

func TestBackupRecordsAbsentItemsWithoutFailing(t *testing.T) {
	bus, znp := newScriptedZNP(t)
	defer bus.Close()

	mgr := New(bus, mt.DefaultCatalogue, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	znp.expect(mt.SYS, 0x13, []byte{0, 0}) // IDExtAddr absent

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	snap, err := mgr.Backup(ctx, []LegacyID{IDExtAddr}, nil)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if snap.Items[IDExtAddr].Present {
		t.Fatal("expected IDExtAddr to be recorded as absent")
	}
}
