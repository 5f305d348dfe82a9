// Package mtbus implements the command multiplexer (C4): it owns the frame
// codec's read side, serialises SREQs onto a single-slot lane, correlates
// replies with pending requests, and fans indications out to subscribers.
package mtbus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tizigbee/internal/mt"
	"tizigbee/internal/zerr"
)

// Transport is the byte-stream duplex the bus reads and writes. It is
// satisfied by *serialport.Port and by test loopbacks alike.
type Transport interface {
	io.Reader
	io.Writer
}

// State is the bus's coarse connection state.
type State int32

const (
	StateConnected State = iota
	StateDisconnected
)

type sreqWaiter struct {
	cmd     *mt.Command
	replyCh chan waiterResult
}

type waiterResult struct {
	values mt.Values
	err    error
}

type callbackWaiter struct {
	matcher Matcher
	replyCh chan waiterResult
}

type subscription struct {
	id      uint64
	matcher Matcher
	ch      chan mt.Frame
	dropCh  chan mt.Frame // non-nil when the subscription is drop-on-overflow
	dropped atomic.Uint64

	done      chan struct{} // closed instead of ch, so broadcast never sends on a closed channel
	closeOnce sync.Once
}

// stop unblocks any broadcast currently waiting to deliver to this
// subscription. Safe to call more than once and concurrently with broadcast.
func (s *subscription) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Bus is the MT command multiplexer described by C4.
type Bus struct {
	cat       *mt.Catalogue
	transport Transport
	logger    *slog.Logger

	writeCh chan writeReq

	sreqLane   sync.Mutex // held for the duration of one in-flight SREQ
	sreqMu     sync.Mutex // guards sreq below
	sreq       *sreqWaiter

	cbMu      sync.Mutex
	callbacks []*callbackWaiter

	subMu   sync.Mutex
	subs    map[uint64]*subscription
	nextSub uint64

	state         atomic.Int32
	framingErrors atomic.Uint64

	watchdogInterval time.Duration
	watchdogMaxMiss  int

	closeOnce  sync.Once
	closed     chan struct{}
	wg         sync.WaitGroup // writer and watchdog
	readerDone chan struct{}
}

type writeReq struct {
	frame mt.Frame
	errCh chan error
}

// Config controls the bus's watchdog cadence. Request timeouts are passed
// per call instead.
type Config struct {
	WatchdogInterval time.Duration // 0 disables the watchdog
	WatchdogMaxMiss  int           // consecutive missed pings before Disconnected
}

// New starts the bus's reader and writer tasks over transport and returns
// immediately; call Close to stop them.
func New(transport Transport, cat *mt.Catalogue, logger *slog.Logger, cfg Config) *Bus {
	if cfg.WatchdogMaxMiss == 0 {
		cfg.WatchdogMaxMiss = 3
	}
	b := &Bus{
		cat:              cat,
		transport:        transport,
		logger:           logger,
		writeCh:          make(chan writeReq, 16),
		subs:             make(map[uint64]*subscription),
		watchdogInterval: cfg.WatchdogInterval,
		watchdogMaxMiss:  cfg.WatchdogMaxMiss,
		closed:           make(chan struct{}),
		readerDone:       make(chan struct{}),
	}

	b.wg.Add(1)
	go b.writerLoop()
	go b.readerLoop()

	if b.watchdogInterval > 0 {
		b.wg.Add(1)
		go b.watchdogLoop()
	}

	return b
}

// State reports whether the bus is still usable.
func (b *Bus) State() State { return State(b.state.Load()) }

// FramingErrors returns the running count of dropped frames, whether for a
// bad FCS or a LEN over mt.MaxPayload, per the codec-recovery testable
// property.
func (b *Bus) FramingErrors() uint64 { return b.framingErrors.Load() }

// writerLoop is the mandatory writer task: it is the only goroutine that
// calls transport.Write, so frame atomicity on the wire is guaranteed
// regardless of how many callers are concurrently calling Request/Send.
func (b *Bus) writerLoop() {
	defer b.wg.Done()
	for {
		select {
		case req := <-b.writeCh:
			buf, err := mt.EncodeFrame(req.frame)
			if err == nil {
				_, err = b.transport.Write(buf)
			}
			if err != nil {
				b.fail(zerr.Wrap(zerr.TransportIO, req.frame.String(), err))
			}
			if req.errCh != nil {
				req.errCh <- err
			}
		case <-b.closed:
			return
		}
	}
}

// readerLoop is the mandatory reader task: it owns the decoder and is the
// only goroutine that calls transport.Read, dispatching each frame as soon
// as it is decoded.
func (b *Bus) readerLoop() {
	defer close(b.readerDone)
	dec := mt.NewDecoder()
	buf := make([]byte, 512)

	for {
		n, err := b.transport.Read(buf)
		if err != nil {
			b.fail(zerr.Wrap(zerr.Disconnected, "", err))
			return
		}
		for i := 0; i < n; i++ {
			r := dec.Parse(buf[i])
			if r.FramingErr {
				b.framingErrors.Add(1)
				b.logger.Warn("mt: dropped frame with bad length or FCS")
			}
			if r.Frame != nil {
				b.dispatch(*r.Frame)
			}
		}
	}
}

// dispatch routes one decoded frame per the C4 scheduling rules: SRSP goes
// to the head of the SREQ lane, AREQ goes first to a matching callback
// waiter and then broadcasts to subscribers.
func (b *Bus) dispatch(frame mt.Frame) {
	cmd, known := b.cat.ByAddress(frame.Subsystem, frame.ID)

	var vals mt.Values
	var decodeErr error
	if known {
		if frame.Type == mt.SRSP {
			vals, decodeErr = cmd.DecodeResponse(frame.Data)
		} else {
			vals, decodeErr = cmd.DecodeIndication(frame.Data)
		}
		if decodeErr != nil {
			b.logger.Warn("mt: field decode error", "command", cmd.Name, "err", decodeErr)
		}
	}

	switch frame.Type {
	case mt.SRSP:
		b.dispatchSRSP(frame, cmd, vals, decodeErr)
	case mt.AREQ:
		b.dispatchAREQ(frame, vals)
	default:
		b.logger.Debug("mt: ignoring frame of type", "type", frame.Type)
	}
}

func (b *Bus) dispatchSRSP(frame mt.Frame, cmd *mt.Command, vals mt.Values, decodeErr error) {
	b.sreqMu.Lock()
	w := b.sreq
	if w == nil {
		b.sreqMu.Unlock()
		// Open question, resolved: log and discard, no crash, no waiter.
		b.logger.Warn("mt: unsolicited SRSP with no head waiter", "frame", frame.String())
		return
	}
	if cmd == nil || w.cmd.Subsystem != frame.Subsystem || w.cmd.ID != frame.ID {
		b.sreqMu.Unlock()
		b.logger.Warn("mt: SRSP mismatch, treated as protocol error", "want", w.cmd.Name, "got", frame.String())
		w.replyCh <- waiterResult{err: zerr.New(zerr.ProtocolUnexpectedSRSP, w.cmd.Name).WithFrame(frame.Data)}
		return
	}
	b.sreq = nil
	b.sreqMu.Unlock()

	if decodeErr != nil {
		w.replyCh <- waiterResult{err: zerr.Wrap(zerr.ProtocolFieldDecode, cmd.Name, decodeErr)}
		return
	}
	w.replyCh <- waiterResult{values: vals}
}

func (b *Bus) dispatchAREQ(frame mt.Frame, vals mt.Values) {
	if b.dispatchToCallback(frame, vals) {
		return
	}
	b.broadcast(frame, vals)
}

func (b *Bus) dispatchToCallback(frame mt.Frame, vals mt.Values) bool {
	b.cbMu.Lock()
	for i, w := range b.callbacks {
		if w.matcher(frame, vals) {
			b.callbacks = append(b.callbacks[:i], b.callbacks[i+1:]...)
			b.cbMu.Unlock()
			w.replyCh <- waiterResult{values: vals}
			return true
		}
	}
	b.cbMu.Unlock()
	return false
}

func (b *Bus) broadcast(frame mt.Frame, vals mt.Values) {
	b.subMu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matcher(frame, vals) {
			subs = append(subs, s)
		}
	}
	b.subMu.Unlock()

	for _, s := range subs {
		if s.dropCh != nil {
			select {
			case s.ch <- frame:
			default:
				s.dropped.Add(1)
			}
		} else {
			// Blocks the reader loop by design (default backpressure), but
			// never against a channel that fail/Stream.Close might close
			// concurrently: s.done unblocks the send instead of s.ch ever
			// being closed.
			select {
			case s.ch <- frame:
			case <-s.done:
			}
		}
	}
}

// fail is called exactly once, on the first fatal transport error, to move
// the bus into Disconnected and unblock every waiter.
func (b *Bus) fail(err *zerr.Error) {
	if !b.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return
	}
	b.logger.Error("mt: bus disconnected", "err", err)

	b.sreqMu.Lock()
	if b.sreq != nil {
		b.sreq.replyCh <- waiterResult{err: err}
		b.sreq = nil
	}
	b.sreqMu.Unlock()

	b.cbMu.Lock()
	for _, w := range b.callbacks {
		w.replyCh <- waiterResult{err: err}
	}
	b.callbacks = nil
	b.cbMu.Unlock()

	b.subMu.Lock()
	for _, s := range b.subs {
		s.stop()
	}
	b.subs = nil
	b.subMu.Unlock()

	b.closeOnce.Do(func() { close(b.closed) })
}

// Close tears the bus down as if the transport had failed, then waits for
// the writer and watchdog tasks to exit, and for the reader too when the
// transport implements io.Closer. A transport without Close cannot unblock
// a pending Read, so the reader then exits only once that Read returns.
func (b *Bus) Close() error {
	b.fail(zerr.New(zerr.Disconnected, "closed by caller"))
	err := b.transportClose()
	b.wg.Wait()
	if _, ok := b.transport.(io.Closer); ok {
		<-b.readerDone
	}
	return err
}

func (b *Bus) transportClose() error {
	if c, ok := b.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Request performs a synchronous request/response exchange (SREQ/SRSP),
// enforcing the single-slot lane invariant I1: a new SREQ is not written
// until the previous one's SRSP arrived or it timed out or was cancelled.
func (b *Bus) Request(ctx context.Context, cmd *mt.Command, vals mt.Values, timeout time.Duration) (mt.Values, error) {
	if b.State() != StateConnected {
		return nil, zerr.New(zerr.Disconnected, cmd.Name)
	}
	if cmd.ReqType != mt.SREQ {
		return nil, fmt.Errorf("mtbus: %s is not an SREQ command", cmd.Name)
	}

	b.sreqLane.Lock()
	defer b.sreqLane.Unlock()

	frame, err := cmd.EncodeRequest(vals)
	if err != nil {
		return nil, zerr.Wrap(zerr.ProtocolFieldDecode, cmd.Name, err)
	}

	w := &sreqWaiter{cmd: cmd, replyCh: make(chan waiterResult, 1)}
	b.sreqMu.Lock()
	b.sreq = w
	b.sreqMu.Unlock()

	// Hand the frame to the writer without waiting for the write itself, so
	// the timeout below also bounds a stalled write. A write error fails the
	// bus, which delivers that error to this waiter.
	select {
	case b.writeCh <- writeReq{frame: frame}:
	case <-b.closed:
		b.sreqMu.Lock()
		b.sreq = nil
		b.sreqMu.Unlock()
		return nil, zerr.New(zerr.Disconnected, cmd.Name)
	}

	return b.awaitSREQ(ctx, w, cmd, timeout)
}

func (b *Bus) awaitSREQ(ctx context.Context, w *sreqWaiter, cmd *mt.Command, timeout time.Duration) (mt.Values, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.replyCh:
		return res.values, res.err
	case <-timer.C:
		// The lane is not released until the SRSP arrives or this fires,
		// which it just did: clear the slot ourselves.
		b.sreqMu.Lock()
		if b.sreq == w {
			b.sreq = nil
		}
		b.sreqMu.Unlock()
		return nil, zerr.New(zerr.Timeout, cmd.Name)
	case <-ctx.Done():
		b.sreqMu.Lock()
		if b.sreq == w {
			b.sreq = nil
		}
		b.sreqMu.Unlock()
		return nil, zerr.New(zerr.Cancelled, cmd.Name)
	}
}

func (b *Bus) enqueueWrite(frame mt.Frame) error {
	errCh := make(chan error, 1)
	select {
	case b.writeCh <- writeReq{frame: frame, errCh: errCh}:
	case <-b.closed:
		return zerr.New(zerr.Disconnected, frame.String())
	}
	select {
	case err := <-errCh:
		return err
	case <-b.closed:
		return zerr.New(zerr.Disconnected, frame.String())
	}
}

// Send fires an AREQ frame without waiting for anything.
func (b *Bus) Send(cmd *mt.Command, vals mt.Values) error {
	if b.State() != StateConnected {
		return zerr.New(zerr.Disconnected, cmd.Name)
	}
	frame, err := cmd.EncodeRequest(vals)
	if err != nil {
		return zerr.Wrap(zerr.ProtocolFieldDecode, cmd.Name, err)
	}
	return b.enqueueWrite(frame)
}

// RequestCallback sends cmd as an SREQ and then waits for an AREQ matching
// matcher — the request+indication pattern used throughout ZDO and AF (e.g.
// AF.DataRequest -> AF.DataConfirm matched on TSN). The callback waiter is
// registered before the SREQ is sent, so a matching indication that arrives
// before the SRSP is still delivered correctly (a bus law from §8).
func (b *Bus) RequestCallback(ctx context.Context, cmd *mt.Command, vals mt.Values, matcher Matcher, timeout time.Duration) (mt.Values, error) {
	cbw := &callbackWaiter{matcher: matcher, replyCh: make(chan waiterResult, 1)}
	b.cbMu.Lock()
	b.callbacks = append(b.callbacks, cbw)
	b.cbMu.Unlock()

	cancelCallback := func() {
		b.cbMu.Lock()
		for i, w := range b.callbacks {
			if w == cbw {
				b.callbacks = append(b.callbacks[:i], b.callbacks[i+1:]...)
				break
			}
		}
		b.cbMu.Unlock()
	}

	srsp, err := b.Request(ctx, cmd, vals, timeout)
	if err != nil {
		cancelCallback()
		return nil, err
	}
	// A submit status of anything but success (e.g. NWK_TABLE_FULL under
	// backpressure) means the firmware never queued the request, so no
	// confirm indication is coming; waiting for one would just time out.
	if status, ok := srsp["Status"]; ok && status.(uint64) != 0 {
		cancelCallback()
		return nil, zerr.New(zerr.CommandStatus, cmd.Name)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-cbw.replyCh:
		return res.values, res.err
	case <-timer.C:
		cancelCallback()
		return nil, zerr.New(zerr.Timeout, cmd.Name+" callback")
	case <-ctx.Done():
		cancelCallback()
		return nil, zerr.New(zerr.Cancelled, cmd.Name+" callback")
	}
}

// Stream is a live feed of matching AREQ frames from Subscribe.
type Stream struct {
	bus  *Bus
	id   uint64
	ch   chan mt.Frame
	done chan struct{}
}

// Frames returns the channel to range over. It is never closed; watch Done
// alongside it to notice when the bus has disconnected or the stream has
// been closed.
func (s *Stream) Frames() <-chan mt.Frame { return s.ch }

// Done reports when the stream will deliver no further frames, either
// because the bus disconnected or because Close was called.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Dropped reports how many frames were discarded because the subscriber was
// slow, for drop-on-overflow subscriptions; always 0 otherwise.
func (s *Stream) Dropped() uint64 {
	s.bus.subMu.Lock()
	defer s.bus.subMu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Close unsubscribes.
func (s *Stream) Close() {
	s.bus.subMu.Lock()
	sub, ok := s.bus.subs[s.id]
	delete(s.bus.subs, s.id)
	s.bus.subMu.Unlock()
	if ok {
		sub.stop()
	}
}

// Subscribe registers a streaming listener for every AREQ frame matching
// matcher, delivered in wire order. When dropOnOverflow is false (the
// default), a slow subscriber blocks the reader loop; when true, frames the
// subscriber can't keep up with are discarded and counted.
func (b *Bus) Subscribe(matcher Matcher, dropOnOverflow bool) *Stream {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	id := b.nextSub
	b.nextSub++

	sub := &subscription{id: id, matcher: matcher, ch: make(chan mt.Frame, 1), done: make(chan struct{})}
	if dropOnOverflow {
		sub.ch = make(chan mt.Frame, 32)
		sub.dropCh = sub.ch
	}
	if b.subs == nil {
		b.subs = make(map[uint64]*subscription)
	}
	b.subs[id] = sub

	if b.State() != StateConnected {
		sub.stop()
	}

	return &Stream{bus: b, id: id, ch: sub.ch, done: sub.done}
}

// WaitFor blocks for a single frame matching matcher, or until timeout.
func (b *Bus) WaitFor(ctx context.Context, matcher Matcher, timeout time.Duration) (mt.Frame, error) {
	s := b.Subscribe(matcher, false)
	defer s.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-s.Frames():
		return f, nil
	case <-s.Done():
		return mt.Frame{}, zerr.New(zerr.Disconnected, "")
	case <-timer.C:
		return mt.Frame{}, zerr.New(zerr.Timeout, "")
	case <-ctx.Done():
		return mt.Frame{}, zerr.New(zerr.Cancelled, "")
	}
}

func (b *Bus) watchdogLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.watchdogInterval)
	defer ticker.Stop()

	ping, ok := b.cat.ByName("SYS.Ping")
	if !ok {
		return
	}

	misses := 0
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), b.watchdogInterval)
			_, err := b.Request(ctx, ping, mt.Values{}, b.watchdogInterval)
			cancel()
			if err != nil {
				misses++
				b.logger.Warn("mt: watchdog ping failed", "consecutive_misses", misses, "err", err)
				if misses >= b.watchdogMaxMiss {
					b.fail(zerr.New(zerr.Disconnected, "watchdog"))
					return
				}
			} else {
				misses = 0
			}
		case <-b.closed:
			return
		}
	}
}
