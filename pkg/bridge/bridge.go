// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge runs the single-owner loop that feeds serial MIDI bytes
// through a blemidi.Engine and flushes notifications on a periodic tick.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
	"github.com/smallnest/ringbuffer"
)

const (
	// DefaultTickInterval is the flush period before any connection
	// interval is negotiated.
	DefaultTickInterval = 15 * time.Millisecond

	// DefaultRxBufferSize matches a UART driver RX buffer.
	DefaultRxBufferSize = 4096

	// ConnIntervalUnit is the BLE connection interval granularity.
	ConnIntervalUnit = 1250 * time.Microsecond

	readChunk = 256
)

// ErrClosed is returned by producer calls after the loop has stopped.
var ErrClosed = errors.New("bridge closed")

type eventKind uint8

const (
	evData eventKind = iota
	evMTU
	evInterval
	evEOF
)

// event is one entry of the loop's ordered queue. For evData, n bytes were
// written to the RX buffer before the event was queued.
type event struct {
	kind     eventKind
	n        int
	mtu      int
	interval time.Duration
}

const queueSize = 64

// Options configures a Bridge. Zero values select the defaults.
type Options struct {
	MTU           int           // preferred ATT MTU; capacity is MTU-3
	TickInterval  time.Duration // flush period
	RunningStatus bool          // elide repeated channel status inside a packet
	RunningArity  bool          // one data byte per running program change or channel pressure
	RxBufferSize  int           // bytes buffered between producer and loop

	Clock     Clock
	NewTicker func(time.Duration) Ticker
	Logger    *slog.Logger

	// OnPacket is called from the loop for every packet handed to the sink.
	OnPacket func(at time.Time, packet []byte)

	// Connected reports link state for statistics snapshots.
	Connected func() bool
}

// Bridge owns an Engine and serializes every event source onto one loop:
// byte arrival, the flush tick, MTU changes and tick interval changes.
type Bridge struct {
	engine *blemidi.Engine
	sink   blemidi.Transport
	opts   Options
	log    *slog.Logger

	rx      *ringbuffer.RingBuffer
	spaceCh chan struct{}

	// queue carries byte arrivals, MTU changes, interval changes and end of
	// input in the order they happened.
	queue chan event

	eofOnce sync.Once
	eof     chan struct{}
	done    chan struct{}
	running sync.Once

	statsMu sync.Mutex
	stats   blemidi.Statistics
}

// New creates a bridge delivering notifications to sink.
func New(sink blemidi.Transport, opts Options) (*Bridge, error) {
	if opts.MTU == 0 {
		opts.MTU = blemidi.DefaultMTU
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RxBufferSize <= 0 {
		opts.RxBufferSize = DefaultRxBufferSize
	}
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	b := &Bridge{
		sink:    sink,
		opts:    opts,
		log:     opts.Logger,
		rx:      ringbuffer.New(opts.RxBufferSize),
		spaceCh: make(chan struct{}, 1),
		queue:   make(chan event, queueSize),
		eof:     make(chan struct{}),
		done:    make(chan struct{}),
	}

	var engineOpts []blemidi.Option
	if opts.RunningStatus {
		engineOpts = append(engineOpts, blemidi.WithRunningStatus())
	}
	if opts.RunningArity {
		engineOpts = append(engineOpts, blemidi.WithRunningStatusArity())
	}
	engine, err := blemidi.NewEngine(blemidi.TransportFunc(b.send), blemidi.CapacityForMTU(opts.MTU), engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("mtu %d: %w", opts.MTU, err)
	}
	b.engine = engine

	b.stats = *blemidi.NewStatistics()
	b.stats.Capacity = engine.Packetizer().Capacity()
	b.stats.TickInterval = opts.TickInterval
	return b, nil
}

// Write queues raw MIDI bytes for the loop, blocking while the RX buffer is
// full. It is safe to call from one producer goroutine concurrently with Run.
func (b *Bridge) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		select {
		case <-b.done:
			return total, ErrClosed
		case <-b.eof:
			return total, ErrClosed
		default:
		}

		n, err := b.rx.Write(p)
		total += n
		p = p[n:]
		if n > 0 {
			if qerr := b.enqueue(event{kind: evData, n: n}); qerr != nil {
				return total, qerr
			}
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
			return total, fmt.Errorf("rx buffer: %w", err)
		}
		select {
		case <-b.spaceCh:
		case <-b.done:
			return total, ErrClosed
		}
	}
	return total, nil
}

// ReadFrom copies r into the bridge until r is exhausted. It does not close
// the input; call CloseInput once the source is finished.
func (b *Bridge) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, readChunk)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			written, werr := b.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// CloseInput signals the end of the byte source. Run drains what is queued,
// flushes and returns.
func (b *Bridge) CloseInput() {
	b.eofOnce.Do(func() {
		close(b.eof)
		b.enqueue(event{kind: evEOF})
	})
}

// SetMTU signals a negotiated MTU change. It takes effect after every byte
// written before the call.
func (b *Bridge) SetMTU(mtu int) error {
	return b.enqueue(event{kind: evMTU, mtu: mtu})
}

// SetTickInterval re-arms the flush tick.
func (b *Bridge) SetTickInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("invalid tick interval %s", d)
	}
	return b.enqueue(event{kind: evInterval, interval: d})
}

// SetConnInterval sets the tick from a connection interval in 1.25 ms units.
// Zero is ignored.
func (b *Bridge) SetConnInterval(units uint16) error {
	if units == 0 {
		b.log.Debug("ignoring zero connection interval")
		return nil
	}
	return b.SetTickInterval(ConnIntervalFromUnits(units))
}

// ConnIntervalFromUnits converts a connection interval in 1.25 ms units.
func ConnIntervalFromUnits(units uint16) time.Duration {
	return time.Duration(units) * ConnIntervalUnit
}

// Run processes queued events in arrival order until the input is closed or
// ctx is cancelled. On input close it flushes and returns nil. On cancellation buffered
// bytes are abandoned and ctx.Err() is returned. Run may only be called once.
func (b *Bridge) Run(ctx context.Context) error {
	started := false
	b.running.Do(func() { started = true })
	if !started {
		return errors.New("bridge already running")
	}
	defer close(b.done)

	ticker := b.opts.NewTicker(b.opts.TickInterval)
	defer ticker.Stop()

	chunk := make([]byte, readChunk)
	b.log.Info("bridge started",
		"capacity", b.engine.Packetizer().Capacity(),
		"tick", b.opts.TickInterval,
		"running_status", b.opts.RunningStatus)

	for {
		select {
		case <-ctx.Done():
			b.log.Info("bridge stopped", "abandoned", b.engine.Packetizer().Len())
			b.publish()
			return ctx.Err()

		case <-ticker.C():
			b.engine.Flush(blemidi.FlushTick)

		case ev := <-b.queue:
			if b.handle(ev, ticker, chunk) {
				b.publish()
				b.log.Info("input closed, bridge drained")
				return nil
			}
		}
		b.publish()
	}
}

// Stats returns the most recent statistics snapshot.
func (b *Bridge) Stats() blemidi.Statistics {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	s := b.stats
	s.CalculateRates()
	return s
}

// Capacity returns the current packet capacity. Only meaningful from the
// loop or after Run has returned.
func (b *Bridge) Capacity() int {
	return b.engine.Packetizer().Capacity()
}

// Done is closed when Run returns.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// handle applies one queued event and reports whether the input has ended.
func (b *Bridge) handle(ev event, ticker Ticker, chunk []byte) bool {
	switch ev.kind {
	case evData:
		b.consume(ev.n, chunk)
	case evMTU:
		b.reconfigure(ev.mtu)
	case evInterval:
		ticker.Reset(ev.interval)
		b.statsMu.Lock()
		b.stats.TickInterval = ev.interval
		b.statsMu.Unlock()
		b.log.Info("tick interval changed", "interval", ev.interval)
	case evEOF:
		b.engine.Flush(blemidi.FlushDrain)
		return true
	}
	return false
}

// consume feeds n bytes from the RX buffer through the engine, timestamped
// on arrival at the loop.
func (b *Bridge) consume(n int, chunk []byte) {
	ts := blemidi.TimestampFromMillis(b.opts.Clock.Millis())
	for n > 0 {
		want := n
		if want > len(chunk) {
			want = len(chunk)
		}
		got, err := b.rx.Read(chunk[:want])
		if got > 0 {
			notify(b.spaceCh)
			b.engine.Process(chunk[:got], ts)
			n -= got
		}
		if err != nil || got == 0 {
			b.log.Error("rx buffer short read", "missing", n, "error", err)
			return
		}
	}
}

// enqueue adds an event to the loop's queue, blocking while it is full.
func (b *Bridge) enqueue(ev event) error {
	select {
	case b.queue <- ev:
		return nil
	case <-b.done:
		return ErrClosed
	}
}

func (b *Bridge) reconfigure(mtu int) {
	capacity := blemidi.CapacityForMTU(mtu)
	discarded, err := b.engine.Reconfigure(capacity)
	if err != nil {
		b.log.Warn("rejected MTU", "mtu", mtu, "error", err)
		return
	}
	b.log.Info("capacity reconfigured", "mtu", mtu, "capacity", capacity)
	if discarded > 0 {
		b.log.Warn("buffered bytes discarded by reconfiguration", "bytes", discarded)
	}
}

func (b *Bridge) send(packet []byte) error {
	b.log.Debug("notify", "len", len(packet), "bytes", fmt.Sprintf("% X", packet))
	if b.opts.OnPacket != nil {
		b.opts.OnPacket(time.Now(), packet)
	}
	if b.sink == nil {
		return nil
	}
	if err := b.sink.Send(packet); err != nil {
		b.log.Warn("send failed", "len", len(packet), "error", err)
		return err
	}
	return nil
}

func (b *Bridge) publish() {
	c := b.engine.Counters()
	capacity := b.engine.Packetizer().Capacity()

	b.statsMu.Lock()
	b.stats.Update(c, capacity)
	if b.opts.Connected != nil {
		b.stats.Connected = b.opts.Connected()
	}
	b.statsMu.Unlock()
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
