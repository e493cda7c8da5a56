package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"minicorr/internal/protocol"
)

var (
	ErrInvalidInterval  = errors.New("polling interval must be positive")
	ErrIntervalTooShort = errors.New("polling interval below minimum")
	ErrAlreadyRunning   = errors.New("monitoring already running")
	ErrSinkOpen         = errors.New("open sample sink")
)

const (
	DefaultMinInterval = 5 * time.Second
	DefaultSleepFloor  = 100 * time.Millisecond
)

// Commander issues device commands. *protocol.Client satisfies it.
type Commander interface {
	SendCommand(code protocol.Code, args ...string) string
}

// Sample is one poll cycle's outcome. Raw holds the reply or the error text.
type Sample struct {
	TakenAt   time.Time
	Raw       string
	RoundTrip time.Duration
}

// Failed reports whether the cycle produced error text instead of a reading.
func (s Sample) Failed() bool { return protocol.IsError(s.Raw) }

// Sink receives samples. It is owned by the polling task from Start until the
// task exits.
type Sink interface {
	Record(s Sample) error
	Close() error
}

// OpenFunc opens the sink for a new polling session.
type OpenFunc func() (Sink, error)

type Options struct {
	MinInterval time.Duration
	SleepFloor  time.Duration
	// OnError is told about sink write and close failures; they never stop the loop.
	OnError func(error)
}

// PollingSession describes the current (or last) monitoring run.
type PollingSession struct {
	Interval  time.Duration `json:"interval"`
	Active    bool          `json:"active"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Cycles    int64         `json:"cycles"`
	Failures  int64         `json:"failures"`
}

// Poller reads the temperature on a fixed cadence while active.
type Poller struct {
	cmd  Commander
	open OpenFunc
	opts Options

	mu        sync.Mutex
	active    atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	interval  time.Duration
	startedAt time.Time
	cycles    atomic.Int64
	failures  atomic.Int64
}

func New(cmd Commander, open OpenFunc, opts Options) *Poller {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.SleepFloor <= 0 {
		opts.SleepFloor = DefaultSleepFloor
	}
	return &Poller{cmd: cmd, open: open, opts: opts}
}

// ValidateInterval checks interval against the configured minimum. There is
// no upper bound.
func (p *Poller) ValidateInterval(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if interval < p.opts.MinInterval {
		return fmt.Errorf("%w: %v < %v", ErrIntervalTooShort, interval, p.opts.MinInterval)
	}
	return nil
}

// Start opens the sink and spawns the polling task. The task also ends when
// ctx is canceled.
func (p *Poller) Start(ctx context.Context, interval time.Duration) error {
	if err := p.ValidateInterval(interval); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active.Load() {
		return ErrAlreadyRunning
	}
	if p.done != nil {
		<-p.done
	}

	sink, err := p.open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkOpen, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.interval = interval
	p.startedAt = time.Now().UTC()
	p.cycles.Store(0)
	p.failures.Store(0)
	p.active.Store(true)

	go p.run(runCtx, interval, sink, p.done)
	return nil
}

// Stop clears the active flag and waits for the task to finish its current
// cycle and release the sink. Safe to call when idle.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.active.Store(false)
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	done := p.done
	p.mu.Unlock()

	// an in-flight command may take a full reply timeout; Session stays readable
	if done != nil {
		<-done
	}
}

func (p *Poller) Active() bool { return p.active.Load() }

func (p *Poller) Session() PollingSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PollingSession{
		Interval:  p.interval,
		Active:    p.active.Load(),
		StartedAt: p.startedAt,
		Cycles:    p.cycles.Load(),
		Failures:  p.failures.Load(),
	}
}

func (p *Poller) run(ctx context.Context, interval time.Duration, sink Sink, done chan<- struct{}) {
	defer close(done)
	defer func() {
		p.active.Store(false)
		if err := sink.Close(); err != nil {
			p.report(fmt.Errorf("close sample sink: %w", err))
		}
	}()

	for p.active.Load() {
		start := time.Now()
		raw := p.cmd.SendCommand(protocol.ReadTemperature)
		elapsed := time.Since(start)

		s := Sample{TakenAt: time.Now(), Raw: raw, RoundTrip: elapsed}
		p.cycles.Add(1)
		if s.Failed() {
			p.failures.Add(1)
		}
		if err := sink.Record(s); err != nil {
			p.report(fmt.Errorf("record sample: %w", err))
		}

		t := time.NewTimer(nextDelay(interval, elapsed, p.opts.SleepFloor))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (p *Poller) report(err error) {
	if p.opts.OnError != nil {
		p.opts.OnError(err)
	}
}

// nextDelay keeps the cadence near interval while never sleeping less than floor.
func nextDelay(interval, elapsed, floor time.Duration) time.Duration {
	if d := interval - elapsed; d > floor {
		return d
	}
	return floor
}
