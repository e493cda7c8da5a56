package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"minicorr/internal/protocol"
)

// ---- Test doubles ----

type stubCommander struct {
	delay time.Duration
	calls atomic.Int64
	reply func(n int64) string
}

func (s *stubCommander) SendCommand(code protocol.Code, _ ...string) string {
	n := s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if code != protocol.ReadTemperature {
		return protocol.ErrorMarker + "unexpected code"
	}
	if s.reply != nil {
		return s.reply(n)
	}
	return "23.4"
}

type memSink struct {
	mu      sync.Mutex
	samples []Sample
	closed  bool
	err     error
}

func (m *memSink) Record(s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return m.err
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memSink) snapshot() ([]Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out, m.closed
}

func openMem(s *memSink) OpenFunc {
	return func() (Sink, error) { return s, nil }
}

func waitForSamples(t *testing.T, s *memSink, n int, within time.Duration) []Sample {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if got, _ := s.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := s.snapshot()
	t.Fatalf("want %d samples within %v, got %d", n, within, len(got))
	return nil
}

// ---- Tests ----

func TestNextDelay(t *testing.T) {
	t.Parallel()

	floor := 100 * time.Millisecond
	cases := []struct {
		name              string
		interval, elapsed time.Duration
		want              time.Duration
	}{
		{"fast reply keeps cadence", 10 * time.Second, 200 * time.Millisecond, 9800 * time.Millisecond},
		{"instant reply", 6 * time.Second, 0, 6 * time.Second},
		{"slow reply hits floor", 6 * time.Second, 6 * time.Second, floor},
		{"reply slower than interval", 6 * time.Second, 9 * time.Second, floor},
		{"just above floor", 6 * time.Second, 5850 * time.Millisecond, 150 * time.Millisecond},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := nextDelay(tc.interval, tc.elapsed, floor); got != tc.want {
				t.Fatalf("nextDelay = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestValidateInterval(t *testing.T) {
	t.Parallel()

	p := New(&stubCommander{}, openMem(&memSink{}), Options{})
	cases := []struct {
		in   time.Duration
		want error
	}{
		{0, ErrInvalidInterval},
		{-time.Second, ErrInvalidInterval},
		{4 * time.Second, ErrIntervalTooShort},
		{5 * time.Second, nil},
		{20 * time.Second, nil},
		{10 * time.Minute, nil},
	}
	for _, tc := range cases {
		if err := p.ValidateInterval(tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("ValidateInterval(%v) = %v; want %v", tc.in, err, tc.want)
		}
	}
}

func TestStart_SinkOpenFailureIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	cmd := &stubCommander{}
	p := New(cmd, func() (Sink, error) { return nil, boom }, Options{MinInterval: time.Millisecond})

	err := p.Start(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, ErrSinkOpen) || !errors.Is(err, boom) {
		t.Fatalf("expected sink open error, got %v", err)
	}
	if p.Active() {
		t.Fatalf("poller must stay idle")
	}
	time.Sleep(20 * time.Millisecond)
	if cmd.calls.Load() != 0 {
		t.Fatalf("no command should be issued")
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	sink := &memSink{}
	p := New(&stubCommander{}, openMem(sink), Options{MinInterval: time.Millisecond})
	if err := p.Start(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestPoller_ErrorsDoNotStopLoop(t *testing.T) {
	cmd := &stubCommander{reply: func(n int64) string {
		if n <= 3 {
			return protocol.NotConnected
		}
		return "23.4"
	}}
	sink := &memSink{}
	p := New(cmd, openMem(sink), Options{MinInterval: time.Millisecond, SleepFloor: time.Millisecond})

	if err := p.Start(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := waitForSamples(t, sink, 5, 2*time.Second)

	if !p.Active() {
		t.Fatalf("poller stopped after failed cycles")
	}
	for i := 0; i < 3; i++ {
		if got[i].Raw != protocol.NotConnected || !got[i].Failed() {
			t.Fatalf("sample %d = %+v; want raw error text", i, got[i])
		}
	}
	if got[3].Raw != "23.4" || got[3].Failed() {
		t.Fatalf("sample 3 = %+v", got[3])
	}
	p.Stop()

	sess := p.Session()
	if sess.Failures != 3 || sess.Cycles < 5 {
		t.Fatalf("unexpected session counters: %+v", sess)
	}
}

func TestPoller_SinkWriteErrorsAreReported(t *testing.T) {
	var reported atomic.Int64
	sink := &memSink{err: errors.New("write failed")}
	p := New(&stubCommander{}, openMem(sink), Options{
		MinInterval: time.Millisecond,
		SleepFloor:  time.Millisecond,
		OnError:     func(error) { reported.Add(1) },
	})
	if err := p.Start(context.Background(), 2*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForSamples(t, sink, 3, 2*time.Second)
	if !p.Active() {
		t.Fatalf("sink errors must not stop the loop")
	}
	p.Stop()
	if reported.Load() < 3 {
		t.Fatalf("expected sink errors to be reported, got %d", reported.Load())
	}
}

func TestPoller_CadenceFollowsInterval(t *testing.T) {
	const interval = 60 * time.Millisecond
	cmd := &stubCommander{delay: 10 * time.Millisecond}
	sink := &memSink{}
	p := New(cmd, openMem(sink), Options{MinInterval: time.Millisecond, SleepFloor: 5 * time.Millisecond})

	if err := p.Start(context.Background(), interval); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := waitForSamples(t, sink, 4, 3*time.Second)
	p.Stop()

	for i := 1; i < 4; i++ {
		period := got[i].TakenAt.Sub(got[i-1].TakenAt)
		if period < interval-10*time.Millisecond || period > interval+50*time.Millisecond {
			t.Fatalf("period %d = %v; want about %v", i, period, interval)
		}
	}
}

func TestPoller_SlowPeerSleepsFloor(t *testing.T) {
	const floor = 20 * time.Millisecond
	cmd := &stubCommander{delay: 30 * time.Millisecond}
	sink := &memSink{}
	p := New(cmd, openMem(sink), Options{MinInterval: time.Millisecond, SleepFloor: floor})

	if err := p.Start(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := waitForSamples(t, sink, 4, 3*time.Second)
	p.Stop()

	for i := 1; i < 4; i++ {
		period := got[i].TakenAt.Sub(got[i-1].TakenAt)
		// round trip + floor; the floor is never skipped
		if period < cmd.delay+floor-5*time.Millisecond {
			t.Fatalf("period %d = %v; expected at least round trip + floor", i, period)
		}
	}
}

func TestPoller_StopReleasesSinkPromptly(t *testing.T) {
	sink := &memSink{}
	cmd := &stubCommander{}
	p := New(cmd, openMem(sink), Options{MinInterval: time.Millisecond})

	if err := p.Start(context.Background(), time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForSamples(t, sink, 1, time.Second)

	start := time.Now()
	p.Stop()
	if time.Since(start) > time.Second {
		t.Fatalf("Stop took %v", time.Since(start))
	}
	if _, closed := sink.snapshot(); !closed {
		t.Fatalf("sink not closed on stop")
	}
	if p.Active() {
		t.Fatalf("poller still active")
	}

	n := cmd.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if cmd.calls.Load() != n {
		t.Fatalf("commands issued after stop")
	}
	p.Stop()
}

func TestPoller_ContextCancelEndsSession(t *testing.T) {
	sink := &memSink{}
	p := New(&stubCommander{}, openMem(sink), Options{MinInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForSamples(t, sink, 1, time.Second)
	cancel()

	deadline := time.Now().Add(time.Second)
	for p.Active() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Active() {
		t.Fatalf("poller still active after cancel")
	}

	// restart after the task ended on its own
	sink2 := &memSink{}
	p.open = openMem(sink2)
	if err := p.Start(context.Background(), time.Hour); err != nil {
		t.Fatalf("restart: %v", err)
	}
	p.Stop()
	if _, closed := sink.snapshot(); !closed {
		t.Fatalf("first sink not closed")
	}
}

func TestPoller_SessionReadableWhileStopWaits(t *testing.T) {
	sink := &memSink{}
	cmd := &stubCommander{delay: 300 * time.Millisecond}
	p := New(cmd, openMem(sink), Options{MinInterval: time.Millisecond})

	if err := p.Start(context.Background(), time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for cmd.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	s := p.Session()
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("Session blocked %v behind Stop", d)
	}
	if s.Active {
		t.Fatalf("session still active after Stop began")
	}

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}
	if _, closed := sink.snapshot(); !closed {
		t.Fatalf("sink not closed")
	}
}
