package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"minicorr/internal/controller"
	"minicorr/internal/models"
	"minicorr/internal/poller"
	"minicorr/internal/protocol"
)

type recordingSink struct {
	mu      sync.Mutex
	samples []poller.Sample
	closed  int
}

func (r *recordingSink) Record(s poller.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type monitoringFixture struct {
	svc     *MonitoringService
	client  *fakeClient
	events  *fakeEventRepo
	samples *fakeSampleRepo
	extra   *recordingSink
	state   *controller.State
	dir     string
}

func newMonitoringFixture(t *testing.T, dir string) *monitoringFixture {
	t.Helper()
	f := &monitoringFixture{
		client:  &fakeClient{replies: map[protocol.Code]string{protocol.ReadTemperature: "23.4"}},
		events:  &fakeEventRepo{},
		samples: &fakeSampleRepo{},
		extra:   &recordingSink{},
		state:   controller.NewState(),
		dir:     dir,
	}
	journal := NewJournal(nil, f.events, t.TempDir())
	f.svc = NewMonitoringService(f.client, f.state, journal, f.samples, nil, nil, MonitoringOptions{
		Poller:    poller.Options{MinInterval: 10 * time.Millisecond, SleepFloor: 5 * time.Millisecond},
		SampleDir: dir,
		Sinks:     []poller.Sink{f.extra},
	})
	t.Cleanup(func() { f.svc.Stop(context.Background()) })
	return f
}

func TestMonitoringService_SamplesReachEverySink(t *testing.T) {
	f := newMonitoringFixture(t, t.TempDir())
	f.client.connected = true
	f.state.SetConnected(true, "10.0.0.1", 5100)
	ctx := context.Background()

	if err := f.svc.Start(ctx, 20*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "two samples", func() bool { return f.extra.count() >= 2 })
	f.svc.Stop(ctx)

	if f.svc.Active() {
		t.Fatalf("still active after Stop")
	}
	if f.extra.closed != 1 {
		t.Fatalf("extra sink closed %d times", f.extra.closed)
	}

	path := f.svc.SampleFile()
	if filepath.Dir(path) != f.dir || !strings.HasSuffix(path, "_temperature.csv") {
		t.Fatalf("unexpected sample file %q", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read samples: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) < 2 || !strings.HasSuffix(lines[0], ",23.4") {
		t.Fatalf("sample file = %q", b)
	}

	stored := f.samples.all()
	if len(stored) < 2 || stored[0].Value == nil || *stored[0].Value != 23.4 {
		t.Fatalf("stored samples = %+v", stored)
	}

	snap := f.state.Snapshot()
	if snap.TemperatureC == nil || *snap.TemperatureC != 23.4 {
		t.Fatalf("poll replies must update the state: %+v", snap)
	}

	mon := f.events.ofType(models.EventMonitoring)
	if len(mon) != 2 {
		t.Fatalf("monitoring events = %+v", mon)
	}
	if !strings.HasPrefix(mon[0].Message, "monitoring started, interval 20ms, samples in ") {
		t.Fatalf("start message = %q", mon[0].Message)
	}
	if !strings.HasPrefix(mon[1].Message, "monitoring stopped after ") {
		t.Fatalf("stop message = %q", mon[1].Message)
	}
}

func TestMonitoringService_FailedSamplesAreJournaled(t *testing.T) {
	f := newMonitoringFixture(t, t.TempDir())

	if err := f.svc.Start(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "a failed sample", func() bool { return len(f.events.ofType(models.EventError)) > 0 })
	f.svc.Stop(context.Background())

	errs := f.events.ofType(models.EventError)
	if errs[0].Message != "monitoring: "+protocol.NotConnected {
		t.Fatalf("error event = %q", errs[0].Message)
	}
	stored := f.samples.all()
	if len(stored) == 0 || stored[0].Value != nil || stored[0].Raw != protocol.NotConnected {
		t.Fatalf("failed samples must be stored without a value: %+v", stored)
	}
	if sess := f.svc.Session(); sess.Failures == 0 || sess.Failures != sess.Cycles {
		t.Fatalf("session = %+v", sess)
	}
}

func TestMonitoringService_StartRejections(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(notDir, nil, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cases := []struct {
		name     string
		dir      string
		interval time.Duration
		want     error
	}{
		{"below minimum", "", 5 * time.Millisecond, poller.ErrIntervalTooShort},
		{"zero", "", 0, poller.ErrInvalidInterval},
		{"sample file unavailable", notDir, 20 * time.Millisecond, poller.ErrSinkOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := tc.dir
			if dir == "" {
				dir = t.TempDir()
			}
			f := newMonitoringFixture(t, dir)
			err := f.svc.Start(context.Background(), tc.interval)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v; want %v", err, tc.want)
			}
			if f.svc.Active() {
				t.Fatalf("must not be active")
			}
			if len(f.events.ofType(models.EventError)) != 1 {
				t.Fatalf("rejection not journaled")
			}
		})
	}
}

func TestMonitoringService_DoubleStart(t *testing.T) {
	f := newMonitoringFixture(t, t.TempDir())
	ctx := context.Background()
	if err := f.svc.Start(ctx, time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.svc.Start(ctx, time.Second); !errors.Is(err, poller.ErrAlreadyRunning) {
		t.Fatalf("err = %v", err)
	}
}

func TestMonitoringService_StopWhenIdle(t *testing.T) {
	f := newMonitoringFixture(t, t.TempDir())
	f.svc.Stop(context.Background())
	if len(f.events.appended) != 0 {
		t.Fatalf("idle stop must not journal: %q", f.events.messages())
	}
}

func TestToSampleModel(t *testing.T) {
	now := time.Now()
	ok := toSampleModel(poller.Sample{TakenAt: now, Raw: "T=21,5C"})
	if ok.Value == nil || *ok.Value != 21.5 {
		t.Fatalf("value = %v", ok.Value)
	}
	garbled := toSampleModel(poller.Sample{TakenAt: now, Raw: "sensor fault"})
	if garbled.Value != nil || garbled.Raw != "sensor fault" {
		t.Fatalf("garbled = %+v", garbled)
	}
}
