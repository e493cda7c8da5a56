package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"minicorr/internal/controller"
	"minicorr/internal/logger"
	"minicorr/internal/models"
	"minicorr/internal/poller"
	"minicorr/internal/protocol"
	"minicorr/internal/repository"
	"minicorr/internal/sink"
)

const sampleWriteTimeout = 2 * time.Second

// trackingCommander feeds every poll reply into the controller state so the
// last temperature is visible without a separate read.
type trackingCommander struct {
	client DeviceClient
	state  *controller.State
}

func (c trackingCommander) SendCommand(code protocol.Code, args ...string) string {
	resp := c.client.SendCommand(code, args...)
	c.state.Apply(protocol.NewCommand(code, args...), resp)
	if c.state.Connected() && !c.client.Connected() {
		c.state.SetConnected(false, "", 0)
	}
	return resp
}

type MonitoringService struct {
	poller    *poller.Poller
	journal   *Journal
	samples   repository.SampleRepo
	extra     []poller.Sink
	sampleDir string
	base      context.Context
	states    *stateStore
	log       *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	filePath string
}

// MonitoringOptions configure NewMonitoringService.
type MonitoringOptions struct {
	Poller    poller.Options
	SampleDir string
	// Sinks receive every sample in addition to the file and the sample table.
	// Their Close is called when each session ends.
	Sinks []poller.Sink
	// Base outlives request contexts; canceling it ends the session.
	Base context.Context
}

func NewMonitoringService(client DeviceClient, state *controller.State, journal *Journal,
	samples repository.SampleRepo, states *stateStore, log *logger.Logger, opts MonitoringOptions) *MonitoringService {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Base == nil {
		opts.Base = context.Background()
	}
	m := &MonitoringService{
		journal:   journal,
		samples:   samples,
		extra:     opts.Sinks,
		sampleDir: opts.SampleDir,
		base:      opts.Base,
		states:    states,
		log:       log,
		now:       time.Now,
	}
	po := opts.Poller
	po.OnError = func(err error) { log.Warnw("sample_sink_error", "err", err) }
	m.poller = poller.New(trackingCommander{client: client, state: state}, m.openSinks, po)
	return m
}

func (m *MonitoringService) openSinks() (poller.Sink, error) {
	f, err := sink.OpenSampleFile(m.sampleDir, m.now())
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.filePath = f.Path()
	m.mu.Unlock()

	tee := sink.Tee{f, sink.Func(m.reportFailure)}
	if m.samples != nil {
		tee = append(tee, sink.Func(m.storeSample))
	}
	return append(tee, m.extra...), nil
}

func (m *MonitoringService) storeSample(s poller.Sample) error {
	ctx, cancel := context.WithTimeout(m.base, sampleWriteTimeout)
	defer cancel()
	_, err := m.samples.Insert(ctx, toSampleModel(s))
	return err
}

func (m *MonitoringService) reportFailure(s poller.Sample) error {
	if s.Failed() {
		m.journal.Record(m.base, models.EventError, "monitoring: "+s.Raw, nil)
	}
	return nil
}

func toSampleModel(s poller.Sample) models.TemperatureSample {
	out := models.TemperatureSample{TakenAt: s.TakenAt, Raw: s.Raw}
	if !s.Failed() {
		if v, err := controller.ParseTemperature(s.Raw); err == nil {
			out.Value = &v
		}
	}
	return out
}

// Start begins a monitoring session. The interval is checked against the
// configured minimum; failing to open the sample file aborts the start.
func (m *MonitoringService) Start(ctx context.Context, interval time.Duration) error {
	if err := m.poller.Start(m.base, interval); err != nil {
		m.journal.Record(ctx, models.EventError, "monitoring not started: "+err.Error(), nil)
		return err
	}
	m.mu.Lock()
	path := m.filePath
	m.mu.Unlock()

	m.journal.Record(ctx, models.EventMonitoring,
		fmt.Sprintf("monitoring started, interval %v, samples in %s", interval, path),
		map[string]any{"interval_s": interval.Seconds(), "file": path})
	m.states.save(ctx)
	return nil
}

// Stop ends the session and waits until the sample sinks are released.
func (m *MonitoringService) Stop(ctx context.Context) {
	if !m.poller.Active() {
		return
	}
	m.poller.Stop()
	sess := m.poller.Session()
	m.journal.Record(ctx, models.EventMonitoring,
		fmt.Sprintf("monitoring stopped after %d samples (%d failed)", sess.Cycles, sess.Failures), nil)
	m.states.save(ctx)
}

func (m *MonitoringService) ValidateInterval(interval time.Duration) error {
	return m.poller.ValidateInterval(interval)
}

func (m *MonitoringService) Session() poller.PollingSession {
	return m.poller.Session()
}

func (m *MonitoringService) Active() bool {
	return m.poller.Active()
}

// SampleFile returns the file of the current or last session.
func (m *MonitoringService) SampleFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filePath
}
