package service

import (
	"context"
	"time"

	"minicorr/internal/controller"
	"minicorr/internal/logger"
	"minicorr/internal/models"
	"minicorr/internal/poller"
	"minicorr/internal/repository"
)

// Device exposes session control and the device commands.
type Device interface {
	Connect(ctx context.Context, host string, port int) (string, error)
	Disconnect(ctx context.Context)
	Relay(ctx context.Context, on bool) CommandResult
	ReadTemperature(ctx context.Context) CommandResult
	SetFanMode(ctx context.Context, mode controller.FanMode) CommandResult
	Fan(ctx context.Context, on bool) (CommandResult, error)
	SetThresholds(ctx context.Context, low, high string) (CommandResult, error)
	ReadThresholds(ctx context.Context) CommandResult
	SetNetwork(ctx context.Context, ip, gateway string) (CommandResult, error)
	Raw(ctx context.Context, code int, args []string) (CommandResult, error)
	Snapshot() controller.Snapshot
}

// Monitoring runs the periodic temperature poll.
type Monitoring interface {
	Start(ctx context.Context, interval time.Duration) error
	Stop(ctx context.Context)
	Session() poller.PollingSession
	SampleFile() string
}

// EventLog exposes the journal history and the event log file switch.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.DeviceEvent, error)
	StartFile(ctx context.Context) (string, error)
	StopFile(ctx context.Context) error
	FileStatus() LoggingStatus
}

// Samples exposes stored temperature samples.
type Samples interface {
	List(ctx context.Context, f SampleFilter) ([]models.TemperatureSample, error)
}

// Service aggregates all sub-services.
type Service struct {
	Device
	Monitoring
	EventLog
	Samples

	states *stateStore
}

// Options carry the non-repository dependencies of NewService.
type Options struct {
	Monitoring MonitoringOptions
	LogDir     string
	Logger     *logger.Logger
}

// NewService wires the repository layer and the device client into concrete services.
func NewService(repos *repository.Repository, client DeviceClient, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	state := controller.NewState()
	journal := NewJournal(log, repos.EventRepo, opts.LogDir)
	states := &stateStore{repo: repos.StateRepo, state: state, log: log, logging: journal.Status}

	mon := NewMonitoringService(client, state, journal, repos.SampleRepo, states, log, opts.Monitoring)
	states.session = mon.Session

	return &Service{
		Device:     NewDeviceService(client, state, journal, states),
		Monitoring: mon,
		EventLog:   NewEventLogService(repos.EventRepo, journal, states),
		Samples:    NewSampleService(repos.SampleRepo),
		states:     states,
	}
}

// Restore seeds fan mode and thresholds from the last saved state.
func (s *Service) Restore(ctx context.Context) error {
	return s.states.restore(ctx)
}

// Overview is the combined status pushed to clients.
type Overview struct {
	Device     controller.Snapshot   `json:"device"`
	Monitoring poller.PollingSession `json:"monitoring"`
	SampleFile string                `json:"sample_file,omitempty"`
	Logging    LoggingStatus         `json:"logging"`
}

func (s *Service) Overview() Overview {
	return Overview{
		Device:     s.Device.Snapshot(),
		Monitoring: s.Monitoring.Session(),
		SampleFile: s.Monitoring.SampleFile(),
		Logging:    s.EventLog.FileStatus(),
	}
}

// Shutdown stops monitoring, closes the event log file and drops the session.
func (s *Service) Shutdown(ctx context.Context) {
	s.Monitoring.Stop(ctx)
	_ = s.EventLog.StopFile(ctx)
	s.Device.Disconnect(ctx)
}
