package handlers

import (
	"context"
	"time"

	"minicorr/internal/controller"
	"minicorr/internal/models"
	"minicorr/internal/poller"
	"minicorr/internal/protocol"
	"minicorr/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockDevice struct {
	snap       controller.Snapshot
	welcome    string
	connectErr error
	result     service.CommandResult
	err        error

	lastHost string
	lastPort int
	lastMode controller.FanMode
	lastOn   *bool
	lastLow  string
	lastHigh string
	lastIP   string
	lastGW   string
	lastCode int
	lastArgs []string
	calls    []string
	disconns int
}

func (m *mockDevice) Connect(_ context.Context, host string, port int) (string, error) {
	m.calls = append(m.calls, "connect")
	m.lastHost, m.lastPort = host, port
	return m.welcome, m.connectErr
}

func (m *mockDevice) Disconnect(context.Context) {
	m.calls = append(m.calls, "disconnect")
	m.disconns++
}

func (m *mockDevice) Relay(_ context.Context, on bool) service.CommandResult {
	m.calls = append(m.calls, "relay")
	m.lastOn = &on
	return m.result
}

func (m *mockDevice) ReadTemperature(context.Context) service.CommandResult {
	m.calls = append(m.calls, "temperature")
	return m.result
}

func (m *mockDevice) SetFanMode(_ context.Context, mode controller.FanMode) service.CommandResult {
	m.calls = append(m.calls, "fan_mode")
	m.lastMode = mode
	return m.result
}

func (m *mockDevice) Fan(_ context.Context, on bool) (service.CommandResult, error) {
	m.calls = append(m.calls, "fan")
	m.lastOn = &on
	return m.result, m.err
}

func (m *mockDevice) SetThresholds(_ context.Context, low, high string) (service.CommandResult, error) {
	m.calls = append(m.calls, "set_thresholds")
	m.lastLow, m.lastHigh = low, high
	return m.result, m.err
}

func (m *mockDevice) ReadThresholds(context.Context) service.CommandResult {
	m.calls = append(m.calls, "read_thresholds")
	return m.result
}

func (m *mockDevice) SetNetwork(_ context.Context, ip, gateway string) (service.CommandResult, error) {
	m.calls = append(m.calls, "network")
	m.lastIP, m.lastGW = ip, gateway
	return m.result, m.err
}

func (m *mockDevice) Raw(_ context.Context, code int, args []string) (service.CommandResult, error) {
	m.calls = append(m.calls, "raw")
	m.lastCode, m.lastArgs = code, args
	return m.result, m.err
}

func (m *mockDevice) Snapshot() controller.Snapshot { return m.snap }

type mockMonitoring struct {
	session  poller.PollingSession
	file     string
	startErr error

	lastInterval time.Duration
	starts       int
	stops        int
}

func (m *mockMonitoring) Start(_ context.Context, interval time.Duration) error {
	m.starts++
	m.lastInterval = interval
	return m.startErr
}

func (m *mockMonitoring) Stop(context.Context) { m.stops++ }

func (m *mockMonitoring) Session() poller.PollingSession { return m.session }

func (m *mockMonitoring) SampleFile() string { return m.file }

type mockEventLog struct {
	resp     []models.DeviceEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string

	status   service.LoggingStatus
	startErr error
	stopErr  error
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.DeviceEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

func (m *mockEventLog) StartFile(context.Context) (string, error) {
	if m.startErr != nil {
		return "", m.startErr
	}
	m.status = service.LoggingStatus{Active: true, Path: "logs/20250101_000000_logfile.txt"}
	return m.status.Path, nil
}

func (m *mockEventLog) StopFile(context.Context) error {
	if m.stopErr != nil {
		return m.stopErr
	}
	m.status = service.LoggingStatus{}
	return nil
}

func (m *mockEventLog) FileStatus() service.LoggingStatus { return m.status }

type mockSamples struct {
	resp       []models.TemperatureSample
	err        error
	lastFilter service.SampleFilter
}

func (m *mockSamples) List(_ context.Context, f service.SampleFilter) ([]models.TemperatureSample, error) {
	m.lastFilter = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

var testDefaults = Defaults{Host: "192.168.0.100", Port: 5100, MonitoringInterval: 20 * time.Second}

type mocks struct {
	device  *mockDevice
	mon     *mockMonitoring
	logs    *mockEventLog
	samples *mockSamples
}

func newMocks() *mocks {
	return &mocks{
		device:  &mockDevice{result: service.CommandResult{Code: 3, Command: "3", Response: "23.4"}},
		mon:     &mockMonitoring{},
		logs:    &mockEventLog{},
		samples: &mockSamples{},
	}
}

func (m *mocks) service() *service.Service {
	return &service.Service{Device: m.device, Monitoring: m.mon, EventLog: m.logs, Samples: m.samples}
}

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, testDefaults)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func notConnectedResult(code protocol.Code) service.CommandResult {
	return service.CommandResult{Code: int(code), Command: protocol.NewCommand(code).Line(), Response: protocol.NotConnected, Error: true}
}
