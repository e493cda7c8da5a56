package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"minicorr/internal/controller"
	"minicorr/internal/models"
	"minicorr/internal/protocol"
)

var (
	ErrHostRequired         = errors.New("host is required")
	ErrInvalidPort          = errors.New("port must be between 1 and 65535")
	ErrConnectFailed        = errors.New("connection failed")
	ErrManualFanUnavailable = errors.New("fan on/off requires manual fan mode and a connected device")
	ErrInvalidNetwork       = errors.New("ip and gateway must be IPv4 addresses")
)

// DeviceClient is the part of protocol.Client the services use.
type DeviceClient interface {
	Open(ctx context.Context, host string, port int) (string, error)
	SendCommand(code protocol.Code, args ...string) string
	Disconnect()
	Connected() bool
}

// ValidateEndpoint checks connect input before any dialing.
func ValidateEndpoint(host string, port int) error {
	if strings.TrimSpace(host) == "" {
		return ErrHostRequired
	}
	if port < 1 || port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

type DeviceService struct {
	client  DeviceClient
	state   *controller.State
	journal *Journal
	states  *stateStore
}

func NewDeviceService(client DeviceClient, state *controller.State, journal *Journal, states *stateStore) *DeviceService {
	return &DeviceService{client: client, state: state, journal: journal, states: states}
}

// Connect opens a session and returns the device welcome text. A previous
// session is replaced.
func (s *DeviceService) Connect(ctx context.Context, host string, port int) (string, error) {
	host = strings.TrimSpace(host)
	if err := ValidateEndpoint(host, port); err != nil {
		s.journal.Record(ctx, models.EventError, "connect rejected: "+err.Error(), nil)
		return "", err
	}

	endpoint := net.JoinHostPort(host, fmt.Sprint(port))
	welcome, err := s.client.Open(ctx, host, port)
	if err != nil {
		s.state.SetConnected(false, host, port)
		s.journal.Record(ctx, models.EventError, "connection error: "+err.Error(),
			map[string]any{"host": host, "port": port})
		s.states.save(ctx)
		return "", fmt.Errorf("%w: %s: %w", ErrConnectFailed, endpoint, err)
	}

	s.state.SetConnected(true, host, port)
	s.journal.Record(ctx, models.EventConnect, "connected to "+endpoint,
		map[string]any{"host": host, "port": port})
	s.journal.Record(ctx, models.EventInfo, "server message:\n"+welcome, nil)
	s.states.save(ctx)
	return welcome, nil
}

// Disconnect waits for the in-flight command and closes the session.
func (s *DeviceService) Disconnect(ctx context.Context) {
	wasConnected := s.client.Connected()
	s.client.Disconnect()
	s.state.SetConnected(false, "", 0)
	if wasConnected {
		s.journal.Record(ctx, models.EventDisconnect, "disconnected", nil)
	}
	s.states.save(ctx)
}

// Command sends one command, journaling request and reply, and folds the
// reply into the controller state. Not being connected is reported without
// touching the wire.
func (s *DeviceService) Command(ctx context.Context, code protocol.Code, args ...string) CommandResult {
	cmd := protocol.NewCommand(code, args...)
	res := CommandResult{Code: int(code), Command: cmd.Line()}

	if !s.client.Connected() {
		s.journal.Record(ctx, models.EventError, "not connected to device", nil)
		res.Response, res.Error = protocol.NotConnected, true
		return res
	}

	s.journal.Record(ctx, models.EventCommand, "sending command: "+cmd.Line(), map[string]any{"code": int(code)})
	resp := s.client.SendCommand(code, args...)
	res.Response, res.Error = resp, protocol.IsError(resp)

	typ := models.EventResponse
	if res.Error {
		typ = models.EventError
	}
	s.journal.Record(ctx, typ, "response: "+resp, nil)

	s.state.Apply(cmd, resp)
	s.syncConnection(ctx)
	s.states.save(ctx)
	return res
}

// syncConnection notices a session the client dropped after an I/O failure.
func (s *DeviceService) syncConnection(ctx context.Context) {
	if s.state.Connected() && !s.client.Connected() {
		s.state.SetConnected(false, "", 0)
		s.journal.Record(ctx, models.EventDisconnect, "connection lost", nil)
	}
}

func (s *DeviceService) Relay(ctx context.Context, on bool) CommandResult {
	if on {
		return s.Command(ctx, protocol.RelayOn)
	}
	return s.Command(ctx, protocol.RelayOff)
}

func (s *DeviceService) ReadTemperature(ctx context.Context) CommandResult {
	return s.Command(ctx, protocol.ReadTemperature)
}

// SetFanMode remembers the mode locally and tells the device.
func (s *DeviceService) SetFanMode(ctx context.Context, mode controller.FanMode) CommandResult {
	s.state.SetFanMode(mode)
	return s.Command(ctx, mode.Command())
}

// Fan switches the fan in manual mode only.
func (s *DeviceService) Fan(ctx context.Context, on bool) (CommandResult, error) {
	if !s.state.ManualFanAvailable() {
		return CommandResult{}, ErrManualFanUnavailable
	}
	if on {
		return s.Command(ctx, protocol.FanOn), nil
	}
	return s.Command(ctx, protocol.FanOff), nil
}

// SetThresholds validates the raw input and sends command 8 with it.
func (s *DeviceService) SetThresholds(ctx context.Context, low, high string) (CommandResult, error) {
	if _, err := controller.ValidateThresholds(low, high); err != nil {
		s.journal.Record(ctx, models.EventError, "thresholds rejected: "+err.Error(), nil)
		return CommandResult{}, err
	}
	return s.Command(ctx, protocol.SetThresholds, strings.TrimSpace(low), strings.TrimSpace(high)), nil
}

func (s *DeviceService) ReadThresholds(ctx context.Context) CommandResult {
	return s.Command(ctx, protocol.ReadThresholds)
}

// SetNetwork sends command 10 with the device's new address and gateway.
func (s *DeviceService) SetNetwork(ctx context.Context, ip, gateway string) (CommandResult, error) {
	ip, gateway = strings.TrimSpace(ip), strings.TrimSpace(gateway)
	if !isIPv4(ip) || !isIPv4(gateway) {
		return CommandResult{}, ErrInvalidNetwork
	}
	return s.Command(ctx, protocol.SetNetwork, ip, gateway), nil
}

// Raw sends an arbitrary command code with free-form arguments.
func (s *DeviceService) Raw(ctx context.Context, code int, args []string) (CommandResult, error) {
	c := protocol.Code(code)
	if !c.Valid() {
		return CommandResult{}, fmt.Errorf("%w: code %d", protocol.ErrInvalidCommand, code)
	}
	if err := protocol.ValidateArgs(args); err != nil {
		return CommandResult{}, err
	}
	return s.Command(ctx, c, args...), nil
}

func (s *DeviceService) Snapshot() controller.Snapshot {
	return s.state.Snapshot()
}

func isIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
