package controller

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"minicorr/internal/protocol"
)

// FanMode is the last fan mode selected through the controller.
type FanMode string

const (
	FanAuto   FanMode = "auto"
	FanManual FanMode = "manual"
)

var (
	ErrInvalidFanMode     = errors.New("invalid fan mode: must be auto or manual")
	ErrThresholdsRequired = errors.New("both min and max thresholds are required")
	ErrThresholdNotNumber = errors.New("threshold must be a number")
)

// ParseFanMode accepts "auto" or "manual" in any case.
func ParseFanMode(s string) (FanMode, error) {
	switch FanMode(strings.ToLower(strings.TrimSpace(s))) {
	case FanAuto:
		return FanAuto, nil
	case FanManual:
		return FanManual, nil
	default:
		return "", ErrInvalidFanMode
	}
}

// Command returns the device command that selects m.
func (m FanMode) Command() protocol.Code {
	if m == FanManual {
		return protocol.FanManual
	}
	return protocol.FanAuto
}

// Snapshot is a copy of the controller's view of the device.
type Snapshot struct {
	Connected          bool           `json:"connected"`
	Host               string         `json:"host,omitempty"`
	Port               int            `json:"port,omitempty"`
	FanMode            FanMode        `json:"fan_mode"`
	ManualFanAvailable bool           `json:"manual_fan_available"`
	Temperature        string         `json:"temperature,omitempty"`
	TemperatureC       *float64       `json:"temperature_c,omitempty"`
	TemperatureAt      time.Time      `json:"temperature_at,omitempty"`
	ThresholdsText     string         `json:"thresholds_text,omitempty"`
	Thresholds         *ThresholdPair `json:"thresholds,omitempty"`
	NetworkText        string         `json:"network_text,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// State remembers connection status, fan mode and values derived from replies.
// It never talks to the device itself.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

func NewState() *State {
	return &State{snap: Snapshot{FanMode: FanAuto}, now: time.Now}
}

// Restore seeds fan mode and thresholds, e.g. from persisted state.
func (s *State) Restore(mode FanMode, th *ThresholdPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == FanAuto || mode == FanManual {
		s.snap.FanMode = mode
	}
	if th != nil {
		cp := *th
		s.snap.Thresholds = &cp
	}
}

// SetConnected records the session endpoint; disconnecting keeps the last
// derived values for display.
func (s *State) SetConnected(connected bool, host string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Connected = connected
	if connected {
		s.snap.Host, s.snap.Port = host, port
	}
	s.snap.UpdatedAt = s.now().UTC()
}

func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Connected
}

func (s *State) FanMode() FanMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.FanMode
}

// SetFanMode remembers the selected mode; no negotiation with the device.
func (s *State) SetFanMode(m FanMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.FanMode = m
	s.snap.UpdatedAt = s.now().UTC()
}

// ManualFanAvailable reports whether fan on/off should be offered.
func (s *State) ManualFanAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Connected && s.snap.FanMode == FanManual
}

// Apply updates derived fields from the reply to cmd. Error replies leave
// previous values untouched.
func (s *State) Apply(cmd protocol.Command, resp string) {
	if protocol.IsError(resp) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	switch cmd.Code() {
	case protocol.ReadTemperature:
		s.snap.Temperature = resp
		s.snap.TemperatureAt = now
		s.snap.TemperatureC = nil
		if v, err := ParseTemperature(resp); err == nil {
			s.snap.TemperatureC = &v
		}
	case protocol.ReadThresholds:
		s.snap.ThresholdsText = resp
		if th, err := ParseThresholds(resp); err == nil {
			s.snap.Thresholds = &th
		}
	case protocol.FanAuto:
		s.snap.FanMode = FanAuto
	case protocol.FanManual:
		s.snap.FanMode = FanManual
	case protocol.SetNetwork:
		s.snap.NetworkText = resp
	default:
		return
	}
	s.snap.UpdatedAt = now
}

// Snapshot returns a copy safe to hand to other goroutines.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.ManualFanAvailable = s.snap.Connected && s.snap.FanMode == FanManual
	if s.snap.TemperatureC != nil {
		v := *s.snap.TemperatureC
		out.TemperatureC = &v
	}
	if s.snap.Thresholds != nil {
		th := *s.snap.Thresholds
		out.Thresholds = &th
	}
	return out
}

// ValidateThresholds checks raw user input before command 8 is sent.
func ValidateThresholds(low, high string) (ThresholdPair, error) {
	low, high = strings.TrimSpace(low), strings.TrimSpace(high)
	if low == "" || high == "" {
		return ThresholdPair{}, ErrThresholdsRequired
	}
	l, err := parseThreshold(low)
	if err != nil {
		return ThresholdPair{}, fmt.Errorf("%w: min %q", ErrThresholdNotNumber, low)
	}
	h, err := parseThreshold(high)
	if err != nil {
		return ThresholdPair{}, fmt.Errorf("%w: max %q", ErrThresholdNotNumber, high)
	}
	return ThresholdPair{Low: l, High: h}, nil
}

// parseThreshold accepts finite numbers only.
func parseThreshold(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not finite")
	}
	return v, nil
}
