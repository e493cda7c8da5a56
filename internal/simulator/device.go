package simulator

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ----------- Simulation constants -----------
const (
	AmbientC         = 22.0 // ambient temperature °C
	RelayHeatCPerSec = 0.8  // °C per second while the relay heater is on
	FanCoolCPerSec   = 0.6  // °C per second while the fan runs
	DriftCPerSec     = 0.1  // °C per second drift toward ambient
	DefaultLowC      = 20.0
	DefaultHighC     = 35.0
)

// Fan modes as reported by the device.
const (
	FanModeAuto   = "AUTO"
	FanModeManual = "MANUAL"
)

// DefaultBanner is sent on connect, before the prompt.
const DefaultBanner = "Mini Corr controller\r\nFirmware 1.4\r\nType a command code (1-10)\r\n"

// Device is an in-memory model of the relay/fan/sensor board.
type Device struct {
	mu sync.Mutex

	banner     string
	static     bool
	replyDelay time.Duration

	relayOn   bool
	fanOn     bool
	fanMode   string
	tempC     float64
	lowC      float64
	highC     float64
	ip        string
	gateway   string
	updatedAt time.Time
}

// Option configures a Device.
type Option func(*Device)

// WithBanner overrides the welcome text.
func WithBanner(b string) Option { return func(d *Device) { d.banner = b } }

// WithStaticTemperature freezes the temperature at c.
func WithStaticTemperature(c float64) Option {
	return func(d *Device) {
		d.tempC = c
		d.static = true
	}
}

// WithReplyDelay delays every reply by delay.
func WithReplyDelay(delay time.Duration) Option { return func(d *Device) { d.replyDelay = delay } }

// NewDevice returns a device at ambient temperature with default thresholds.
func NewDevice(opts ...Option) *Device {
	d := &Device{
		banner:    DefaultBanner,
		fanMode:   FanModeAuto,
		tempC:     AmbientC,
		lowC:      DefaultLowC,
		highC:     DefaultHighC,
		ip:        "192.168.0.100",
		gateway:   "192.168.0.1",
		updatedAt: time.Now(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Device) Banner() string { return d.banner }

func (d *Device) ReplyDelay() time.Duration { return d.replyDelay }

// Handle executes one request line and returns the reply without the prompt.
func (d *Device) Handle(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return "Unknown command"
	}
	args := fields[1:]

	d.mu.Lock()
	defer d.mu.Unlock()

	d.advance(time.Now())

	switch code {
	case 1:
		d.relayOn = true
		return "Relay ON"
	case 2:
		d.relayOn = false
		return "Relay OFF"
	case 3:
		return strconv.FormatFloat(d.tempC, 'f', 1, 64)
	case 4:
		d.fanMode = FanModeAuto
		d.applyAutoFan()
		return "Fan mode: AUTO"
	case 5:
		d.fanMode = FanModeManual
		return "Fan mode: MANUAL"
	case 6, 7:
		if d.fanMode != FanModeManual {
			return "Fan is in AUTO mode"
		}
		d.fanOn = code == 6
		if d.fanOn {
			return "Fan ON"
		}
		return "Fan OFF"
	case 8:
		return d.setThresholds(args)
	case 9:
		return fmt.Sprintf("Thresholds: min=%s max=%s", formatC(d.lowC), formatC(d.highC))
	case 10:
		if len(args) != 2 {
			return "Usage: 10 <ip> <gateway>"
		}
		d.ip, d.gateway = args[0], args[1]
		return fmt.Sprintf("Network set: ip=%s gateway=%s", d.ip, d.gateway)
	default:
		return "Unknown command"
	}
}

func (d *Device) setThresholds(args []string) string {
	if len(args) != 2 {
		return "Usage: 8 <min> <max>"
	}
	low, err1 := strconv.ParseFloat(args[0], 64)
	high, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil {
		return "Invalid thresholds"
	}
	d.lowC, d.highC = low, high
	d.applyAutoFan()
	return fmt.Sprintf("Thresholds set: min=%s max=%s", formatC(low), formatC(high))
}

// State returns relay, fan and mode for assertions and diagnostics.
func (d *Device) State() (relayOn, fanOn bool, fanMode string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relayOn, d.fanOn, d.fanMode
}

// advance moves the temperature model forward to now.
func (d *Device) advance(now time.Time) {
	elapsed := now.Sub(d.updatedAt).Seconds()
	d.updatedAt = now
	if d.static || elapsed <= 0 {
		return
	}

	switch {
	case d.relayOn && !d.fanOn:
		d.tempC += RelayHeatCPerSec * elapsed
	case d.fanOn && !d.relayOn:
		d.tempC = maxFloat(d.tempC-FanCoolCPerSec*elapsed, AmbientC)
	default:
		d.driftToAmbient(elapsed)
	}
	d.applyAutoFan()
}

// driftToAmbient moves the temperature toward ambient from either side.
func (d *Device) driftToAmbient(elapsed float64) {
	step := DriftCPerSec * elapsed
	switch {
	case d.tempC > AmbientC:
		d.tempC = maxFloat(d.tempC-step, AmbientC)
	case d.tempC < AmbientC:
		d.tempC = minFloat(d.tempC+step, AmbientC)
	}
}

// applyAutoFan runs the hysteresis loop: on above high, off below low.
func (d *Device) applyAutoFan() {
	if d.fanMode != FanModeAuto {
		return
	}
	if d.tempC > d.highC {
		d.fanOn = true
	} else if d.tempC < d.lowC {
		d.fanOn = false
	}
}

func formatC(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// helpers
func maxFloat(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a <= b {
		return a
	}
	return b
}
