package models

import "time"

// DeviceState is the persisted controller snapshot (single row).
type DeviceState struct {
	ID              int       `json:"id"`
	Host            string    `json:"host"`
	Port            int       `json:"port"`
	Connected       bool      `json:"connected"`
	FanMode         string    `json:"fan_mode"`
	TemperatureC    *float64  `json:"temperature_c,omitempty"`
	ThresholdLow    *float64  `json:"threshold_low,omitempty"`
	ThresholdHigh   *float64  `json:"threshold_high,omitempty"`
	Monitoring      bool      `json:"monitoring"`
	IntervalSeconds int       `json:"interval_seconds,omitempty"`
	Logging         bool      `json:"logging"`
	UpdatedAt       time.Time `json:"updated_at"`
}
