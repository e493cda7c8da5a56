package models

import "time"

// TemperatureSample is one poll result. Value is nil when Raw did not parse
// as a reading (error text, garbage from the device).
type TemperatureSample struct {
	ID      int64     `json:"id"`
	TakenAt time.Time `json:"taken_at"`
	Raw     string    `json:"raw"`
	Value   *float64  `json:"value,omitempty"`
}
