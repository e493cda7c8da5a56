package service

import "time"

// LogFilter narrows journal history by time range and event type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "CONNECT", "COMMAND", "RESPONSE", "ERROR", ...
}

// SampleFilter narrows stored temperature samples.
type SampleFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// CommandResult is what a device command produced. Failures are carried in
// Response as error text, mirroring the protocol client.
type CommandResult struct {
	Code     int    `json:"code"`
	Command  string `json:"command"`
	Response string `json:"response"`
	Error    bool   `json:"error"`
}

// LoggingStatus describes the event log file.
type LoggingStatus struct {
	Active bool   `json:"active"`
	Path   string `json:"path,omitempty"`
}
