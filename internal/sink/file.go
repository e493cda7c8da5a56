package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"minicorr/internal/poller"
)

const (
	eventClockLayout  = "15:04:05"
	sampleStampLayout = "2006-01-02T15:04:05.000"
	fileStampLayout   = "20060102_150405"
)

var ErrClosed = errors.New("sink closed")

// FormatEvent renders an event log line: "[HH:MM:SS] message".
func FormatEvent(t time.Time, msg string) string {
	return "[" + t.Format(eventClockLayout) + "] " + msg
}

// FormatSample renders a sample line: "<timestamp>,<raw>". Line breaks inside
// raw are flattened so one sample stays one line.
func FormatSample(s poller.Sample) string {
	return s.TakenAt.Format(sampleStampLayout) + "," + oneLine(s.Raw)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\r", " ")), " ")
}

// appendFile is an append-only line writer. Each line goes straight to the
// file descriptor, so a crash loses at most the line being written.
type appendFile struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func openAppend(dir, name string) (*appendFile, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %q: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	return &appendFile{f: f, path: path}, nil
}

func (a *appendFile) writeLine(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return ErrClosed
	}
	if _, err := a.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write %q: %w", a.path, err)
	}
	return nil
}

func (a *appendFile) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

func (a *appendFile) Path() string { return a.path }

// EventFile is the text event log.
type EventFile struct {
	*appendFile
}

// OpenEventFile creates "<YYYYmmdd_HHMMSS>_logfile.txt" in dir.
func OpenEventFile(dir string, now time.Time) (*EventFile, error) {
	a, err := openAppend(dir, now.Format(fileStampLayout)+"_logfile.txt")
	if err != nil {
		return nil, err
	}
	return &EventFile{a}, nil
}

// Write appends an already formatted line.
func (e *EventFile) Write(line string) error {
	return e.writeLine(line)
}

// SampleFile is the temperature sample log.
type SampleFile struct {
	*appendFile
}

// OpenSampleFile creates "<YYYYmmdd_HHMMSS>_temperature.csv" in dir.
func OpenSampleFile(dir string, now time.Time) (*SampleFile, error) {
	a, err := openAppend(dir, now.Format(fileStampLayout)+"_temperature.csv")
	if err != nil {
		return nil, err
	}
	return &SampleFile{a}, nil
}

func (s *SampleFile) Record(smp poller.Sample) error {
	return s.writeLine(FormatSample(smp))
}
