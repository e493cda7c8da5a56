package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"minicorr/internal/models"
	"minicorr/internal/repository"
)

type EventLogService struct {
	eventRepo repository.EventRepo
	journal   *Journal
	states    *stateStore
}

func NewEventLogService(eventRepo repository.EventRepo, journal *Journal, states *stateStore) *EventLogService {
	return &EventLogService{eventRepo: eventRepo, journal: journal, states: states}
}

var (
	ErrInvalidTimeRange  = errors.New("invalid time range: From must be <= To")
	ErrEventsUnavailable = errors.New("event history is not available")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeRange converts both ends to UTC and checks their order.
func normalizeRange(from, to time.Time) (time.Time, time.Time, error) {
	from, to = normalizeToUTC(from), normalizeToUTC(to)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, ErrInvalidTimeRange
	}
	return from, to, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.DeviceEvent, error) {
	if s.eventRepo == nil {
		return nil, ErrEventsUnavailable
	}
	from, to, err := normalizeRange(f.From, f.To)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, normalizeEventType(f.Type))
}

// StartFile turns the event log file on and returns its path.
func (s *EventLogService) StartFile(ctx context.Context) (string, error) {
	path, err := s.journal.StartFile(ctx)
	if err == nil {
		s.states.save(ctx)
	}
	return path, err
}

// StopFile turns the event log file off.
func (s *EventLogService) StopFile(ctx context.Context) error {
	err := s.journal.StopFile(ctx)
	s.states.save(ctx)
	return err
}

func (s *EventLogService) FileStatus() LoggingStatus {
	return s.journal.Status()
}
