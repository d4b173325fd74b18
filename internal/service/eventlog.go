package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"solar_dashboard/internal/models"
	"solar_dashboard/internal/repository"
)

// LogFilter narrows the plug command journal.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "TOGGLE_REQUESTED", "TOGGLE_SENT", "MISMATCH", "TIMEOUT", "CANCELLED", "EXTERNAL_TOGGLE"
	Plug string    // exact plug name; "" means every plug
}

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
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

// normalizeAndValidateFilter prepares repository parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (repository.EventFilter, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return repository.EventFilter{}, errInvalidTimeRange
	}

	return repository.EventFilter{
		From: from,
		To:   to,
		Type: normalizeEventType(f.Type),
		Plug: strings.TrimSpace(f.Plug),
	}, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.PlugEvent, error) {
	rf, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, rf)
}
