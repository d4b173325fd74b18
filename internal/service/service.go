package service

import (
	"context"

	"solar_dashboard"
	"solar_dashboard/internal/config"
	"solar_dashboard/internal/logger"
	"solar_dashboard/internal/models"
	"solar_dashboard/internal/repository"
)

// PlugControl is the operator side of the plugs: switch clicks and the
// confirmation prompt.
type PlugControl interface {
	Plug(name string) (solar_dashboard.PlugState, error)
	RequestToggle(name string, on bool) (ToggleDecision, error)
	Confirm(name string) error
	Cancel(name string) error
}

// Dashboard exposes the composed view model and its change stream.
type Dashboard interface {
	Snapshot() solar_dashboard.Dashboard
	Subscribe() (<-chan struct{}, func())
}

// EventLog exposes the plug command journal with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.PlugEvent, error)
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	PlugControl
	Dashboard
	EventLog

	// Wired to the broker by main.
	Dispatcher *Dispatcher
	Status     *DashboardService
	plugs      *PlugService
}

// NewService wires the repository layer and the outbound publisher into the
// concrete services.
func NewService(repos *repository.Repository, cfg *config.Config, pub Publisher, log *logger.Logger) *Service {
	feed := NewChangeFeed()
	plugs := NewPlugService(cfg.Plugs, cfg.Toggle, pub, repos.EventRepo, feed, log)
	telemetry := NewTelemetryService(cfg, feed, log)
	dash := NewDashboardService(plugs, telemetry, feed)

	return &Service{
		PlugControl: plugs,
		Dashboard:   dash,
		EventLog:    NewEventLogService(repos.EventRepo),
		Dispatcher:  NewDispatcher(plugs, telemetry),
		Status:      dash,
		plugs:       plugs,
	}
}

// Wait blocks until in-flight toggle cycles finish. Used on shutdown.
func (s *Service) Wait() {
	s.plugs.Wait()
}
