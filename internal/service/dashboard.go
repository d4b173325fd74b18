package service

import (
	"sync"
	"time"

	"solar_dashboard"
)

// DashboardService composes the plug and telemetry snapshots with the broker
// banner into one view model.
type DashboardService struct {
	plugs     *PlugService
	telemetry *TelemetryService
	feed      *ChangeFeed

	mu   sync.Mutex
	conn solar_dashboard.ConnectionStatus
	now  func() time.Time
}

func NewDashboardService(plugs *PlugService, telemetry *TelemetryService, feed *ChangeFeed) *DashboardService {
	return &DashboardService{
		plugs:     plugs,
		telemetry: telemetry,
		feed:      feed,
		conn: solar_dashboard.ConnectionStatus{
			State:   solar_dashboard.ConnectionConnecting,
			Message: "Connecting...",
		},
		now: time.Now,
	}
}

// Snapshot returns the current dashboard.
func (d *DashboardService) Snapshot() solar_dashboard.Dashboard {
	tel := d.telemetry.Snapshot()
	return solar_dashboard.Dashboard{
		Connection:  d.Connection(),
		Controllers: tel.Controllers,
		Plugs:       d.plugs.Plugs(),
		PlugEnergy:  tel.PlugEnergy,
		Sensors:     tel.Sensors,
		Totals:      tel.Totals,
		GlobalError: d.plugs.GlobalError(),
	}
}

func (d *DashboardService) Connection() solar_dashboard.ConnectionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

// SetConnection records the broker banner. The connection manager calls it
// on every connect attempt outcome.
func (d *DashboardService) SetConnection(state solar_dashboard.ConnectionState, message string) {
	d.mu.Lock()
	d.conn = solar_dashboard.ConnectionStatus{
		State:     state,
		Message:   message,
		UpdatedAt: d.now().UTC(),
	}
	d.mu.Unlock()
	d.feed.Changed()
}

// Subscribe returns a channel signalled whenever the dashboard changed.
func (d *DashboardService) Subscribe() (<-chan struct{}, func()) {
	return d.feed.Subscribe()
}
