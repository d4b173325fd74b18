package handlers

import (
	"context"
	"sync"

	"solar_dashboard"
	"solar_dashboard/internal/models"
	"solar_dashboard/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockPlugs struct {
	decision   service.ToggleDecision
	toggleErr  error
	confirmErr error
	cancelErr  error
	plug       solar_dashboard.PlugState
	plugErr    error

	lastName string
	lastOn   bool
	toggles  int
	confirms int
	cancels  int
}

func (m *mockPlugs) Plug(name string) (solar_dashboard.PlugState, error) {
	p := m.plug
	p.Name = name
	return p, m.plugErr
}

func (m *mockPlugs) RequestToggle(name string, on bool) (service.ToggleDecision, error) {
	m.toggles++
	m.lastName = name
	m.lastOn = on
	return m.decision, m.toggleErr
}

func (m *mockPlugs) Confirm(name string) error {
	m.confirms++
	m.lastName = name
	return m.confirmErr
}

func (m *mockPlugs) Cancel(name string) error {
	m.cancels++
	m.lastName = name
	return m.cancelErr
}

// mockDashboard serves a fixed snapshot and lets tests signal changes.
type mockDashboard struct {
	mu   sync.Mutex
	snap solar_dashboard.Dashboard
	subs []chan struct{}
}

func (m *mockDashboard) Snapshot() solar_dashboard.Dashboard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockDashboard) set(d solar_dashboard.Dashboard) {
	m.mu.Lock()
	m.snap = d
	subs := append([]chan struct{}(nil), m.subs...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (m *mockDashboard) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch, func() {}
}

type mockEventLog struct {
	resp []models.PlugEvent
	err  error
	last service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.PlugEvent, error) {
	m.last = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, ViewConfig{CostPerKWh: 0.1227}, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
