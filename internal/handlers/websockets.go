package handlers

import (
	"net/http"
	"strconv"
	"time"

	"solar_dashboard/internal/render"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000

	envelopeDashboard = "dashboard"
)

// wsEnvelope is the frame written to dashboard clients.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// The dashboard is served on a trusted LAN.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dashboardStream is one websocket client of the live dashboard.
type dashboardStream struct {
	h      *Handler
	conn   *websocket.Conn
	closed chan struct{}
}

// wsConnect streams the rendered dashboard: once on connect, after every
// change and on the refresh interval.
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	s := &dashboardStream{h: h, conn: conn, closed: make(chan struct{})}
	defer func() { _ = conn.Close() }()

	go s.drain()

	changes, unsubscribe := h.services.Subscribe()
	defer unsubscribe()

	if err := s.push(); err != nil {
		s.debug("ws_initial_push_failed", err)
		return
	}
	s.serve(c, changes, interval)
}

func (s *dashboardStream) serve(c *gin.Context, changes <-chan struct{}, interval time.Duration) {
	refresh := time.NewTicker(interval)
	defer refresh.Stop()
	keepalive := time.NewTicker(pingPeriod)
	defer keepalive.Stop()

	for {
		var err error
		select {
		case <-s.closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-keepalive.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = s.conn.WriteMessage(websocket.PingMessage, nil)
		case _, ok := <-changes:
			if !ok {
				return
			}
			err = s.push()
		case <-refresh.C:
			err = s.push()
		}
		if err != nil {
			s.debug("ws_write_failed", err)
			return
		}
	}
}

// drain reads control frames until the client goes away. Clients never send
// data the dashboard acts on.
func (s *dashboardStream) drain() {
	defer close(s.closed)
	s.conn.SetReadLimit(maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.debug("ws_read_closed", err)
			return
		}
	}
}

func (s *dashboardStream) push() error {
	v := render.Render(s.h.services.Snapshot(), s.h.view.CostPerKWh)
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(wsEnvelope{Type: envelopeDashboard, Data: v})
}

func (s *dashboardStream) debug(key string, err error) {
	if s.h.log != nil {
		s.h.log.Debugw(key, "err", err)
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000, falling back to the
// configured refresh period.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return h.view.Interval
}
