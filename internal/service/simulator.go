package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"solar_dashboard"
	"solar_dashboard/internal/config"
	"solar_dashboard/internal/logger"
	"solar_dashboard/internal/topic"
)

// ----------- Simulation constants -----------
const (
	AmbientC          = 25.0  // box and battery ambient °C
	ChargeHeatPerKW   = 4.0   // controller °C above ambient per kW charging
	TempFollowPerSec  = 0.1   // fraction of the gap to the target temperature closed per second
	PanelPeakWatts    = 600.0 // per controller at the top of the sun curve
	SunPeriod         = 10 * time.Minute
	BatteryAh         = 400.0
	BatteryNominalV   = 25.6
	PanelVolts        = 68.0
	PlugVoltage       = 120.0
	PlugLoadWatts     = 350.0 // draw of a switched-on plug
	plugPowerFactor   = 0.92
	simConnectMessage = "Connected to simulator"
)

var errSimulatorDetached = errors.New("simulator: Attach must be called first")

// Router delivers an inbound message. *topic.Router satisfies it.
type Router interface {
	Route(raw string, payload []byte) topic.Route
}

// ConnectionSink receives the broker banner.
type ConnectionSink interface {
	SetConnection(state solar_dashboard.ConnectionState, message string)
}

type simController struct {
	soc        float64 // %
	tempC      float64
	panelWatts float64
	dailyKWh   float64
	totalKWh   float64
	dailyAh    float64
}

type simPlug struct {
	on       bool
	todayKWh float64
}

// SimulatorService stands in for the broker and every device behind it, so
// the dashboard runs without hardware. Commands published to it are echoed
// back and answered the way the plugs answer them.
type SimulatorService struct {
	mu          sync.Mutex
	router      Router
	status      ConnectionSink
	controllers []simController
	plugs       map[string]*simPlug
	plugOrder   []string
	misc        []string
	started     time.Time
	last        time.Time
	log         *logger.Logger
}

// NewSimulatorService seeds one simulated device per configured controller,
// plug and sensor. Plugs start OFF.
func NewSimulatorService(cfg *config.Config, log *logger.Logger) *SimulatorService {
	if log == nil {
		log = logger.Nop()
	}
	s := &SimulatorService{
		controllers: make([]simController, cfg.Controllers),
		plugs:       make(map[string]*simPlug, len(cfg.Plugs)),
		misc:        append([]string(nil), cfg.MiscTopics...),
		log:         log,
	}
	for i := range s.controllers {
		s.controllers[i] = simController{soc: 60 + float64(i)*10, tempC: AmbientC}
	}
	for _, p := range cfg.Plugs {
		s.plugs[p.Name] = &simPlug{}
		s.plugOrder = append(s.plugOrder, p.Name)
	}
	return s
}

// Attach sets where simulated messages are delivered.
func (s *SimulatorService) Attach(router Router, status ConnectionSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router = router
	s.status = status
}

// Publish implements Publisher. The command is echoed back first, as a
// broker delivering "#" would, then the plug answers: a state query with
// stat/<plug>/POWER, a TOGGLE by flipping and reporting stat/<plug>/RESULT.
// The next tele STATE comes with the following tick.
func (s *SimulatorService) Publish(t, payload string) error {
	s.mu.Lock()
	router := s.router
	s.mu.Unlock()
	if router == nil {
		return errSimulatorDetached
	}

	router.Route(t, []byte(payload))

	r := topic.Parse(t)
	if r.Category != topic.CategoryPlugCommand || r.Kind != topic.KindPower {
		return nil
	}

	s.mu.Lock()
	p, ok := s.plugs[r.Subject]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	toggled := payload == topic.TogglePayload
	if toggled {
		p.on = !p.on
	}
	state := solar_dashboard.PowerFromBool(p.on)
	s.mu.Unlock()

	if toggled {
		s.log.Debugw("sim_plug_toggled", "plug", r.Subject, "power", state)
		b, _ := json.Marshal(solar_dashboard.PlugStateReport{Power: string(state)})
		router.Route(topic.StatPrefix+"/"+r.Subject+"/RESULT", b)
		return nil
	}
	if payload == topic.QueryPayload {
		router.Route(topic.StatPrefix+"/"+r.Subject+"/POWER", []byte(state))
	}
	return nil
}

// Run reports connected and publishes every device each tick until ctx is canceled.
func (s *SimulatorService) Run(ctx context.Context, tick time.Duration) error {
	s.mu.Lock()
	router, status := s.router, s.status
	s.mu.Unlock()
	if router == nil || status == nil {
		return errSimulatorDetached
	}

	status.SetConnection(solar_dashboard.ConnectionUp, simConnectMessage)
	s.log.Infow("simulator_started", "tick", tick)
	s.Step(time.Now())

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			s.Step(now)
		}
	}
}

// Step advances every device to now and publishes its reports.
func (s *SimulatorService) Step(now time.Time) {
	s.mu.Lock()
	router := s.router
	if router == nil {
		s.mu.Unlock()
		return
	}
	if s.started.IsZero() {
		s.started, s.last = now, now
	}
	elapsed := now.Sub(s.last).Seconds()
	s.last = now
	sun := sunFactor(now.Sub(s.started))

	msgs := make([]simMessage, 0, len(s.controllers)+2*len(s.plugOrder)+len(s.misc))
	var chargeKW float64
	for i := range s.controllers {
		c := &s.controllers[i]
		advanceController(c, sun*PanelPeakWatts*(1-0.15*float64(i)), elapsed)
		chargeKW += c.panelWatts / 1000
		msgs = append(msgs, simMessage{topic.ControllerPrefix + strconv.Itoa(i+1), mustJSON(controllerReport(c))})
	}
	for _, name := range s.plugOrder {
		p := s.plugs[name]
		watts := 0.0
		if p.on {
			watts = PlugLoadWatts
			p.todayKWh += watts * elapsed / 3600 / 1000
		}
		msgs = append(msgs,
			simMessage{topic.TelePrefix + "/" + name + "/STATE", mustJSON(solar_dashboard.PlugStateReport{Power: string(solar_dashboard.PowerFromBool(p.on))})},
			simMessage{topic.TelePrefix + "/" + name + "/SENSOR", mustJSON(plugReport(p, watts))},
		)
	}
	for _, name := range s.misc {
		msgs = append(msgs, simMessage{name, []byte(strconv.FormatFloat(miscValue(name, chargeKW), 'f', 1, 64))})
	}
	s.mu.Unlock()

	for _, m := range msgs {
		router.Route(m.topic, m.payload)
	}
}

type simMessage struct {
	topic   string
	payload []byte
}

// advanceController integrates charge and temperature over elapsed seconds.
func advanceController(c *simController, watts, elapsed float64) {
	c.panelWatts = maxFloat(watts, 0)
	if c.soc >= 100 {
		// float charge
		c.panelWatts = math.Min(c.panelWatts, 20)
	}
	kWh := c.panelWatts * elapsed / 3600 / 1000
	c.dailyKWh += kWh
	c.totalKWh += kWh
	ah := c.panelWatts / BatteryNominalV * elapsed / 3600
	c.dailyAh += ah
	c.soc = math.Min(c.soc+ah/BatteryAh*100, 100)

	target := AmbientC + ChargeHeatPerKW*c.panelWatts/1000
	c.tempC += (target - c.tempC) * math.Min(TempFollowPerSec*elapsed, 1)
}

func controllerReport(c *simController) solar_dashboard.ControllerReport {
	mode := "MPPT"
	switch {
	case c.panelWatts == 0:
		mode = "deactivated"
	case c.soc >= 100:
		mode = "floating"
	}
	volts := BatteryNominalV + 2.4*c.soc/100
	amps := 0.0
	if volts > 0 {
		amps = c.panelWatts / volts
	}
	return solar_dashboard.ControllerReport{
		Controller: solar_dashboard.ControllerInfo{
			ChargingMode: mode,
			Temperature:  round1(c.tempC),
			Days:         1,
		},
		Battery: solar_dashboard.BatteryInfo{
			StateOfCharge: math.Round(c.soc),
			Volts:         round1(volts),
			MinVolts:      BatteryNominalV,
			MaxVolts:      round1(volts),
			Temperature:   AmbientC,
		},
		Panels: solar_dashboard.PanelInfo{
			Volts: PanelVolts,
			Amps:  round1(c.panelWatts / PanelVolts),
		},
		Charging: solar_dashboard.ChargingInfo{
			Amps:          round1(amps),
			Watts:         math.Round(c.panelWatts),
			MaxAmps:       round1(PanelPeakWatts / BatteryNominalV),
			MaxWatts:      PanelPeakWatts,
			DailyAmpHours: round1(c.dailyAh),
			DailyPower:    c.dailyKWh,
			TotalAmpHours: c.dailyAh / 1000,
			TotalPower:    c.totalKWh,
		},
		Faults: []string{},
	}
}

func plugReport(p *simPlug, watts float64) solar_dashboard.PlugSensorReport {
	apparent := watts / plugPowerFactor
	factor := 0.0
	if watts > 0 {
		factor = plugPowerFactor
	}
	return solar_dashboard.PlugSensorReport{Energy: solar_dashboard.PlugEnergy{
		Power:         watts,
		Current:       round1(apparent / PlugVoltage),
		Voltage:       PlugVoltage,
		Today:         p.todayKWh,
		Total:         p.todayKWh,
		ApparentPower: math.Round(apparent),
		ReactivePower: math.Round(math.Sqrt(apparent*apparent - watts*watts)),
		Factor:        factor,
	}}
}

func miscValue(name string, chargeKW float64) float64 {
	switch name {
	case "Temp":
		return AmbientC + 3*chargeKW
	case "Hum":
		return 40
	case "Pres":
		return 1013.2
	case "Gas":
		return 12
	default:
		return 0
	}
}

// sunFactor is a half-sine day curve, zero for the night half of the period.
func sunFactor(since time.Duration) float64 {
	phase := math.Mod(since.Seconds(), SunPeriod.Seconds()) / SunPeriod.Seconds()
	return maxFloat(math.Sin(2*math.Pi*phase), 0)
}

// helpers
func maxFloat(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
