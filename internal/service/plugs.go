package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"solar_dashboard"
	"solar_dashboard/internal/config"
	"solar_dashboard/internal/logger"
	"solar_dashboard/internal/models"
	"solar_dashboard/internal/repository"
	"solar_dashboard/internal/topic"
)

// Flicker guard windows applied when a state report flips the switch.
const (
	flipSettle         = 2 * time.Second
	flipSettleDisabled = 500 * time.Millisecond

	journalWriteTimeout   = 3 * time.Second
	defaultConfirmTimeout = 30 * time.Second
	// ownEchoWindow is how long the echo of our TOGGLE may take to come back.
	ownEchoWindow = 10 * time.Second
)

var (
	ErrPlugBusy              = errors.New("plug has a toggle in progress")
	ErrPlugDisabled          = errors.New("plug control is disabled until the next state report")
	ErrControlsDisabled      = errors.New("plug controls are disabled after a reconciliation error; reload required")
	ErrNoPendingConfirmation = errors.New("plug has no toggle awaiting confirmation")
	ErrMalformedReport       = errors.New("malformed plug state report")
)

// Publisher is the outbound half of the broker channel. Each call is an
// independent fire-and-forget send.
type Publisher interface {
	Publish(topic, payload string) error
}

// Notifier is told whenever visible dashboard state changed.
type Notifier interface {
	Changed()
}

type noopNotifier struct{}

func (noopNotifier) Changed() {}

// plugRecord is owned by PlugService and only touched under its mutex.
type plugRecord struct {
	cfg config.PlugConfig

	believed solar_dashboard.PowerState
	switchOn bool
	status   solar_dashboard.PlugStatus

	// locked is held for the whole reconciliation cycle, including the
	// confirmation prompt.
	locked          bool
	disabled        bool
	settleUntil     time.Time
	awaitingConfirm bool
	confirmDesired  bool
	confirmDeadline time.Time

	// pending is the latest state-query reply; PowerUnknown means absent.
	pending solar_dashboard.PowerState
	// ownToggles counts TOGGLE commands we sent whose echo has not arrived
	// yet. Echoes still missing after ownToggleUntil are written off.
	ownToggles     int
	ownToggleUntil time.Time
}

// PlugService tracks the believed state of every plug and runs the
// toggle reconciliation cycle.
type PlugService struct {
	mu          sync.Mutex
	plugs       map[string]*plugRecord
	order       []string
	globalError bool

	pub    Publisher
	events repository.EventRepo
	notify Notifier
	log    *logger.Logger

	now            func() time.Time
	pollInterval   time.Duration
	queryTimeout   time.Duration
	confirmTimeout time.Duration

	cycles sync.WaitGroup
}

func NewPlugService(plugs []config.PlugConfig, toggle config.ToggleConfig, pub Publisher, events repository.EventRepo, notify Notifier, log *logger.Logger) *PlugService {
	if notify == nil {
		notify = noopNotifier{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if toggle.ConfirmTimeout <= 0 {
		toggle.ConfirmTimeout = defaultConfirmTimeout
	}
	s := &PlugService{
		plugs:        make(map[string]*plugRecord, len(plugs)),
		order:        make([]string, 0, len(plugs)),
		pub:          pub,
		events:       events,
		notify:       notify,
		log:          log,
		now:            time.Now,
		pollInterval:   toggle.PollInterval,
		queryTimeout:   toggle.QueryTimeout,
		confirmTimeout: toggle.ConfirmTimeout,
	}
	for _, p := range plugs {
		// Controls start disabled until the plug reports its state.
		s.plugs[p.Name] = &plugRecord{cfg: p, disabled: true}
		s.order = append(s.order, p.Name)
	}
	return s
}

// Plugs returns a snapshot of every plug in configuration order.
func (s *PlugService) Plugs() []solar_dashboard.PlugState {
	s.expireConfirmations()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]solar_dashboard.PlugState, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.snapshotLocked(name, s.plugs[name]))
	}
	return out
}

// Plug returns a snapshot of one plug.
func (s *PlugService) Plug(name string) (solar_dashboard.PlugState, error) {
	s.expireConfirmations()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.plugs[name]
	if !ok {
		return solar_dashboard.PlugState{}, fmt.Errorf("%w: %q", topic.ErrUnknownPlug, name)
	}
	return s.snapshotLocked(name, rec), nil
}

// GlobalError reports whether a reconciliation mismatch disabled every control.
func (s *PlugService) GlobalError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalError
}

func (s *PlugService) snapshotLocked(name string, rec *plugRecord) solar_dashboard.PlugState {
	return solar_dashboard.PlugState{
		Name:                 name,
		Believed:             rec.believed,
		SwitchOn:             rec.switchOn,
		Locked:               rec.locked,
		Enabled:              s.enabledLocked(rec),
		RequiresConfirmation: rec.cfg.ConfirmToggle,
		AwaitingConfirmation: rec.awaitingConfirm,
		Status:               rec.status,
	}
}

func (s *PlugService) enabledLocked(rec *plugRecord) bool {
	if s.globalError || rec.disabled {
		return false
	}
	return !s.now().Before(rec.settleUntil)
}

func (s *PlugService) lookupLocked(name string) (*plugRecord, error) {
	rec, ok := s.plugs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", topic.ErrUnknownPlug, name)
	}
	return rec, nil
}

// HandleStateReport applies a tele/<plug>/STATE payload.
func (s *PlugService) HandleStateReport(name string, payload []byte) error {
	var rep solar_dashboard.PlugStateReport
	decodeErr := json.Unmarshal(payload, &rep)

	s.expireConfirmations()

	s.mu.Lock()
	rec, err := s.lookupLocked(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	state := solar_dashboard.PowerUnknown
	if decodeErr == nil {
		state = solar_dashboard.ParsePowerState(rep.Power)
	}
	if state == solar_dashboard.PowerUnknown {
		if rec.status != solar_dashboard.PlugStatusError {
			rec.status = solar_dashboard.PlugStatusUnknown
		}
		s.mu.Unlock()
		s.notify.Changed()
		if decodeErr != nil {
			return fmt.Errorf("%w: %v", ErrMalformedReport, decodeErr)
		}
		return fmt.Errorf("%w: POWER=%q", ErrMalformedReport, rep.Power)
	}

	// A cycle in flight owns the switch; a late report must not flip it back.
	if locked, global := rec.locked, s.globalError; global || locked {
		s.mu.Unlock()
		s.log.Debugw("state_report_ignored", "plug", name, "power", state, "locked", locked, "global_error", global)
		return nil
	}

	if rec.switchOn != state.Bool() {
		window := flipSettle
		if rec.disabled {
			window = flipSettleDisabled
		}
		rec.settleUntil = s.now().Add(window)
		rec.switchOn = state.Bool()
	}
	rec.disabled = false
	rec.believed = state
	if state == solar_dashboard.PowerOn {
		rec.status = solar_dashboard.PlugStatusOn
	} else {
		rec.status = solar_dashboard.PlugStatusOff
	}
	s.mu.Unlock()

	s.notify.Changed()
	return nil
}

// HandleQueryResponse records a stat/<plug>/POWER reply for the cycle waiting on it.
func (s *PlugService) HandleQueryResponse(name string, kind topic.Kind, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(name)
	if err != nil {
		return err
	}
	if kind != topic.KindPower {
		return fmt.Errorf("unexpected query response kind %s", kind)
	}
	state := solar_dashboard.ParsePowerState(string(payload))
	if state == solar_dashboard.PowerUnknown {
		return fmt.Errorf("unexpected query response %q", string(payload))
	}
	rec.pending = state
	return nil
}

// HandleCommandEcho reacts to a cmnd/<plug>/Power message seen on the bus.
// A TOGGLE from anyone disables the control until the next state report.
func (s *PlugService) HandleCommandEcho(name string, kind topic.Kind, payload []byte) error {
	s.mu.Lock()
	rec, err := s.lookupLocked(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if kind != topic.KindPower {
		s.mu.Unlock()
		return fmt.Errorf("unexpected command kind %s", kind)
	}

	switch string(payload) {
	case topic.QueryPayload:
		// State queries, ours or another client's.
		s.mu.Unlock()
		return nil
	case topic.TogglePayload:
	default:
		s.mu.Unlock()
		return fmt.Errorf("unexpected command payload %q", string(payload))
	}

	rec.disabled = true
	if rec.ownToggles > 0 && s.now().After(rec.ownToggleUntil) {
		s.log.Warnw("plug_toggle_echo_lost", "plug", name, "pending", rec.ownToggles)
		rec.ownToggles = 0
	}
	foreign := rec.ownToggles == 0
	if !foreign {
		rec.ownToggles--
	}
	s.mu.Unlock()

	s.notify.Changed()
	if foreign {
		s.journal(name, models.EventExternalToggle, "toggle issued by another client", nil)
	}
	return nil
}

// journal appends to the command journal; failures are logged only.
func (s *PlugService) journal(plug, typ, desc string, meta map[string]any) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	err := s.events.Append(ctx, models.PlugEvent{
		OccurredAt:  s.now().UTC(),
		Plug:        plug,
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Errorw("journal_append_failed", "plug", plug, "type", typ, "err", err)
	}
}
