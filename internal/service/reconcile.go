package service

import (
	"context"
	"fmt"
	"time"

	"solar_dashboard"
	"solar_dashboard/internal/models"
	"solar_dashboard/internal/topic"
)

// Outcome is how a reconciliation cycle ended.
type Outcome string

const (
	// OutcomeToggled: the plug reported the opposite of the target and a TOGGLE was sent.
	OutcomeToggled Outcome = "TOGGLED"
	// OutcomeMismatch: the plug already reported the target state before any
	// toggle was sent, so believed and physical state disagree.
	OutcomeMismatch Outcome = "MISMATCH"
	// OutcomeTimeout: no query reply arrived in time.
	OutcomeTimeout Outcome = "TIMEOUT"
	// OutcomeNotSent: the broker refused a publish; nothing reached the plug
	// or the toggle did not go out.
	OutcomeNotSent Outcome = "NOT_SENT"
)

// ToggleDecision is the answer to a switch click.
type ToggleDecision string

const (
	DecisionStarted ToggleDecision = "started"
	DecisionConfirm ToggleDecision = "confirmation_required"
)

// RequestToggle handles a click on a plug switch. Plugs that need
// confirmation hold their lock and wait for Confirm or Cancel when being
// switched off; everything else starts a reconciliation cycle in the
// background.
func (s *PlugService) RequestToggle(name string, on bool) (ToggleDecision, error) {
	s.expireConfirmations()

	s.mu.Lock()
	rec, err := s.admitLocked(name)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}

	if rec.cfg.ConfirmToggle && !on {
		rec.locked = true
		rec.awaitingConfirm = true
		rec.confirmDesired = on
		rec.confirmDeadline = s.now().Add(s.confirmTimeout)
		rec.switchOn = on
		s.mu.Unlock()
		s.notify.Changed()
		return DecisionConfirm, nil
	}

	s.enterLocked(rec, on)
	s.mu.Unlock()

	s.journal(name, models.EventToggleRequested, "toggle requested", map[string]any{"desired": solar_dashboard.PowerFromBool(on)})
	s.startCycle(name, on)
	return DecisionStarted, nil
}

// Confirm accepts the pending confirmation prompt and starts the cycle.
func (s *PlugService) Confirm(name string) error {
	s.expireConfirmations()

	s.mu.Lock()
	rec, err := s.lookupLocked(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !rec.awaitingConfirm {
		s.mu.Unlock()
		return ErrNoPendingConfirmation
	}
	rec.awaitingConfirm = false
	if s.globalError {
		rec.locked = false
		rec.switchOn = rec.believed.Bool()
		s.mu.Unlock()
		s.notify.Changed()
		return ErrControlsDisabled
	}
	on := rec.confirmDesired
	s.enterLocked(rec, on)
	s.mu.Unlock()

	s.journal(name, models.EventToggleRequested, "toggle confirmed", map[string]any{"desired": solar_dashboard.PowerFromBool(on)})
	s.startCycle(name, on)
	return nil
}

// Cancel rejects the confirmation prompt. The switch reverts, the lock is
// released and nothing is published.
func (s *PlugService) Cancel(name string) error {
	s.expireConfirmations()

	s.mu.Lock()
	rec, err := s.lookupLocked(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !rec.awaitingConfirm {
		s.mu.Unlock()
		return ErrNoPendingConfirmation
	}
	cancelConfirmLocked(rec)
	s.mu.Unlock()

	s.notify.Changed()
	s.journal(name, models.EventCancelled, "toggle cancelled at confirmation", nil)
	return nil
}

// expireConfirmations cancels prompts nobody answered before their deadline,
// the same way Cancel does.
func (s *PlugService) expireConfirmations() {
	s.mu.Lock()
	now := s.now()
	var expired []string
	for _, name := range s.order {
		rec := s.plugs[name]
		if rec.awaitingConfirm && !now.Before(rec.confirmDeadline) {
			cancelConfirmLocked(rec)
			expired = append(expired, name)
		}
	}
	s.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	s.notify.Changed()
	for _, name := range expired {
		s.log.Infow("plug_confirmation_expired", "plug", name, "timeout", s.confirmTimeout)
		s.journal(name, models.EventCancelled, "confirmation timed out", map[string]any{
			"timeout": s.confirmTimeout.String(),
		})
	}
}

func cancelConfirmLocked(rec *plugRecord) {
	rec.awaitingConfirm = false
	rec.locked = false
	rec.switchOn = !rec.confirmDesired
}

// Toggle runs one reconciliation cycle synchronously, without the
// confirmation step.
func (s *PlugService) Toggle(ctx context.Context, name string, on bool) (Outcome, error) {
	s.mu.Lock()
	rec, err := s.admitLocked(name)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.enterLocked(rec, on)
	s.mu.Unlock()
	s.notify.Changed()

	s.journal(name, models.EventToggleRequested, "toggle requested", map[string]any{"desired": solar_dashboard.PowerFromBool(on)})
	return s.reconcile(ctx, name, on)
}

// Wait blocks until every background cycle has finished.
func (s *PlugService) Wait() {
	s.cycles.Wait()
}

func (s *PlugService) admitLocked(name string) (*plugRecord, error) {
	rec, err := s.lookupLocked(name)
	if err != nil {
		return nil, err
	}
	if s.globalError {
		return nil, ErrControlsDisabled
	}
	if rec.locked {
		return nil, ErrPlugBusy
	}
	if !s.enabledLocked(rec) {
		return nil, ErrPlugDisabled
	}
	return rec, nil
}

// enterLocked is the Entry step: own the plug, freeze the control and forget
// any stale query reply.
func (s *PlugService) enterLocked(rec *plugRecord, on bool) {
	rec.locked = true
	rec.disabled = true
	rec.pending = solar_dashboard.PowerUnknown
	rec.switchOn = on
}

func (s *PlugService) startCycle(name string, on bool) {
	s.notify.Changed()
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		// Once the query is out the cycle always runs to completion; the
		// query timeout bounds it.
		if _, err := s.reconcile(context.Background(), name, on); err != nil {
			s.log.Warnw("toggle_cycle_failed", "plug", name, "err", err)
		}
	}()
}

// reconcile runs Await, Decide and Exit for a plug already entered.
func (s *PlugService) reconcile(ctx context.Context, name string, on bool) (Outcome, error) {
	desired := solar_dashboard.PowerFromBool(on)
	cmd := topic.CommandTopic(name)

	if err := s.pub.Publish(cmd, topic.QueryPayload); err != nil {
		s.exit(name, false)
		return OutcomeNotSent, fmt.Errorf("publish state query: %w", err)
	}

	reported := s.awaitQuery(ctx, name)

	switch {
	case reported == solar_dashboard.PowerUnknown:
		s.fail(name, models.EventTimeout, "no state query reply", map[string]any{
			"desired": desired,
			"timeout": s.queryTimeout.String(),
		})
		return OutcomeTimeout, nil

	case reported != desired:
		s.mu.Lock()
		rec := s.plugs[name]
		rec.ownToggles++
		rec.ownToggleUntil = s.now().Add(ownEchoWindow)
		s.mu.Unlock()
		if err := s.pub.Publish(cmd, topic.TogglePayload); err != nil {
			s.mu.Lock()
			rec.ownToggles--
			s.mu.Unlock()
			s.exit(name, false)
			return OutcomeNotSent, fmt.Errorf("publish toggle: %w", err)
		}
		s.exit(name, true)
		s.journal(name, models.EventToggleSent, "toggle sent", map[string]any{
			"desired":  desired,
			"reported": reported,
		})
		return OutcomeToggled, nil

	default:
		s.fail(name, models.EventMismatch, "plug already in target state before toggle", map[string]any{
			"desired":  desired,
			"reported": reported,
		})
		return OutcomeMismatch, nil
	}
}

// awaitQuery polls the pending reply until it is present, the query timeout
// expires or ctx is done. PowerUnknown means no reply.
func (s *PlugService) awaitQuery(ctx context.Context, name string) solar_dashboard.PowerState {
	deadline := time.NewTimer(s.queryTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(s.pollInterval)
	defer tick.Stop()

	for {
		if st := s.pendingReply(name); st != solar_dashboard.PowerUnknown {
			return st
		}
		select {
		case <-ctx.Done():
			return s.pendingReply(name)
		case <-deadline.C:
			return s.pendingReply(name)
		case <-tick.C:
		}
	}
}

// pendingReply consumes the recorded query reply, resetting it to absent.
func (s *PlugService) pendingReply(name string) solar_dashboard.PowerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.plugs[name]
	st := rec.pending
	rec.pending = solar_dashboard.PowerUnknown
	return st
}

// exit releases the lock. The control stays disabled until the next state
// report confirms what the plug is doing. When nothing was sent the switch
// goes back to the believed state.
func (s *PlugService) exit(name string, sent bool) {
	s.mu.Lock()
	rec := s.plugs[name]
	rec.locked = false
	if !sent {
		rec.switchOn = rec.believed.Bool()
	}
	s.mu.Unlock()
	s.notify.Changed()
}

// fail escalates to the permanent global error and releases the lock.
func (s *PlugService) fail(name, eventType, desc string, meta map[string]any) {
	s.mu.Lock()
	s.globalError = true
	rec := s.plugs[name]
	rec.status = solar_dashboard.PlugStatusError
	rec.locked = false
	s.mu.Unlock()

	s.log.Errorw("plug_reconciliation_failed", "plug", name, "reason", eventType)
	s.notify.Changed()
	s.journal(name, eventType, desc, meta)
}
