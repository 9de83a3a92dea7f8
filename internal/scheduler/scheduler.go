package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradeclash/contest-engine/internal/logging"
	"github.com/tradeclash/contest-engine/internal/market"
	"github.com/tradeclash/contest-engine/internal/models"
)

// Action is the work bound to a trigger. fireTime is the nominal local
// target the trigger was armed for, not the instant the timer woke.
type Action func(ctx context.Context, fireTime time.Time) error

// Trigger is a named recurring wall-clock event. Hour and minute are a
// local clock in the equity market timezone; EquityOnly triggers are
// skipped entirely on non-trading days and re-arm at the next trading
// day instead of the next calendar day.
type Trigger struct {
	Name       string
	Hour       int
	Minute     int
	EquityOnly bool
	Action     Action
}

// triggerState tracks a trigger's firing bookkeeping. Each trigger is
// owned by exactly one goroutine, so lastFired needs no lock.
type triggerState struct {
	trigger Trigger
	// Local date ("2006-01-02") of the last firing. Guards against a
	// double fire for the same nominal occurrence after a restart or a
	// clock hiccup.
	lastFired string
}

// Scheduler runs a fixed pool of timer-driven triggers. Each trigger
// suspends until its absolute target time, re-validates the calendar,
// runs its action to completion and re-arms. Targets are recomputed
// from the current wall clock at every arm, never accumulated from
// relative delays, so long sleeps cannot drift the schedule.
type Scheduler struct {
	calendar *market.Calendar
	logger   *logrus.Logger
	loc      *time.Location
	tracer   trace.Tracer

	mu       sync.Mutex
	triggers []*triggerState
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

// New creates a scheduler whose trigger clocks are interpreted in the
// equity market timezone.
func New(calendar *market.Calendar, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		calendar: calendar,
		logger:   logger,
		loc:      calendar.Location(models.AssetClassEquity),
		tracer:   otel.Tracer("scheduler"),
	}
}

// Register adds a trigger. All triggers must be registered before Start.
func (s *Scheduler) Register(t Trigger) error {
	if t.Name == "" {
		return fmt.Errorf("trigger name must not be empty")
	}
	if t.Action == nil {
		return fmt.Errorf("trigger %s has no action", t.Name)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("trigger %s has invalid clock %02d:%02d", t.Name, t.Hour, t.Minute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("cannot register trigger %s on a running scheduler", t.Name)
	}
	for _, existing := range s.triggers {
		if existing.trigger.Name == t.Name {
			return fmt.Errorf("trigger %s already registered", t.Name)
		}
	}
	s.triggers = append(s.triggers, &triggerState{trigger: t})
	return nil
}

// Start arms every registered trigger and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	triggers := s.triggers
	s.mu.Unlock()

	s.logger.WithField("triggers", len(triggers)).Info("Scheduler starting")
	for _, st := range triggers {
		s.wg.Add(1)
		go s.runTrigger(ctx, st)
	}
	return nil
}

// Stop cancels all pending timers and waits for in-flight actions to
// finish. Actions receive a non-cancellable context, so an in-flight
// settlement always runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// runTrigger owns one trigger: arm, sleep, fire, re-arm.
func (s *Scheduler) runTrigger(ctx context.Context, st *triggerState) {
	defer s.wg.Done()
	logger := logging.WithTrigger(s.logger, st.trigger.Name)

	for {
		target, err := s.nextTarget(st, time.Now())
		if err != nil {
			logger.WithError(err).Error("Cannot compute next fire time, trigger disabled")
			return
		}

		logger.WithField("next_fire", target.Format(time.RFC3339)).Debug("Trigger armed")
		timer := time.NewTimer(time.Until(target))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.fire(ctx, st, target)
	}
}

// nextTarget computes the absolute next occurrence of the trigger's
// clock, rolling past already-elapsed times and, for equity-only
// triggers, past non-trading days. It always lands strictly in the
// future so a missed occurrence is skipped, never double-fired.
func (s *Scheduler) nextTarget(st *triggerState, now time.Time) (time.Time, error) {
	target := nextOccurrence(now.In(s.loc), st.trigger.Hour, st.trigger.Minute)

	// Never re-target the occurrence that already fired.
	if st.lastFired == target.Format("2006-01-02") {
		target = target.AddDate(0, 0, 1)
	}

	if st.trigger.EquityOnly && !s.calendar.TradesOn(models.AssetClassEquity, target) {
		next, err := s.calendar.NextTradingDayAt(models.AssetClassEquity, target, st.trigger.Hour, st.trigger.Minute)
		if err != nil {
			return time.Time{}, err
		}
		target = next
	}
	return target, nil
}

// fire runs the trigger's action with panic and error isolation: one
// failing action never prevents later firings or other triggers.
func (s *Scheduler) fire(ctx context.Context, st *triggerState, target time.Time) {
	logger := s.logger.WithFields(logrus.Fields{
		"trigger":   st.trigger.Name,
		"fire_time": target.Format(time.RFC3339),
	})

	date := target.Format("2006-01-02")
	if st.lastFired == date {
		logger.Debug("Trigger already fired for this occurrence, skipping")
		return
	}
	st.lastFired = date

	if st.trigger.EquityOnly && !s.calendar.TradesOn(models.AssetClassEquity, target) {
		logger.Info("Market closed today, skipping trigger")
		return
	}

	fireCtx, span := s.tracer.Start(context.WithoutCancel(ctx), "scheduler.fire",
		trace.WithAttributes(attribute.String("trigger.name", st.trigger.Name)))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Trigger action panicked")
		}
	}()

	if err := st.trigger.Action(fireCtx, target); err != nil {
		logger.WithError(err).WithField("duration", time.Since(start)).Error("Trigger action failed")
		return
	}
	logger.WithField("duration", time.Since(start)).Info("Trigger fired")
}

// nextOccurrence returns the next occurrence of hour:minute at or
// after now, rolling to tomorrow when today's occurrence has passed.
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}
