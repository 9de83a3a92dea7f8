package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/contest"
	"github.com/tradeclash/contest-engine/internal/logging"
	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/settlement"
	"github.com/tradeclash/contest-engine/internal/utils"
)

// Trigger names. Each maps to one configured clock.
const (
	TriggerRegistrationClose = "registration-close"
	TriggerMarketOpen        = "market-open"
	TriggerMarketClose       = "market-close"
	TriggerSettle            = "settle"
	TriggerOpenNextContests  = "open-next-contests"
)

// ContestSource is the registry surface the scheduled actions need.
type ContestSource interface {
	GetOpenContests() []models.ContestDefinition
	CreateContest(ctx context.Context, def *models.ContestDefinition) error
}

// Settler settles a single contest by ID.
type Settler interface {
	Settle(ctx context.Context, contestID string) (*models.SettlementResult, error)
}

// Notifier receives lifecycle announcements. Implementations must be
// safe to call with best-effort semantics; failures are logged, never
// propagated.
type Notifier interface {
	ContestOpened(ctx context.Context, def *models.ContestDefinition) error
	RegistrationClosed(ctx context.Context, def *models.ContestDefinition) error
}

// ActionSet binds the five scheduled actions to the domain services.
type ActionSet struct {
	registry  ContestSource
	factory   *contest.Factory
	settler   Settler
	refresher settlement.Refresher
	notifier  Notifier
	logger    *logrus.Logger
}

func NewActionSet(registry ContestSource, factory *contest.Factory, settler Settler, refresher settlement.Refresher, notifier Notifier, logger *logrus.Logger) *ActionSet {
	return &ActionSet{
		registry:  registry,
		factory:   factory,
		settler:   settler,
		refresher: refresher,
		notifier:  notifier,
		logger:    logger,
	}
}

// RegisterAll wires the full trigger set into the scheduler using the
// configured clocks. The settle and open-next triggers fire every
// calendar day because crypto contests settle on holidays too; the
// market-open and market-close triggers are equity-only.
func (a *ActionSet) RegisterAll(s *Scheduler, cfg config.SchedulerConfig) error {
	bindings := []struct {
		name       string
		clock      string
		equityOnly bool
		action     Action
	}{
		{TriggerRegistrationClose, cfg.RegistrationClose, true, a.CloseRegistrations},
		{TriggerMarketOpen, cfg.MarketOpen, true, a.MarketOpen},
		{TriggerMarketClose, cfg.MarketClose, true, a.MarketClose},
		{TriggerSettle, cfg.Settle, false, a.SettleContests},
		{TriggerOpenNextContests, cfg.OpenNextContests, false, a.OpenNextContests},
	}

	for _, b := range bindings {
		hour, minute, err := config.ParseClock(b.clock)
		if err != nil {
			return utils.NewConfigurationErrorf("invalid clock for trigger %s: %v", b.name, err)
		}
		if err := s.Register(Trigger{
			Name:       b.name,
			Hour:       hour,
			Minute:     minute,
			EquityOnly: b.equityOnly,
			Action:     b.action,
		}); err != nil {
			return err
		}
	}
	return nil
}

// CloseRegistrations announces every contest whose registration window
// just ended. Phase derivation needs no action here; the announcement
// is the only side effect.
func (a *ActionSet) CloseRegistrations(ctx context.Context, fireTime time.Time) error {
	for _, def := range a.registry.GetOpenContests() {
		if def.RegistrationDeadline.After(fireTime) || !def.MarketStart.After(fireTime) {
			continue
		}
		a.logger.WithFields(logrus.Fields{
			"contest_id":   def.ID,
			"market_start": def.MarketStart.Format(time.RFC3339),
		}).Info("Registration closed")
		if a.notifier != nil {
			a.logNotifyErr(def.ID, "registration_closed", a.notifier.RegistrationClosed(ctx, &def))
		}
	}
	return nil
}

// MarketOpen refreshes equity prices so live valuations start the day
// from fresh quotes.
func (a *ActionSet) MarketOpen(ctx context.Context, fireTime time.Time) error {
	a.logger.WithField("fire_time", fireTime.Format(time.RFC3339)).Info("Market open")
	return a.refresher.RefreshPrices(ctx, models.AssetClassEquity)
}

// MarketClose refreshes equity prices one final time so settlement
// ranks on closing values.
func (a *ActionSet) MarketClose(ctx context.Context, fireTime time.Time) error {
	a.logger.WithField("fire_time", fireTime.Format(time.RFC3339)).Info("Market close")
	return a.refresher.RefreshPrices(ctx, models.AssetClassEquity)
}

// SettleContests attempts to settle every open contest. Contests still
// in flight or deferred by a closed market are skipped quietly; real
// failures are logged per contest and never abort the sweep.
func (a *ActionSet) SettleContests(ctx context.Context, fireTime time.Time) error {
	open := a.registry.GetOpenContests()
	settled, failed := 0, 0
	for _, def := range open {
		_, err := a.settler.Settle(ctx, def.ID)
		switch {
		case err == nil:
			settled++
		case errors.Is(err, settlement.ErrNotYetClosed), errors.Is(err, settlement.ErrSettlementDeferred):
			logging.WithContest(a.logger, def.ID).WithError(err).Debug("Contest not ready for settlement")
		default:
			failed++
			logging.WithContest(a.logger, def.ID).WithError(err).Error("Settlement failed")
		}
	}
	a.logger.WithFields(logrus.Fields{
		"open":    len(open),
		"settled": settled,
		"failed":  failed,
	}).Info("Settlement sweep finished")
	return nil
}

// OpenNextContests instantiates the next period's contests from the
// configured templates. Duplicate IDs from a re-fire or restart are
// silently skipped.
func (a *ActionSet) OpenNextContests(ctx context.Context, fireTime time.Time) error {
	defs, err := a.factory.NextContests(fireTime)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := a.registry.CreateContest(ctx, def); err != nil {
			if errors.Is(err, contest.ErrDuplicateContest) {
				logging.WithContest(a.logger, def.ID).Debug("Contest already exists")
				continue
			}
			logging.WithContest(a.logger, def.ID).WithError(err).Error("Failed to create contest")
			continue
		}
		a.logger.WithFields(logrus.Fields{
			"contest_id":   def.ID,
			"kind":         def.Kind,
			"asset_class":  def.AssetClass,
			"market_start": def.MarketStart.Format(time.RFC3339),
		}).Info("Contest opened")
		if a.notifier != nil {
			a.logNotifyErr(def.ID, "contest_opened", a.notifier.ContestOpened(ctx, def))
		}
	}
	return nil
}

func (a *ActionSet) logNotifyErr(contestID, event string, err error) {
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"contest_id": contestID,
			"event":      event,
		}).WithError(err).Warn("Notification failed")
	}
}
