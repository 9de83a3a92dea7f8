package settlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradeclash/contest-engine/internal/contest"
	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/prize"
)

var (
	// ErrNotYetClosed is returned when settlement is invoked before the
	// contest phase reaches Completed. It is a caller precondition
	// violation and is never retried automatically here.
	ErrNotYetClosed = errors.New("settlement: contest not yet closed")
	// ErrSettlementDeferred is returned for an equity contest whose
	// underlying market never opened during its window. Settling it would
	// credit stale prices, so settlement waits.
	ErrSettlementDeferred = errors.New("settlement: deferred, market never opened during contest window")
	// ErrAlreadySettled is returned when the contest carries a settled
	// flag but this process holds no result for it (restart with
	// persisted state); the recorded result lives in persistence.
	ErrAlreadySettled = errors.New("settlement: contest already settled")
)

// Refresher triggers a refresh of the underlying price feed.
type Refresher interface {
	RefreshPrices(ctx context.Context, class models.AssetClass) error
}

// refreshWatermark is the optional feed surface reporting when prices
// were last successfully refreshed. When a refresh fails, the age of
// the stale prices is included in the degraded-settlement log.
type refreshWatermark interface {
	LastRefreshed(ctx context.Context, class models.AssetClass) time.Time
}

// Valuer values a participant's portfolio with current prices.
type Valuer interface {
	PortfolioValue(ctx context.Context, portfolioID string) (decimal.Decimal, error)
}

// Publisher emits payout instructions once a contest settles.
type Publisher interface {
	PublishPayouts(ctx context.Context, def *models.ContestDefinition, result *models.SettlementResult) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Coordinator settles closed contests: it ranks participants, computes
// the prize table and emits payout instructions. Settlement is
// idempotent; the scheduler may legitimately fire the settle trigger
// more than once after a restart.
type Coordinator struct {
	registry       *contest.Registry
	engine         *contest.StatusEngine
	refresher      Refresher
	valuer         Valuer
	publisher      Publisher
	clock          Clock
	logger         *logrus.Logger
	refreshTimeout time.Duration
	tracer         trace.Tracer

	mu      sync.Mutex
	results map[string]*models.SettlementResult
}

// NewCoordinator constructs the settlement coordinator. clock may be
// nil, publisher may be nil (payouts are then only logged).
func NewCoordinator(
	registry *contest.Registry,
	engine *contest.StatusEngine,
	refresher Refresher,
	valuer Valuer,
	publisher Publisher,
	clock Clock,
	refreshTimeout time.Duration,
	logger *logrus.Logger,
) *Coordinator {
	if clock == nil {
		clock = SystemClock{}
	}
	if refreshTimeout <= 0 {
		refreshTimeout = 10 * time.Second
	}
	return &Coordinator{
		registry:       registry,
		engine:         engine,
		refresher:      refresher,
		valuer:         valuer,
		publisher:      publisher,
		clock:          clock,
		logger:         logger,
		refreshTimeout: refreshTimeout,
		tracer:         otel.Tracer("settlement"),
		results:        make(map[string]*models.SettlementResult),
	}
}

// Result returns the settlement result for a contest if it has been
// settled in this process.
func (c *Coordinator) Result(contestID string) (*models.SettlementResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.results[contestID]
	return result, ok
}

// Settle settles one contest. Invoking it twice returns the first
// computed result without recomputation or a second payout emission.
func (c *Coordinator) Settle(ctx context.Context, contestID string) (*models.SettlementResult, error) {
	ctx, span := c.tracer.Start(ctx, "settlement.Settle",
		trace.WithAttributes(attribute.String("contest.id", contestID)))
	defer span.End()

	c.mu.Lock()
	if cached, ok := c.results[contestID]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	def, err := c.registry.GetContest(contestID)
	if err != nil {
		return nil, err
	}
	if def.Settled {
		return nil, ErrAlreadySettled
	}

	now := c.clock.Now()
	phase, err := c.engine.Phase(def, now)
	if err != nil {
		return nil, err
	}
	switch phase {
	case models.PhaseCompleted:
		if !c.engine.MarketEverOpened(def) {
			return nil, ErrSettlementDeferred
		}
	case models.PhaseSuspended:
		return nil, ErrSettlementDeferred
	default:
		return nil, ErrNotYetClosed
	}

	degraded := c.refreshPrices(ctx, def)

	rankings, valuationDegraded, err := c.rankParticipants(ctx, def)
	if err != nil {
		return nil, err
	}
	degraded = degraded || valuationDegraded

	awards, err := c.buildAwards(def, rankings)
	if err != nil {
		return nil, err
	}

	result := &models.SettlementResult{
		ContestID: contestID,
		SettledAt: now,
		Degraded:  degraded,
		Rankings:  rankings,
		Awards:    awards,
	}

	// Record the result before emitting payouts so a publisher failure
	// can never cause a second computation.
	c.mu.Lock()
	if cached, ok := c.results[contestID]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.results[contestID] = result
	c.mu.Unlock()

	if err := c.registry.MarkSettled(ctx, contestID); err != nil {
		c.logger.WithError(err).WithField("contest_id", contestID).Error("Failed to mark contest settled")
	}

	c.emitPayouts(ctx, def, result)

	c.logger.WithFields(logrus.Fields{
		"contest_id":   contestID,
		"participants": len(rankings),
		"awards":       len(awards),
		"degraded":     degraded,
	}).Info("Contest settled")
	return result, nil
}

// refreshPrices refreshes the feed with a bounded wait. A failed or
// timed-out refresh degrades the settlement to last-known prices; it
// never blocks payout indefinitely.
func (c *Coordinator) refreshPrices(ctx context.Context, def *models.ContestDefinition) bool {
	if c.refresher == nil {
		return false
	}

	refreshCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	if err := c.refresher.RefreshPrices(refreshCtx, def.AssetClass); err != nil {
		fields := logrus.Fields{
			"contest_id":  def.ID,
			"asset_class": def.AssetClass,
		}
		if w, ok := c.refresher.(refreshWatermark); ok {
			if last := w.LastRefreshed(ctx, def.AssetClass); !last.IsZero() {
				fields["price_age"] = c.clock.Now().Sub(last).String()
			}
		}
		c.logger.WithError(err).WithFields(fields).Warn("Price refresh failed, settling with last-known prices")
		return true
	}
	return false
}

// rankParticipants orders participants by final portfolio value
// descending, breaking ties by earliest entry. The tie-break is
// deterministic and independent of insertion order.
func (c *Coordinator) rankParticipants(ctx context.Context, def *models.ContestDefinition) ([]models.RankedParticipant, bool, error) {
	participants, err := c.registry.Participants(def.ID)
	if err != nil {
		return nil, false, err
	}

	degraded := false
	for i := range participants {
		value, err := c.valuer.PortfolioValue(ctx, participants[i].PortfolioID)
		if err != nil {
			// Value falls back to the contest's starting capital rather
			// than stalling the whole settlement.
			c.logger.WithError(err).WithFields(logrus.Fields{
				"contest_id":   def.ID,
				"portfolio_id": participants[i].PortfolioID,
			}).Warn("Portfolio valuation failed, using starting capital")
			value = def.StartingCapital
			degraded = true
		}
		participants[i].FinalValue = value
	}

	sort.SliceStable(participants, func(i, j int) bool {
		cmp := participants[i].FinalValue.Cmp(participants[j].FinalValue)
		if cmp != 0 {
			return cmp > 0
		}
		if !participants[i].EnteredAt.Equal(participants[j].EnteredAt) {
			return participants[i].EnteredAt.Before(participants[j].EnteredAt)
		}
		return participants[i].UserID < participants[j].UserID
	})

	rankings := make([]models.RankedParticipant, len(participants))
	for i, p := range participants {
		rankings[i] = models.RankedParticipant{Participant: p, Rank: i + 1}
	}
	return rankings, degraded, nil
}

// buildAwards pairs the prize table with the ranked participants.
// Participants beyond rank 10 receive no entry at all.
func (c *Coordinator) buildAwards(def *models.ContestDefinition, rankings []models.RankedParticipant) ([]models.PayoutInstruction, error) {
	entries, err := prize.Distribute(def.PrizePool)
	if err != nil {
		return nil, err
	}

	limit := len(rankings)
	if limit > len(entries) {
		limit = len(entries)
	}

	awards := make([]models.PayoutInstruction, 0, limit)
	for i := 0; i < limit; i++ {
		awards = append(awards, models.PayoutInstruction{
			ContestID: def.ID,
			UserID:    rankings[i].UserID,
			Rank:      entries[i].Rank,
			Amount:    entries[i].Amount,
		})
	}
	return awards, nil
}

func (c *Coordinator) emitPayouts(ctx context.Context, def *models.ContestDefinition, result *models.SettlementResult) {
	if c.publisher == nil {
		for _, award := range result.Awards {
			c.logger.WithFields(logrus.Fields{
				"contest_id": award.ContestID,
				"user_id":    award.UserID,
				"rank":       award.Rank,
				"amount":     award.Amount.String(),
			}).Info("Payout instruction")
		}
		return
	}
	if err := c.publisher.PublishPayouts(ctx, def, result); err != nil {
		c.logger.WithError(err).WithField("contest_id", def.ID).Error("Failed to publish payout instructions")
	}
}
