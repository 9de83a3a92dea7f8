package contest

import (
	"time"

	"github.com/tradeclash/contest-engine/internal/market"
	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/utils"
)

// StatusEngine derives a contest's lifecycle phase from its definition
// and the current time. Phase is never stored as authoritative state;
// repeated calls with identical inputs return identical results, which
// makes re-evaluation after a process restart safe.
type StatusEngine struct {
	calendar *market.Calendar
}

// NewStatusEngine creates a status engine backed by the given calendar.
func NewStatusEngine(calendar *market.Calendar) *StatusEngine {
	return &StatusEngine{calendar: calendar}
}

// Phase computes the lifecycle phase of a contest at the given instant.
// A malformed definition (timestamps not strictly increasing) returns a
// ConfigurationError rather than a phase: that is a fatal data-integrity
// condition, not something a retry can fix.
func (e *StatusEngine) Phase(def *models.ContestDefinition, now time.Time) (models.ContestPhase, error) {
	if err := ValidateDefinition(def); err != nil {
		return "", err
	}

	switch {
	case now.Before(def.RegistrationDeadline):
		return models.PhaseRegistration, nil
	case now.Before(def.MarketStart):
		// Intentionally short window between deadline and market start.
		return models.PhasePortfolioSelection, nil
	case now.Before(def.MarketEnd):
		if def.AssetClass == models.AssetClassCrypto {
			return models.PhaseLive, nil
		}
		if e.calendar.IsActive(def.AssetClass, now) {
			return models.PhaseLive, nil
		}
		if e.marketOpenedDuring(def, now) {
			// Off-hours inside a multi-day window; the market has traded
			// since the contest went live.
			return models.PhaseLive, nil
		}
		return models.PhaseSuspended, nil
	default:
		return models.PhaseCompleted, nil
	}
}

// MarketEverOpened reports whether the contest's underlying market
// traded at any point during its nominal live window. Settlement is
// deferred for equity contests whose market never opened, so stale
// prices are never credited.
func (e *StatusEngine) MarketEverOpened(def *models.ContestDefinition) bool {
	if def.AssetClass == models.AssetClassCrypto {
		return true
	}
	return e.marketOpenedDuring(def, def.MarketEnd)
}

// marketOpenedDuring walks the contest window day by day in the market
// timezone and reports whether any of those days was a trading day.
func (e *StatusEngine) marketOpenedDuring(def *models.ContestDefinition, until time.Time) bool {
	loc := e.calendar.Location(def.AssetClass)
	if until.After(def.MarketEnd) {
		until = def.MarketEnd
	}

	day := def.MarketStart.In(loc)
	end := until.In(loc)
	for !day.After(end) {
		if e.calendar.TradesOn(def.AssetClass, day) {
			return true
		}
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}
	return false
}

// ValidateDefinition checks the temporal integrity of a contest.
// Deadline, market start and market end must be strictly increasing; a
// negative portfolio-selection gap is a configuration fault.
func ValidateDefinition(def *models.ContestDefinition) error {
	if def == nil {
		return utils.NewConfigurationError("contest definition is nil")
	}
	if !def.AssetClass.Valid() {
		return utils.NewConfigurationErrorf("contest %s: unknown asset class %q", def.ID, def.AssetClass)
	}
	if def.RegistrationDeadline.IsZero() || def.MarketStart.IsZero() || def.MarketEnd.IsZero() {
		return utils.NewConfigurationErrorf("contest %s: missing lifecycle timestamps", def.ID)
	}
	if !def.MarketStart.After(def.RegistrationDeadline) {
		return utils.NewConfigurationErrorf("contest %s: market start %s not after registration deadline %s",
			def.ID, def.MarketStart.Format(time.RFC3339), def.RegistrationDeadline.Format(time.RFC3339))
	}
	if !def.MarketEnd.After(def.MarketStart) {
		return utils.NewConfigurationErrorf("contest %s: market end %s not after market start %s",
			def.ID, def.MarketEnd.Format(time.RFC3339), def.MarketStart.Format(time.RFC3339))
	}
	return nil
}
