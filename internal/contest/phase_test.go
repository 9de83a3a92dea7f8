package contest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/market"
	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/utils"
)

func testCalendar(t *testing.T, holidays ...string) *market.Calendar {
	t.Helper()
	cal, err := market.NewCalendar(config.CalendarConfig{
		Equity: config.CalendarRuleConfig{
			Timezone: "Asia/Kolkata",
			Open:     "09:30",
			Close:    "15:30",
			Days:     []string{"mon", "tue", "wed", "thu", "fri"},
			Holidays: holidays,
		},
		Crypto: config.CalendarRuleConfig{Timezone: "UTC", AlwaysOpen: true},
	})
	require.NoError(t, err)
	return cal
}

func marketLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

// dayContest builds an equity daily contest on 2025-01-07 (a Tuesday)
// with the standard 09:29 / 09:30 / 15:30 boundaries.
func dayContest(loc *time.Location) *models.ContestDefinition {
	return &models.ContestDefinition{
		ID:                   "daily-2025-01-07",
		AssetClass:           models.AssetClassEquity,
		Kind:                 models.ContestKindDaily,
		RegistrationDeadline: time.Date(2025, 1, 7, 9, 29, 0, 0, loc),
		MarketStart:          time.Date(2025, 1, 7, 9, 30, 0, 0, loc),
		MarketEnd:            time.Date(2025, 1, 7, 15, 30, 0, 0, loc),
		EntryFee:             decimal.NewFromInt(49),
		StartingCapital:      decimal.NewFromInt(100000),
		PrizePool:            decimal.NewFromInt(1000),
		MaxParticipants:      500,
	}
}

func TestPhase_LifecycleScenario(t *testing.T) {
	loc := marketLoc(t)
	engine := NewStatusEngine(testCalendar(t))
	def := dayContest(loc)

	tests := []struct {
		name  string
		at    time.Time
		phase models.ContestPhase
	}{
		{"before deadline", time.Date(2025, 1, 7, 9, 15, 0, 0, loc), models.PhaseRegistration},
		{"selection window", time.Date(2025, 1, 7, 9, 29, 30, 0, loc), models.PhasePortfolioSelection},
		{"mid session", time.Date(2025, 1, 7, 12, 0, 0, 0, loc), models.PhaseLive},
		{"after close", time.Date(2025, 1, 7, 15, 31, 0, 0, loc), models.PhaseCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, err := engine.Phase(def, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.phase, phase)
		})
	}
}

func TestPhase_Monotonicity(t *testing.T) {
	loc := marketLoc(t)
	engine := NewStatusEngine(testCalendar(t))
	def := dayContest(loc)

	order := map[models.ContestPhase]int{
		models.PhaseRegistration:       0,
		models.PhasePortfolioSelection: 1,
		models.PhaseLive:               2,
		models.PhaseCompleted:          3,
	}

	previous := -1
	at := time.Date(2025, 1, 7, 9, 0, 0, 0, loc)
	for at.Before(time.Date(2025, 1, 7, 16, 0, 0, 0, loc)) {
		phase, err := engine.Phase(def, at)
		require.NoError(t, err)
		rank, ok := order[phase]
		require.True(t, ok, "unexpected phase %s", phase)
		assert.GreaterOrEqual(t, rank, previous, "phase regressed at %s", at)
		previous = rank
		at = at.Add(30 * time.Second)
	}
	assert.Equal(t, order[models.PhaseCompleted], previous)
}

func TestPhase_DeterministicForSameInputs(t *testing.T) {
	loc := marketLoc(t)
	engine := NewStatusEngine(testCalendar(t))
	def := dayContest(loc)
	at := time.Date(2025, 1, 7, 12, 0, 0, 0, loc)

	first, err := engine.Phase(def, at)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := engine.Phase(def, at)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPhase_EquityHolidaySuspends(t *testing.T) {
	loc := marketLoc(t)
	// The contest day turns out to be an unscheduled holiday.
	engine := NewStatusEngine(testCalendar(t, "2025-01-07"))
	def := dayContest(loc)

	phase, err := engine.Phase(def, time.Date(2025, 1, 7, 12, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSuspended, phase)

	// After the nominal window the contest still completes; deferral is
	// the settlement coordinator's concern.
	phase, err = engine.Phase(def, time.Date(2025, 1, 7, 15, 31, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCompleted, phase)
	assert.False(t, engine.MarketEverOpened(def))
}

func TestPhase_CryptoUnaffectedByEquityCalendar(t *testing.T) {
	loc := marketLoc(t)
	engine := NewStatusEngine(testCalendar(t, "2025-01-07"))

	def := dayContest(loc)
	def.ID = "crypto-daily"
	def.AssetClass = models.AssetClassCrypto

	phase, err := engine.Phase(def, time.Date(2025, 1, 7, 12, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLive, phase)
	assert.True(t, engine.MarketEverOpened(def))
}

func TestPhase_WeeklyContestLiveOverWeekend(t *testing.T) {
	loc := marketLoc(t)
	engine := NewStatusEngine(testCalendar(t))

	def := dayContest(loc)
	def.ID = "weekly-2025-01-06"
	def.Kind = models.ContestKindWeekly
	def.RegistrationDeadline = time.Date(2025, 1, 6, 9, 29, 0, 0, loc)
	def.MarketStart = time.Date(2025, 1, 6, 9, 30, 0, 0, loc)
	def.MarketEnd = time.Date(2025, 1, 10, 15, 30, 0, 0, loc)

	// Wednesday evening is off-hours but the market has traded since the
	// window opened, so the contest stays live.
	phase, err := engine.Phase(def, time.Date(2025, 1, 8, 20, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLive, phase)
}

func TestPhase_MalformedDefinition(t *testing.T) {
	loc := marketLoc(t)
	engine := NewStatusEngine(testCalendar(t))

	def := dayContest(loc)
	def.MarketStart = def.RegistrationDeadline.Add(-time.Minute)

	_, err := engine.Phase(def, time.Date(2025, 1, 7, 12, 0, 0, 0, loc))
	require.Error(t, err)
	assert.True(t, utils.IsConfigurationError(err))

	def = dayContest(loc)
	def.MarketEnd = def.MarketStart
	_, err = engine.Phase(def, time.Date(2025, 1, 7, 12, 0, 0, 0, loc))
	require.Error(t, err)
	assert.True(t, utils.IsConfigurationError(err))
}
