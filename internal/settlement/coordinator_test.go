package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/contest"
	"github.com/tradeclash/contest-engine/internal/market"
	"github.com/tradeclash/contest-engine/internal/models"
)

// MockRefresher implements Refresher for testing
type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) RefreshPrices(ctx context.Context, class models.AssetClass) error {
	args := m.Called(ctx, class)
	return args.Error(0)
}

// MockValuer implements Valuer for testing
type MockValuer struct {
	mock.Mock
}

func (m *MockValuer) PortfolioValue(ctx context.Context, portfolioID string) (decimal.Decimal, error) {
	args := m.Called(ctx, portfolioID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockPublisher implements Publisher for testing
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishPayouts(ctx context.Context, def *models.ContestDefinition, result *models.SettlementResult) error {
	args := m.Called(ctx, def, result)
	return args.Error(0)
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fixture struct {
	registry  *contest.Registry
	engine    *contest.StatusEngine
	refresher *MockRefresher
	valuer    *MockValuer
	publisher *MockPublisher
	coord     *Coordinator
	loc       *time.Location
	def       *models.ContestDefinition
}

func newFixture(t *testing.T, clockAt string, holidays ...string) *fixture {
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

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	f := &fixture{
		registry:  contest.NewRegistry(quietLogger(), nil),
		engine:    contest.NewStatusEngine(cal),
		refresher: &MockRefresher{},
		valuer:    &MockValuer{},
		publisher: &MockPublisher{},
		loc:       loc,
	}

	f.def = &models.ContestDefinition{
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
	require.NoError(t, f.registry.CreateContest(context.Background(), f.def))

	at, err := time.ParseInLocation("2006-01-02 15:04:05", clockAt, loc)
	require.NoError(t, err)

	f.coord = NewCoordinator(f.registry, f.engine, f.refresher, f.valuer, f.publisher,
		fixedClock{at: at}, 5*time.Second, quietLogger())
	return f
}

func (f *fixture) addParticipant(t *testing.T, userID string, enteredAt time.Time, finalValue int64) {
	t.Helper()
	require.NoError(t, f.registry.RecordParticipant(context.Background(), f.def.ID, &models.Participant{
		UserID:      userID,
		PortfolioID: "pf-" + userID,
		EnteredAt:   enteredAt,
	}))
	f.valuer.On("PortfolioValue", mock.Anything, "pf-"+userID).
		Return(decimal.NewFromInt(finalValue), nil)
}

func TestSettle_HappyPath(t *testing.T) {
	f := newFixture(t, "2025-01-07 15:35:00")
	entered := time.Date(2025, 1, 7, 9, 0, 0, 0, f.loc)

	f.addParticipant(t, "u1", entered, 110000)
	f.addParticipant(t, "u2", entered.Add(time.Minute), 125000)
	f.addParticipant(t, "u3", entered.Add(2*time.Minute), 90000)

	f.refresher.On("RefreshPrices", mock.Anything, models.AssetClassEquity).Return(nil)
	f.publisher.On("PublishPayouts", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.coord.Settle(context.Background(), f.def.ID)
	require.NoError(t, err)

	require.Len(t, result.Rankings, 3)
	assert.Equal(t, "u2", result.Rankings[0].UserID)
	assert.Equal(t, "u1", result.Rankings[1].UserID)
	assert.Equal(t, "u3", result.Rankings[2].UserID)
	assert.False(t, result.Degraded)

	require.Len(t, result.Awards, 3)
	assert.Equal(t, 1, result.Awards[0].Rank)
	assert.True(t, result.Awards[0].Amount.Equal(decimal.NewFromInt(400)))
	assert.True(t, result.Awards[1].Amount.Equal(decimal.NewFromInt(200)))
	assert.True(t, result.Awards[2].Amount.Equal(decimal.NewFromInt(100)))

	def, err := f.registry.GetContest(f.def.ID)
	require.NoError(t, err)
	assert.True(t, def.Settled)
	f.publisher.AssertNumberOfCalls(t, "PublishPayouts", 1)
}

func TestSettle_Idempotent(t *testing.T) {
	f := newFixture(t, "2025-01-07 15:35:00")
	entered := time.Date(2025, 1, 7, 9, 0, 0, 0, f.loc)
	f.addParticipant(t, "u1", entered, 110000)

	f.refresher.On("RefreshPrices", mock.Anything, models.AssetClassEquity).Return(nil)
	f.publisher.On("PublishPayouts", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first, err := f.coord.Settle(context.Background(), f.def.ID)
	require.NoError(t, err)
	second, err := f.coord.Settle(context.Background(), f.def.ID)
	require.NoError(t, err)

	assert.Same(t, first, second, "second settle returns the stored result")
	assert.Equal(t, first, second)
	f.refresher.AssertNumberOfCalls(t, "RefreshPrices", 1)
	f.publisher.AssertNumberOfCalls(t, "PublishPayouts", 1)
}

func TestSettle_NotYetClosed(t *testing.T) {
	f := newFixture(t, "2025-01-07 12:00:00")
	_, err := f.coord.Settle(context.Background(), f.def.ID)
	assert.ErrorIs(t, err, ErrNotYetClosed)
	f.refresher.AssertNotCalled(t, "RefreshPrices")
}

func TestSettle_DeferredWhenMarketNeverOpened(t *testing.T) {
	f := newFixture(t, "2025-01-07 15:35:00", "2025-01-07")
	_, err := f.coord.Settle(context.Background(), f.def.ID)
	assert.ErrorIs(t, err, ErrSettlementDeferred)

	def, err := f.registry.GetContest(f.def.ID)
	require.NoError(t, err)
	assert.False(t, def.Settled)
}

func TestSettle_DegradedOnRefreshFailure(t *testing.T) {
	f := newFixture(t, "2025-01-07 15:35:00")
	entered := time.Date(2025, 1, 7, 9, 0, 0, 0, f.loc)
	f.addParticipant(t, "u1", entered, 110000)

	f.refresher.On("RefreshPrices", mock.Anything, models.AssetClassEquity).
		Return(errors.New("feed unavailable"))
	f.publisher.On("PublishPayouts", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.coord.Settle(context.Background(), f.def.ID)
	require.NoError(t, err, "refresh failure must not block settlement")
	assert.True(t, result.Degraded)
	require.Len(t, result.Awards, 1)
}

// MockWatermarkRefresher is a MockRefresher that also reports when
// prices were last refreshed.
type MockWatermarkRefresher struct {
	MockRefresher
	last time.Time
}

func (m *MockWatermarkRefresher) LastRefreshed(ctx context.Context, class models.AssetClass) time.Time {
	return m.last
}

func TestSettle_DegradedLogsStalePriceAge(t *testing.T) {
	f := newFixture(t, "2025-01-07 15:35:00")
	entered := time.Date(2025, 1, 7, 9, 0, 0, 0, f.loc)
	f.addParticipant(t, "u1", entered, 110000)

	refresher := &MockWatermarkRefresher{last: f.coord.clock.Now().Add(-45 * time.Minute)}
	refresher.On("RefreshPrices", mock.Anything, models.AssetClassEquity).
		Return(errors.New("feed unavailable"))
	f.publisher.On("PublishPayouts", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	logger, hook := logrustest.NewNullLogger()
	coord := NewCoordinator(f.registry, f.engine, refresher, f.valuer, f.publisher,
		f.coord.clock, 5*time.Second, logger)

	result, err := coord.Settle(context.Background(), f.def.ID)
	require.NoError(t, err)
	assert.True(t, result.Degraded)

	var age interface{}
	for _, entry := range hook.AllEntries() {
		if v, ok := entry.Data["price_age"]; ok {
			age = v
		}
	}
	require.NotNil(t, age, "degraded settlement should log the stale price age")
	assert.Equal(t, "45m0s", age)
}

func TestSettle_TieBreakByEntryTime(t *testing.T) {
	entered := func(loc *time.Location, minute int) time.Time {
		return time.Date(2025, 1, 7, 9, minute, 0, 0, loc)
	}

	// Run twice with insertion order swapped; the output ranking must not change.
	for run, order := range [][]string{{"early", "late"}, {"late", "early"}} {
		t.Run(fmt.Sprintf("insertion order %d", run), func(t *testing.T) {
			f := newFixture(t, "2025-01-07 15:35:00")
			times := map[string]time.Time{
				"early": entered(f.loc, 1),
				"late":  entered(f.loc, 5),
			}
			for _, user := range order {
				f.addParticipant(t, user, times[user], 110000)
			}
			f.refresher.On("RefreshPrices", mock.Anything, mock.Anything).Return(nil)
			f.publisher.On("PublishPayouts", mock.Anything, mock.Anything, mock.Anything).Return(nil)

			result, err := f.coord.Settle(context.Background(), f.def.ID)
			require.NoError(t, err)
			require.Len(t, result.Rankings, 2)
			assert.Equal(t, "early", result.Rankings[0].UserID, "first registered wins the tie")
			assert.Equal(t, "late", result.Rankings[1].UserID)
		})
	}
}

func TestSettle_NoAwardBeyondRankTen(t *testing.T) {
	f := newFixture(t, "2025-01-07 15:35:00")
	entered := time.Date(2025, 1, 7, 9, 0, 0, 0, f.loc)
	for i := 0; i < 12; i++ {
		f.addParticipant(t, fmt.Sprintf("u%02d", i), entered.Add(time.Duration(i)*time.Second), int64(200000-i*1000))
	}

	f.refresher.On("RefreshPrices", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishPayouts", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.coord.Settle(context.Background(), f.def.ID)
	require.NoError(t, err)
	assert.Len(t, result.Rankings, 12)
	assert.Len(t, result.Awards, 10, "ranks beyond 10 receive no placeholder entry")
}

func TestSettle_AlreadySettledFlag(t *testing.T) {
	f := newFixture(t, "2025-01-07 15:35:00")
	require.NoError(t, f.registry.MarkSettled(context.Background(), f.def.ID))

	_, err := f.coord.Settle(context.Background(), f.def.ID)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestSettle_ValuationFailureFallsBack(t *testing.T) {
	f := newFixture(t, "2025-01-07 15:35:00")
	entered := time.Date(2025, 1, 7, 9, 0, 0, 0, f.loc)

	require.NoError(t, f.registry.RecordParticipant(context.Background(), f.def.ID, &models.Participant{
		UserID: "u1", PortfolioID: "pf-u1", EnteredAt: entered,
	}))
	f.valuer.On("PortfolioValue", mock.Anything, "pf-u1").
		Return(decimal.Zero, errors.New("quote store down"))

	f.refresher.On("RefreshPrices", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishPayouts", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.coord.Settle(context.Background(), f.def.ID)
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	require.Len(t, result.Rankings, 1)
	assert.True(t, result.Rankings[0].FinalValue.Equal(f.def.StartingCapital))
}
