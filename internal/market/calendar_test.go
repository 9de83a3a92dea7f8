package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/utils"
)

func testCalendarConfig(holidays ...string) config.CalendarConfig {
	return config.CalendarConfig{
		Equity: config.CalendarRuleConfig{
			Timezone: "Asia/Kolkata",
			Open:     "09:30",
			Close:    "15:30",
			Days:     []string{"mon", "tue", "wed", "thu", "fri"},
			Holidays: holidays,
		},
		Crypto: config.CalendarRuleConfig{
			Timezone:   "UTC",
			AlwaysOpen: true,
		},
	}
}

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func TestNewCalendar_RejectsUnboundedEquity(t *testing.T) {
	cfg := testCalendarConfig()
	cfg.Equity.AlwaysOpen = true
	_, err := NewCalendar(cfg)
	require.Error(t, err)
	assert.True(t, utils.IsConfigurationError(err))
}

func TestNewCalendar_RejectsBoundedCrypto(t *testing.T) {
	cfg := testCalendarConfig()
	cfg.Crypto.AlwaysOpen = false
	cfg.Crypto.Open = "00:00"
	cfg.Crypto.Close = "23:59"
	_, err := NewCalendar(cfg)
	assert.Error(t, err)
}

func TestNewCalendar_RejectsInvertedWindow(t *testing.T) {
	cfg := testCalendarConfig()
	cfg.Equity.Open = "15:30"
	cfg.Equity.Close = "09:30"
	_, err := NewCalendar(cfg)
	assert.Error(t, err)
}

func TestIsActive_Equity(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig("2025-01-01"))
	require.NoError(t, err)
	loc := kolkata(t)

	tests := []struct {
		name   string
		at     time.Time
		active bool
	}{
		{"tuesday mid-session", time.Date(2025, 1, 7, 10, 0, 0, 0, loc), true},
		{"tuesday at open", time.Date(2025, 1, 7, 9, 30, 0, 0, loc), true},
		{"tuesday before open", time.Date(2025, 1, 7, 9, 15, 0, 0, loc), false},
		{"tuesday at close", time.Date(2025, 1, 7, 15, 30, 0, 0, loc), false},
		{"saturday", time.Date(2025, 1, 4, 12, 0, 0, 0, loc), false},
		{"sunday", time.Date(2025, 1, 5, 12, 0, 0, 0, loc), false},
		{"new year holiday", time.Date(2025, 1, 1, 12, 0, 0, 0, loc), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, cal.IsActive(models.AssetClassEquity, tt.at))
		})
	}
}

func TestIsActive_EquityNormalizesCallerTimezone(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig())
	require.NoError(t, err)

	// 04:30 UTC on a Tuesday is 10:00 in Kolkata, inside the session.
	utc := time.Date(2025, 1, 7, 4, 30, 0, 0, time.UTC)
	assert.True(t, cal.IsActive(models.AssetClassEquity, utc))
}

func TestIsActive_CryptoAlwaysActive(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig())
	require.NoError(t, err)
	loc := kolkata(t)

	instants := []time.Time{
		time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC),  // Saturday midnight
		time.Date(2025, 1, 5, 12, 0, 0, 0, loc),      // Sunday
		time.Date(2025, 1, 7, 3, 0, 0, 0, time.UTC),  // weekday pre-open
		time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC),
	}
	for _, at := range instants {
		assert.True(t, cal.IsActive(models.AssetClassCrypto, at), at.String())
	}
}

func TestNextActiveStart_CryptoReturnsInput(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig())
	require.NoError(t, err)

	at := time.Date(2025, 1, 4, 3, 17, 0, 0, time.UTC)
	next, err := cal.NextActiveStart(models.AssetClassCrypto, at)
	require.NoError(t, err)
	assert.True(t, next.Equal(at))
}

func TestNextActiveStart_EquityAlreadyActive(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig())
	require.NoError(t, err)
	loc := kolkata(t)

	at := time.Date(2025, 1, 7, 11, 0, 0, 0, loc)
	next, err := cal.NextActiveStart(models.AssetClassEquity, at)
	require.NoError(t, err)
	assert.True(t, next.Equal(at))
}

func TestNextActiveStart_SkipsWeekend(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig())
	require.NoError(t, err)
	loc := kolkata(t)

	// Friday after close rolls to Monday open.
	friday := time.Date(2025, 1, 3, 16, 0, 0, 0, loc)
	next, err := cal.NextActiveStart(models.AssetClassEquity, friday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 6, 9, 30, 0, 0, loc).Unix(), next.Unix())
	assert.Equal(t, time.Monday, next.In(loc).Weekday())
}

func TestNextActiveStart_SkipsHolidayCluster(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig("2025-01-06", "2025-01-07"))
	require.NoError(t, err)
	loc := kolkata(t)

	friday := time.Date(2025, 1, 3, 16, 0, 0, 0, loc)
	next, err := cal.NextActiveStart(models.AssetClassEquity, friday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 8, 9, 30, 0, 0, loc).Unix(), next.Unix())
}

func TestNextActiveStart_SameDayBeforeOpen(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig())
	require.NoError(t, err)
	loc := kolkata(t)

	early := time.Date(2025, 1, 7, 8, 0, 0, 0, loc)
	next, err := cal.NextActiveStart(models.AssetClassEquity, early)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 7, 9, 30, 0, 0, loc).Unix(), next.Unix())
}

func TestNextActiveStart_BoundExceeded(t *testing.T) {
	// Every weekday for three weeks is a holiday, so the bounded search
	// must fail loudly instead of looping.
	var holidays []string
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 21; offset++ {
		holidays = append(holidays, start.AddDate(0, 0, offset).Format("2006-01-02"))
	}

	cal, err := NewCalendar(testCalendarConfig(holidays...))
	require.NoError(t, err)
	loc := kolkata(t)

	_, err = cal.NextActiveStart(models.AssetClassEquity, time.Date(2025, 1, 6, 10, 0, 0, 0, loc))
	require.Error(t, err)
	assert.True(t, utils.IsConfigurationError(err))
}

func TestNextTradingDayAt(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig("2025-01-08"))
	require.NoError(t, err)
	loc := kolkata(t)

	// Tuesday rolls over Wednesday's holiday to Thursday.
	tuesday := time.Date(2025, 1, 7, 15, 35, 0, 0, loc)
	next, err := cal.NextTradingDayAt(models.AssetClassEquity, tuesday, 15, 35)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 9, 15, 35, 0, 0, loc).Unix(), next.Unix())

	// Crypto trades every day.
	next, err = cal.NextTradingDayAt(models.AssetClassCrypto, tuesday, 15, 35)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 8, 15, 35, 0, 0, time.UTC).Format("2006-01-02"), next.Format("2006-01-02"))
}

func TestTradesOn(t *testing.T) {
	cal, err := NewCalendar(testCalendarConfig("2025-01-01"))
	require.NoError(t, err)
	loc := kolkata(t)

	assert.True(t, cal.TradesOn(models.AssetClassEquity, time.Date(2025, 1, 7, 2, 0, 0, 0, loc)))
	assert.False(t, cal.TradesOn(models.AssetClassEquity, time.Date(2025, 1, 4, 2, 0, 0, 0, loc)))
	assert.False(t, cal.TradesOn(models.AssetClassEquity, time.Date(2025, 1, 1, 2, 0, 0, 0, loc)))
	assert.True(t, cal.TradesOn(models.AssetClassCrypto, time.Date(2025, 1, 4, 2, 0, 0, 0, loc)))
}
