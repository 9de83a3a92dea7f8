package market

import (
	"fmt"
	"time"

	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/utils"
)

// maxSearchDays bounds the forward search for the next trading day.
// Exceeding it signals a misconfigured holiday table rather than a
// legitimately closed market.
const maxSearchDays = 14

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Calendar resolves market activity per asset class. All comparisons
// happen in each rule's configured timezone, never the host timezone.
type Calendar struct {
	rules map[models.AssetClass]*models.TradingCalendarRule
}

// NewCalendar builds the resolver from static configuration. Rules are
// immutable for the process lifetime.
func NewCalendar(cfg config.CalendarConfig) (*Calendar, error) {
	equity, err := buildRule(models.AssetClassEquity, cfg.Equity)
	if err != nil {
		return nil, err
	}
	crypto, err := buildRule(models.AssetClassCrypto, cfg.Crypto)
	if err != nil {
		return nil, err
	}
	if equity.AlwaysOpen {
		return nil, utils.NewConfigurationError("equity calendar rule must have a bounded daily window")
	}
	if !crypto.AlwaysOpen {
		return nil, utils.NewConfigurationError("crypto calendar rule must be always open")
	}

	return &Calendar{
		rules: map[models.AssetClass]*models.TradingCalendarRule{
			models.AssetClassEquity: equity,
			models.AssetClassCrypto: crypto,
		},
	}, nil
}

func buildRule(class models.AssetClass, cfg config.CalendarRuleConfig) (*models.TradingCalendarRule, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, utils.NewConfigurationErrorf("calendar %s: invalid timezone %q", class, cfg.Timezone)
	}

	rule := &models.TradingCalendarRule{
		AssetClass: class,
		Location:   loc,
		AlwaysOpen: cfg.AlwaysOpen,
	}

	if !cfg.AlwaysOpen {
		openHour, openMinute, err := config.ParseClock(cfg.Open)
		if err != nil {
			return nil, utils.NewConfigurationErrorf("calendar %s: %v", class, err)
		}
		closeHour, closeMinute, err := config.ParseClock(cfg.Close)
		if err != nil {
			return nil, utils.NewConfigurationErrorf("calendar %s: %v", class, err)
		}
		rule.OpenMinute = openHour*60 + openMinute
		rule.CloseMinute = closeHour*60 + closeMinute
		if rule.CloseMinute <= rule.OpenMinute {
			return nil, utils.NewConfigurationErrorf("calendar %s: close %s not after open %s", class, cfg.Close, cfg.Open)
		}
	}

	if len(cfg.Days) > 0 {
		rule.ActiveDays = make(map[time.Weekday]bool, len(cfg.Days))
		for _, name := range cfg.Days {
			day, ok := weekdayNames[name]
			if !ok {
				return nil, utils.NewConfigurationErrorf("calendar %s: unknown weekday %q", class, name)
			}
			rule.ActiveDays[day] = true
		}
	}

	if len(cfg.Holidays) > 0 {
		rule.Holidays = make(map[string]bool, len(cfg.Holidays))
		for _, day := range cfg.Holidays {
			if _, err := time.Parse("2006-01-02", day); err != nil {
				return nil, utils.NewConfigurationErrorf("calendar %s: invalid holiday %q", class, day)
			}
			rule.Holidays[day] = true
		}
	}

	return rule, nil
}

// Rule returns the immutable rule for an asset class.
func (c *Calendar) Rule(class models.AssetClass) (*models.TradingCalendarRule, error) {
	rule, ok := c.rules[class]
	if !ok {
		return nil, utils.NewConfigurationErrorf("no calendar rule for asset class %q", class)
	}
	return rule, nil
}

// Location returns the market timezone for an asset class, defaulting
// to UTC for unknown classes.
func (c *Calendar) Location(class models.AssetClass) *time.Location {
	if rule, ok := c.rules[class]; ok {
		return rule.Location
	}
	return time.UTC
}

// IsActive reports whether the market for the asset class is trading
// at the given instant.
func (c *Calendar) IsActive(class models.AssetClass, t time.Time) bool {
	rule, ok := c.rules[class]
	if !ok {
		return false
	}
	if rule.AlwaysOpen {
		return true
	}

	local := t.In(rule.Location)
	if !rule.ActiveOn(local) || rule.IsHoliday(local) {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= rule.OpenMinute && minute < rule.CloseMinute
}

// NextActiveStart returns the instant the market next becomes active at
// or after t. An already-active market returns t unchanged. The forward
// search is bounded; exhausting it returns a ConfigurationError.
func (c *Calendar) NextActiveStart(class models.AssetClass, t time.Time) (time.Time, error) {
	rule, ok := c.rules[class]
	if !ok {
		return time.Time{}, utils.NewConfigurationErrorf("no calendar rule for asset class %q", class)
	}
	if rule.AlwaysOpen || c.IsActive(class, t) {
		return t, nil
	}

	local := t.In(rule.Location)
	for offset := 0; offset <= maxSearchDays; offset++ {
		day := local.AddDate(0, 0, offset)
		if !rule.ActiveOn(day) || rule.IsHoliday(day) {
			continue
		}
		open := time.Date(day.Year(), day.Month(), day.Day(),
			rule.OpenMinute/60, rule.OpenMinute%60, 0, 0, rule.Location)
		if open.After(local) {
			return open, nil
		}
	}

	return time.Time{}, utils.NewConfigurationErrorf(
		"no trading day for %s within %d days of %s; holiday table is likely misconfigured",
		class, maxSearchDays, local.Format("2006-01-02"))
}

// NextTradingDayAt returns the next day strictly after t's local date
// on which the market trades, at the given local clock. Always-open
// markets trade every day.
func (c *Calendar) NextTradingDayAt(class models.AssetClass, t time.Time, hour, minute int) (time.Time, error) {
	rule, ok := c.rules[class]
	if !ok {
		return time.Time{}, utils.NewConfigurationErrorf("no calendar rule for asset class %q", class)
	}

	local := t.In(rule.Location)
	for offset := 1; offset <= maxSearchDays; offset++ {
		day := local.AddDate(0, 0, offset)
		if !rule.AlwaysOpen && (!rule.ActiveOn(day) || rule.IsHoliday(day)) {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, rule.Location), nil
	}

	return time.Time{}, utils.NewConfigurationErrorf(
		"no trading day for %s within %d days of %s; holiday table is likely misconfigured",
		class, maxSearchDays, local.Format("2006-01-02"))
}

// TradesOn reports whether the market trades at any point on t's local date.
func (c *Calendar) TradesOn(class models.AssetClass, t time.Time) bool {
	rule, ok := c.rules[class]
	if !ok {
		return false
	}
	if rule.AlwaysOpen {
		return true
	}
	local := t.In(rule.Location)
	return rule.ActiveOn(local) && !rule.IsHoliday(local)
}

// String describes the calendar for startup logging.
func (c *Calendar) String() string {
	equity := c.rules[models.AssetClassEquity]
	return fmt.Sprintf("equity %02d:%02d-%02d:%02d %s (%d holidays), crypto 24/7",
		equity.OpenMinute/60, equity.OpenMinute%60,
		equity.CloseMinute/60, equity.CloseMinute%60,
		equity.Location, len(equity.Holidays))
}
