package contest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/market"
	"github.com/tradeclash/contest-engine/internal/models"
	"github.com/tradeclash/contest-engine/internal/utils"
)

// Factory instantiates upcoming contest definitions from the configured
// templates. IDs are derived from kind, asset class and start date, so
// building the same period twice produces the same contest and the
// registry's duplicate check makes creation idempotent.
type Factory struct {
	calendar  *market.Calendar
	templates config.ContestsConfig

	regHour, regMinute     int
	openHour, openMinute   int
	closeHour, closeMinute int
}

func NewFactory(calendar *market.Calendar, contests config.ContestsConfig, sched config.SchedulerConfig) (*Factory, error) {
	f := &Factory{calendar: calendar, templates: contests}

	var err error
	if f.regHour, f.regMinute, err = config.ParseClock(sched.RegistrationClose); err != nil {
		return nil, utils.NewConfigurationErrorf("invalid registration_close clock: %v", err)
	}
	if f.openHour, f.openMinute, err = config.ParseClock(sched.MarketOpen); err != nil {
		return nil, utils.NewConfigurationErrorf("invalid market_open clock: %v", err)
	}
	if f.closeHour, f.closeMinute, err = config.ParseClock(sched.MarketClose); err != nil {
		return nil, utils.NewConfigurationErrorf("invalid market_close clock: %v", err)
	}
	return f, nil
}

// NextContests builds the definitions for every enabled template whose
// next period begins after now. Weekly contests are only produced when
// the next trading day starts a new ISO week, monthly ones when it
// starts a new month, so calling this daily yields each period once.
func (f *Factory) NextContests(now time.Time) ([]*models.ContestDefinition, error) {
	var defs []*models.ContestDefinition

	build := func(kind models.ContestKind, tpl config.ContestTemplate) error {
		if !tpl.Enabled {
			return nil
		}
		def, err := f.Build(kind, tpl, now)
		if err != nil {
			return err
		}
		if def != nil {
			defs = append(defs, def)
		}
		return nil
	}

	if err := build(models.ContestKindDaily, f.templates.Daily); err != nil {
		return nil, err
	}
	if err := build(models.ContestKindWeekly, f.templates.Weekly); err != nil {
		return nil, err
	}
	if err := build(models.ContestKindMonthly, f.templates.Monthly); err != nil {
		return nil, err
	}
	return defs, nil
}

// Build constructs the next contest of the given kind starting strictly
// after now. It returns (nil, nil) when the upcoming day does not begin
// the template's period (e.g. a weekly template on a Wednesday).
func (f *Factory) Build(kind models.ContestKind, tpl config.ContestTemplate, now time.Time) (*models.ContestDefinition, error) {
	class := models.AssetClass(tpl.AssetClass)
	if !class.Valid() {
		return nil, utils.NewConfigurationErrorf("contest template %s has invalid asset class %q", kind, tpl.AssetClass)
	}

	var start, end, deadline time.Time
	var err error
	if class == models.AssetClassCrypto {
		start, end, deadline, err = f.cryptoWindow(kind, tpl, now)
	} else {
		start, end, deadline, err = f.equityWindow(kind, now)
	}
	if err != nil || start.IsZero() {
		return nil, err
	}

	return &models.ContestDefinition{
		ID:                   fmt.Sprintf("%s-%s-%s", kind, class, start.Format("2006-01-02")),
		AssetClass:           class,
		Kind:                 kind,
		RegistrationDeadline: deadline,
		MarketStart:          start,
		MarketEnd:            end,
		EntryFee:             decimal.NewFromFloat(tpl.EntryFee),
		StartingCapital:      decimal.NewFromFloat(tpl.StartingCapital),
		PrizePool:            decimal.NewFromFloat(tpl.PrizePool),
		MaxParticipants:      tpl.MaxParticipants,
		CreatedAt:            now,
	}, nil
}

// equityWindow computes the trading-day-aligned window for an equity
// contest beginning on the next trading day after now. Weekly windows
// run from the first to the last trading day of that day's week,
// monthly windows from the first to the last trading day of its month.
// A zero start means the next trading day does not begin the period.
func (f *Factory) equityWindow(kind models.ContestKind, now time.Time) (start, end, deadline time.Time, err error) {
	first, err := f.calendar.NextTradingDayAt(models.AssetClassEquity, now, f.openHour, f.openMinute)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}

	switch kind {
	case models.ContestKindDaily:
		start = first
		end = f.equityClockOn(first, f.closeHour, f.closeMinute)
	case models.ContestKindWeekly:
		if !f.startsWeek(first) {
			return time.Time{}, time.Time{}, time.Time{}, nil
		}
		start = first
		end, err = f.lastTradingCloseBefore(f.endOfWeek(first))
	case models.ContestKindMonthly:
		if !f.startsMonth(first) {
			return time.Time{}, time.Time{}, time.Time{}, nil
		}
		start = first
		end, err = f.lastTradingCloseBefore(f.endOfMonth(first))
	default:
		return time.Time{}, time.Time{}, time.Time{}, utils.NewConfigurationErrorf("unknown contest kind %q", kind)
	}
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}

	deadline = f.equityClockOn(start, f.regHour, f.regMinute)
	return start, end, deadline, nil
}

// cryptoWindow computes midnight-aligned UTC windows. Crypto markets
// never close, so periods are plain calendar periods.
func (f *Factory) cryptoWindow(kind models.ContestKind, tpl config.ContestTemplate, now time.Time) (start, end, deadline time.Time, err error) {
	lead := time.Hour
	if tpl.RegistrationLead != "" {
		lead, err = time.ParseDuration(tpl.RegistrationLead)
		if err != nil {
			return time.Time{}, time.Time{}, time.Time{}, utils.NewConfigurationErrorf("invalid registration_lead %q: %v", tpl.RegistrationLead, err)
		}
	}

	nowUTC := now.UTC()
	day := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	switch kind {
	case models.ContestKindDaily:
		start = day
		end = day.AddDate(0, 0, 1)
	case models.ContestKindWeekly:
		if day.Weekday() != time.Monday {
			return time.Time{}, time.Time{}, time.Time{}, nil
		}
		start = day
		end = day.AddDate(0, 0, 7)
	case models.ContestKindMonthly:
		if day.Day() != 1 {
			return time.Time{}, time.Time{}, time.Time{}, nil
		}
		start = day
		end = day.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}, time.Time{}, utils.NewConfigurationErrorf("unknown contest kind %q", kind)
	}

	return start, end, start.Add(-lead), nil
}

// startsWeek reports whether day is the first trading day of its week.
func (f *Factory) startsWeek(day time.Time) bool {
	for d := f.startOfWeek(day); !sameDay(d, day); d = d.AddDate(0, 0, 1) {
		if f.calendar.TradesOn(models.AssetClassEquity, d) {
			return false
		}
	}
	return true
}

// startsMonth reports whether day is the first trading day of its month.
func (f *Factory) startsMonth(day time.Time) bool {
	for d := time.Date(day.Year(), day.Month(), 1, 12, 0, 0, 0, day.Location()); !sameDay(d, day); d = d.AddDate(0, 0, 1) {
		if f.calendar.TradesOn(models.AssetClassEquity, d) {
			return false
		}
	}
	return true
}

// lastTradingCloseBefore walks backwards from boundary to the latest
// trading day at or before it and returns the close time on that day.
func (f *Factory) lastTradingCloseBefore(boundary time.Time) (time.Time, error) {
	for d := boundary; ; d = d.AddDate(0, 0, -1) {
		if boundary.Sub(d) > 31*24*time.Hour {
			return time.Time{}, utils.NewConfigurationErrorf("no trading day found in the month before %s", boundary.Format("2006-01-02"))
		}
		if f.calendar.TradesOn(models.AssetClassEquity, d) {
			return f.equityClockOn(d, f.closeHour, f.closeMinute), nil
		}
	}
}

func (f *Factory) startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7 // Monday-based
	d := day.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, day.Location())
}

func (f *Factory) endOfWeek(day time.Time) time.Time {
	return f.startOfWeek(day).AddDate(0, 0, 6)
}

func (f *Factory) endOfMonth(day time.Time) time.Time {
	firstOfNext := time.Date(day.Year(), day.Month(), 1, 12, 0, 0, 0, day.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

func (f *Factory) equityClockOn(day time.Time, hour, minute int) time.Time {
	loc := f.calendar.Location(models.AssetClassEquity)
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
