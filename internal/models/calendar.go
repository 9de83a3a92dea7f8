package models

import "time"

// TradingCalendarRule is the immutable market-hours configuration for one
// asset class. Loaded once at startup.
type TradingCalendarRule struct {
	AssetClass AssetClass
	// Weekdays that the market is active on. Empty means every day.
	ActiveDays map[time.Weekday]bool
	// Daily open/close as minutes since local midnight. A rule with
	// AlwaysOpen set ignores the window entirely.
	OpenMinute  int
	CloseMinute int
	AlwaysOpen  bool
	// IANA timezone the window is expressed in.
	Location *time.Location
	// Dates ("2006-01-02" in Location) the market is closed on.
	Holidays map[string]bool
}

// IsHoliday reports whether t falls on a configured holiday
func (r *TradingCalendarRule) IsHoliday(t time.Time) bool {
	if len(r.Holidays) == 0 {
		return false
	}
	return r.Holidays[t.In(r.Location).Format("2006-01-02")]
}

// ActiveOn reports whether the weekday of t is in the active-day mask
func (r *TradingCalendarRule) ActiveOn(t time.Time) bool {
	if len(r.ActiveDays) == 0 {
		return true
	}
	return r.ActiveDays[t.In(r.Location).Weekday()]
}
