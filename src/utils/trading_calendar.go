package utils

import (
	"log"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York in minimal containers

	"range-meter/src/models"

	"github.com/scmhub/calendar"
)

// FX trading days roll over at 17:00 New York time.
const fxRollHour = 17

// TradingCalendar calculates trading days using scmhub/calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location

	// RollHour shifts the day boundary (FX). Zero means local midnight.
	RollHour int
	// Continuous calendars trade every day (crypto, FX weekdays handled by the feed).
	Continuous bool
}

// -----------------------------------------------------------------------------

// CalendarFor picks a calendar from the instrument class first and the ticker suffix second.
func CalendarFor(sym models.MSymbol) *TradingCalendar {
	switch strings.ToLower(sym.Class) {
	case "fx":
		return &TradingCalendar{Fallback: true, Timezone: newYork(), RollHour: fxRollHour, Continuous: true}
	case "crypto":
		return &TradingCalendar{Fallback: true, Timezone: time.UTC, Continuous: true}
	}
	return GetCalendar(sym.ID)
}

// -----------------------------------------------------------------------------

func GetCalendar(symbol string) *TradingCalendar {
	// Simple mapping based on suffix to MIC code
	// See scmhub/calendar for supported MICs (ISO 10383)
	mic := "xnys" // Default US NYSE
	switch {
	case strings.HasSuffix(symbol, ".L"):
		mic = "xlon"
	case strings.HasSuffix(symbol, ".PA"):
		mic = "xpar"
	case strings.HasSuffix(symbol, ".DE"):
		mic = "xfra"
	case strings.HasSuffix(symbol, ".AS"):
		mic = "xams"
	case strings.HasSuffix(symbol, ".SW"):
		mic = "xswx"
	case strings.HasSuffix(symbol, ".TO"):
		mic = "xtse"
	case strings.HasSuffix(symbol, ".T"):
		mic = "xtks"
	case strings.HasSuffix(symbol, ".HK"):
		mic = "xhkg"
	case strings.HasSuffix(symbol, ".AX"):
		mic = "xasx"
	}

	// scmhub/calendar.GetCalendar returns a calendar by MIC
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		// Fallback to xnys if not found
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s' and fallback 'xnys'. Using simple Mon-Fri fallback.", mic)
		return &TradingCalendar{Fallback: true, Timezone: newYork()}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func newYork() *time.Location {
	nyLoc, err := time.LoadLocation("America/New_York")
	if err != nil || nyLoc == nil {
		return time.UTC // Worst case
	}
	return nyLoc
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Continuous {
		return true
	}
	if tc.Fallback {
		// Simple fallback: Mon-Fri
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// TradingDay returns the trading session t belongs to, as UTC midnight of its
// local date. Non-trading days map back to the last trading day so a weekend
// never starts a new session.
func (tc *TradingCalendar) TradingDay(t time.Time) time.Time {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}
	if tc.RollHour != 0 {
		t = t.Add(time.Duration(24-tc.RollHour) * time.Hour)
	}

	day := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, t.Location())
	for i := 0; i < 10 && !tc.IsTradingDay(day); i++ {
		day = day.AddDate(0, 0, -1)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}
