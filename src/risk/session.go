package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session sizing is a supplemental helper: SessionMultiplier scales a
// base size by a multiplier keyed to the New York trading session a time
// falls in, and returns zero inside the no-trade window. No open path
// calls it: ENABLE_SESSION_SIZING is parsed into
// Config.EnableSessionSizing, but nothing reads that field, so the
// decision loop's sizing is what the LLM collaborator requests verbatim
// whatever the flag is set to.
type Session string

const (
	SessionWeekendHoliday Session = "weekend_holiday"
	SessionDeadZone       Session = "dead_zone"
	SessionAsia           Session = "asia_session"
	SessionLondon         Session = "london_session"
	SessionUS             Session = "us_session"
	SessionDefault        Session = "default"
	SessionNoTrade        Session = "no_trade"

	daysPerWeek          = 7
	newYearOffsetDays    = 1
	thirdMondayOffset    = 2
	fourthThursdayOffset = 3
)

type SessionSizeConfig struct {
	WeekendHolidayMultiplier decimal.Decimal
	DeadZoneMultiplier       decimal.Decimal
	AsiaMultiplier           decimal.Decimal
	LondonMultiplier         decimal.Decimal
	USMultiplier             decimal.Decimal
	DefaultMultiplier        decimal.Decimal
	EnableNoTradeWindow      bool
}

func DefaultSessionSizeConfig() SessionSizeConfig {
	return SessionSizeConfig{
		WeekendHolidayMultiplier: decimal.NewFromFloat(0.15),
		DeadZoneMultiplier:       decimal.NewFromFloat(0.15),
		AsiaMultiplier:           decimal.NewFromFloat(0.75),
		LondonMultiplier:         decimal.NewFromFloat(1.0),
		USMultiplier:             decimal.NewFromFloat(1.25),
		DefaultMultiplier:        decimal.NewFromFloat(0.15),
		EnableNoTradeWindow:      true,
	}
}

// SessionMultiplier scales baseSize by the detected NY session's
// multiplier, returning zero during the configured no-trade window.
func SessionMultiplier(baseSize decimal.Decimal, now time.Time, cfg SessionSizeConfig) (decimal.Decimal, Session) {
	if baseSize.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, SessionDefault
	}

	et := easternTime(now)

	if cfg.EnableNoTradeWindow && inNoTradeWindow(et) {
		return decimal.Zero, SessionNoTrade
	}

	sess := detectSession(et)
	return baseSize.Mul(multiplierForSession(sess, cfg)), sess
}

func easternTime(t time.Time) time.Time {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}

// inNoTradeWindow blocks Friday 09:00 NY through Sunday 03:00 NY, plus
// full-day blocks on US holidays — except a holiday landing on Sunday's
// London-session hours, which is explicitly allowed to trade.
func inNoTradeWindow(t time.Time) bool {
	if t.Weekday() == time.Sunday && isLondonSession(t) {
		return t.Hour() < 3
	}
	if isUSHoliday(t) {
		return true
	}
	switch t.Weekday() {
	case time.Friday:
		return t.Hour() >= 9
	case time.Saturday:
		return true
	case time.Sunday:
		return t.Hour() < 3
	default:
		return false
	}
}

func detectSession(t time.Time) Session {
	if t.Weekday() == time.Sunday && isLondonSession(t) {
		return SessionLondon
	}
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday || isUSHoliday(t) {
		return SessionWeekendHoliday
	}
	switch {
	case isDeadZone(t):
		return SessionDeadZone
	case isAsiaSession(t):
		return SessionAsia
	case isLondonSession(t):
		return SessionLondon
	case isUSSession(t):
		return SessionUS
	default:
		return SessionDefault
	}
}

func multiplierForSession(s Session, cfg SessionSizeConfig) decimal.Decimal {
	switch s {
	case SessionWeekendHoliday:
		return cfg.WeekendHolidayMultiplier
	case SessionDeadZone:
		return cfg.DeadZoneMultiplier
	case SessionAsia:
		return cfg.AsiaMultiplier
	case SessionLondon:
		return cfg.LondonMultiplier
	case SessionUS:
		return cfg.USMultiplier
	default:
		return cfg.DefaultMultiplier
	}
}

func isDeadZone(t time.Time) bool    { return t.Hour() >= 17 && t.Hour() < 20 }
func isAsiaSession(t time.Time) bool { return t.Hour() >= 20 || t.Hour() < 3 }
func isLondonSession(t time.Time) bool { return t.Hour() >= 3 && t.Hour() < 9 }
func isUSSession(t time.Time) bool   { return t.Hour() >= 9 && t.Hour() <= 17 }

func isUSHoliday(t time.Time) bool {
	year := t.Year()

	newYearsDay := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if newYearsDay.Weekday() == time.Sunday {
		newYearsDay = newYearsDay.AddDate(0, 0, newYearOffsetDays)
	}

	mlkDay := nthMonday(year, time.January, thirdMondayOffset)
	presidentsDay := nthMonday(year, time.February, thirdMondayOffset)

	memorialDay := time.Date(year, time.May, 31, 0, 0, 0, 0, time.UTC)
	for memorialDay.Weekday() != time.Monday {
		memorialDay = memorialDay.AddDate(0, 0, -1)
	}

	independenceDay := time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)
	if independenceDay.Weekday() == time.Sunday {
		independenceDay = independenceDay.AddDate(0, 0, newYearOffsetDays)
	}

	laborDay := nthMonday(year, time.September, 0)
	thanksgiving := nthThursday(year, time.November, fourthThursdayOffset)

	christmas := time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)
	if christmas.Weekday() == time.Sunday {
		christmas = christmas.AddDate(0, 0, newYearOffsetDays)
	}

	holidays := []time.Time{newYearsDay, mlkDay, presidentsDay, memorialDay, independenceDay, laborDay, thanksgiving, christmas}
	for _, d := range holidays {
		if t.Format("2006-01-02") == d.Format("2006-01-02") {
			return true
		}
	}
	return false
}

func nthMonday(year int, month time.Month, mondayOffset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(time.Monday-firstOfMonth.Weekday()+daysPerWeek) % daysPerWeek
	return firstOfMonth.AddDate(0, 0, offset+mondayOffset*daysPerWeek)
}

func nthThursday(year int, month time.Month, thursdayOffset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(time.Thursday-firstOfMonth.Weekday()+daysPerWeek) % daysPerWeek
	return firstOfMonth.AddDate(0, 0, offset+thursdayOffset*daysPerWeek)
}
