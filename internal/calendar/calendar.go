// Package calendar computes when card (POS) takings reach the bank account.
//
// Acquirers credit a day's takings on the next business day, with weekend
// takings grouped on Tuesday:
//
//	Monday-Thursday -> next day
//	Friday          -> following Monday
//	Saturday/Sunday -> following Tuesday
//
// A credit date that falls on an Italian public holiday moves forward to the
// next business day that is not a holiday.
package calendar

import (
	"fmt"
	"time"
)

// Calendar answers settlement questions against a holiday set.
// The zero value is not usable; use New.
type Calendar struct {
	extra map[monthDay]bool
}

type monthDay struct {
	month time.Month
	day   int
}

// fixed national holidays
var fixedHolidays = map[monthDay]string{
	{time.January, 1}:   "Capodanno",
	{time.January, 6}:   "Epifania",
	{time.April, 25}:    "Liberazione",
	{time.May, 1}:       "Festa del lavoro",
	{time.June, 2}:      "Festa della Repubblica",
	{time.August, 15}:   "Ferragosto",
	{time.November, 1}:  "Ognissanti",
	{time.December, 8}:  "Immacolata",
	{time.December, 25}: "Natale",
	{time.December, 26}: "Santo Stefano",
}

// New builds a calendar. Extra holidays (for example a local patron saint)
// are given as recurring "MM-DD" strings.
func New(extraHolidays ...string) (*Calendar, error) {
	c := &Calendar{extra: make(map[monthDay]bool)}
	for _, s := range extraHolidays {
		t, err := time.Parse("01-02", s)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", s, err)
		}
		c.extra[monthDay{t.Month(), t.Day()}] = true
	}
	return c, nil
}

// Default is the national calendar without local holidays.
func Default() *Calendar {
	c, _ := New()
	return c
}

// Easter returns Gregorian Easter Sunday for year (Meeus/Jones/Butcher).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// IsHoliday reports whether d is a fixed holiday, Easter Sunday, Easter Monday
// or one of the calendar's extra holidays.
func (c *Calendar) IsHoliday(d time.Time) bool {
	d = civil(d)
	md := monthDay{d.Month(), d.Day()}
	if _, ok := fixedHolidays[md]; ok {
		return true
	}
	if c.extra[md] {
		return true
	}
	easter := Easter(d.Year())
	return d.Equal(easter) || d.Equal(easter.AddDate(0, 0, 1))
}

// IsBusinessDay is true for Monday-Friday dates that are not holidays.
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(d)
}

// Settlement describes when a payment made on a given day is credited.
type Settlement struct {
	Date    time.Time
	LagDays int
	Note    string
}

// SettlementDate returns the expected credit date for a card payment taken on paymentDate.
func (c *Calendar) SettlementDate(paymentDate time.Time) Settlement {
	d := civil(paymentDate)

	var lag int
	var note string
	switch d.Weekday() {
	case time.Friday:
		lag, note = 3, "friday takings credited monday"
	case time.Saturday:
		lag, note = 3, "saturday takings credited tuesday"
	case time.Sunday:
		lag, note = 2, "sunday takings credited tuesday"
	default:
		lag, note = 1, "credited next day"
	}

	out := d.AddDate(0, 0, lag)
	if c.IsHoliday(out) {
		for !c.IsBusinessDay(out) {
			out = out.AddDate(0, 0, 1)
		}
		note += fmt.Sprintf(", moved to %s for holiday", out.Format("2006-01-02"))
	}

	return Settlement{
		Date:    out,
		LagDays: int(out.Sub(d).Hours() / 24),
		Note:    note,
	}
}

// maxLookback bounds the inverse search; the longest lag (weekend before a
// holiday bridge such as Christmas) is well under it.
const maxLookback = 10

// PaymentDatesSettlingOn returns, oldest first, every payment date whose
// settlement date is x.
func (c *Calendar) PaymentDatesSettlingOn(x time.Time) []time.Time {
	x = civil(x)
	var out []time.Time
	for back := maxLookback; back >= 1; back-- {
		d := x.AddDate(0, 0, -back)
		if c.SettlementDate(d).Date.Equal(x) {
			out = append(out, d)
		}
	}
	return out
}

// Span is an inclusive range of calendar days.
type Span struct {
	From time.Time
	To   time.Time
}

// Contains reports whether d falls within the span.
func (s Span) Contains(d time.Time) bool {
	d = civil(d)
	return !d.Before(s.From) && !d.After(s.To)
}

// Days lists every day of the span.
func (s Span) Days() []time.Time {
	var out []time.Time
	for d := s.From; !d.After(s.To); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// WeekendSpan returns the Friday-Sunday of the most recent weekend strictly before x.
func WeekendSpan(x time.Time) Span {
	x = civil(x)
	sunday := x.AddDate(0, 0, -1)
	for sunday.Weekday() != time.Sunday {
		sunday = sunday.AddDate(0, 0, -1)
	}
	return Span{From: sunday.AddDate(0, 0, -2), To: sunday}
}

// FollowsWeekend is true when x is the first or second business day after a
// weekend, the days on which weekend takings are credited.
func (c *Calendar) FollowsWeekend(x time.Time) bool {
	x = civil(x)
	if !c.IsBusinessDay(x) {
		return false
	}
	sunday := WeekendSpan(x).To
	businessDays := 0
	for d := sunday.AddDate(0, 0, 1); d.Before(x); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			businessDays++
		}
	}
	return businessDays <= 1
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
