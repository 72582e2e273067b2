package market

import (
	"time"
)

// DefaultTimezone is the exchange clock.
const DefaultTimezone = "Asia/Shanghai"

// LoadLocation resolves name, falling back to a fixed UTC+8 zone when
// the tz database is not available.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

type clock struct{ h, m, s int }

func (c clock) secs() int { return c.h*3600 + c.m*60 + c.s }

func secsOf(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

var (
	morningOpen    = clock{9, 30, 0}
	morningClose   = clock{11, 30, 0}
	afternoonOpen  = clock{13, 0, 0}
	continuousEnd  = clock{14, 57, 0}
	closingAuction = clock{15, 0, 0}

	windowAStart = clock{9, 35, 0}
	windowAEnd   = clock{10, 15, 0}
	windowBStart = clock{14, 30, 0}
	windowBEnd   = clock{15, 0, 0}
)

// InTradingWindow reports whether the wall-clock part of t falls inside
// 09:30-11:30, 13:00-14:57 or the 14:57-15:00 closing auction.
func InTradingWindow(t time.Time) bool {
	s := secsOf(t)
	switch {
	case s >= morningOpen.secs() && s <= morningClose.secs():
		return true
	case s >= afternoonOpen.secs() && s <= continuousEnd.secs():
		return true
	case s >= continuousEnd.secs() && s <= closingAuction.secs():
		return true
	}
	return false
}

// IsTradingDay treats Monday to Friday as trading days. Exchange
// holidays are not modelled.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NearestTradingDay steps back from t to the closest trading day.
func NearestTradingDay(t time.Time) time.Time {
	d := t
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay returns the first trading day strictly after t.
func NextTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Window labels the execution window at t: "A", "B" or "NONE".
func Window(t time.Time) string {
	s := secsOf(t)
	switch {
	case s >= windowAStart.secs() && s <= windowAEnd.secs():
		return "A"
	case s >= windowBStart.secs() && s <= windowBEnd.secs():
		return "B"
	}
	return "NONE"
}

// NextSessionBoundary returns the next session open or close after t,
// in t's location.
func NextSessionBoundary(t time.Time) time.Time {
	day := t
	for i := 0; i < 8; i++ {
		if IsTradingDay(day) {
			y, m, d := day.Date()
			for _, c := range []clock{morningOpen, morningClose, afternoonOpen, closingAuction} {
				b := time.Date(y, m, d, c.h, c.m, c.s, 0, t.Location())
				if b.After(t) {
					return b
				}
			}
		}
		y, m, d := day.Date()
		day = time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
	}
	return t.Add(24 * time.Hour)
}

// SameWeek reports whether a and b fall in the same ISO week.
func SameWeek(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay == by && aw == bw
}

// ParseDate parses YYYY-MM-DD or YYYYMMDD in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(s) == 8 {
		return time.ParseInLocation("20060102", s, loc)
	}
	return time.ParseInLocation(time.DateOnly, s, loc)
}
