// Package session models the three global trading sessions (ASIAN,
// EUROPEAN, AMERICAN) in UTC and answers the two questions the exit state
// machine asks every cycle: is the market inside a session window, and is
// the active session about to close.
package session

import "time"

// Session is one global trading window. Start/End are minutes after
// midnight UTC; a session may cross midnight (ASIAN).
type Session struct {
	Name         string
	StartMinute  int
	EndMinute    int
	OpeningStart int // peak-liquidity window after the open
	OpeningEnd   int
}

func minuteOfDay(t time.Time) int {
	u := t.UTC()
	return u.Hour()*60 + u.Minute()
}

// Active reports whether t falls inside the session window.
func (s Session) Active(t time.Time) bool {
	m := minuteOfDay(t)
	if s.StartMinute > s.EndMinute { // crosses midnight
		return m >= s.StartMinute || m < s.EndMinute
	}
	return m >= s.StartMinute && m < s.EndMinute
}

// OpeningHour reports whether t falls inside the peak-liquidity window.
func (s Session) OpeningHour(t time.Time) bool {
	m := minuteOfDay(t)
	return m >= s.OpeningStart && m < s.OpeningEnd
}

// MinutesToClose returns how many minutes remain until the session ends.
func (s Session) MinutesToClose(t time.Time) int {
	m := minuteOfDay(t)
	d := s.EndMinute - m
	if d < 0 {
		d += 24 * 60
	}
	return d
}

var sessions = []Session{
	{Name: "ASIAN", StartMinute: 21 * 60, EndMinute: 6 * 60, OpeningStart: 21 * 60, OpeningEnd: 22 * 60},
	{Name: "EUROPEAN", StartMinute: 7 * 60, EndMinute: 16 * 60, OpeningStart: 8 * 60, OpeningEnd: 9 * 60},
	{Name: "AMERICAN", StartMinute: 13 * 60, EndMinute: 22 * 60, OpeningStart: 13*60 + 30, OpeningEnd: 14*60 + 30},
}

// Calendar answers session queries for the engine. The zero value uses the
// built-in three-session schedule.
type Calendar struct {
	// ClosingWarning is how close to a session end the soft exit warning
	// fires. Zero means the 30-minute default.
	ClosingWarning time.Duration
}

func (c Calendar) warningMinutes() int {
	if c.ClosingWarning <= 0 {
		return 30
	}
	return int(c.ClosingWarning.Minutes())
}

// Active returns the session containing t, or nil during off-hours.
// Overlapping windows resolve to the earliest-listed session, matching the
// original schedule's precedence.
func (c Calendar) Active(t time.Time) *Session {
	for i := range sessions {
		if sessions[i].Active(t) {
			return &sessions[i]
		}
	}
	return nil
}

// OffHours reports whether no session is active at t.
func (c Calendar) OffHours(t time.Time) bool {
	return c.Active(t) == nil
}

// ClosingSoon reports whether the active session ends within the warning
// window. Off-hours is not "closing soon" — the hard off-hours rule owns it.
func (c Calendar) ClosingSoon(t time.Time) (bool, string) {
	s := c.Active(t)
	if s == nil {
		return false, ""
	}
	if m := s.MinutesToClose(t); m > 0 && m <= c.warningMinutes() {
		return true, s.Name
	}
	return false, ""
}

// OpeningHour reports whether t is inside any active session's
// peak-liquidity window, used as gate context. Sessions overlap
// (EUROPEAN/AMERICAN), so every active window is checked.
func (c Calendar) OpeningHour(t time.Time) bool {
	for i := range sessions {
		if sessions[i].Active(t) && sessions[i].OpeningHour(t) {
			return true
		}
	}
	return false
}
