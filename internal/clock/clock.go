// Package clock is the clock/calendar boundary for the conversation core.
// Sessions, cooldown windows, and the weekly question progression all read
// time through a [Clock] so tests can drive them deterministically.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

// Now implements [Clock] using [time.Now].
func (System) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock for tests.
type Fake struct {
	Current time.Time
}

// Now implements [Clock].
func (f *Fake) Now() time.Time { return f.Current }

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) { f.Current = f.Current.Add(d) }

// WeekOf returns the 1-based week number for now given the resident's start
// date, wrapping around after numWeeks so the question bank repeats on a
// yearly cycle. A zero start date or non-positive numWeeks yields week 1.
func WeekOf(start, now time.Time, numWeeks int) int {
	if start.IsZero() || numWeeks <= 0 || now.Before(start) {
		return 1
	}
	weeks := int(now.Sub(start) / (7 * 24 * time.Hour))
	return weeks%numWeeks + 1
}
