package timeutil

import "time"

// Clock supplies the current time. Components take a Clock so tests can pin it.
type Clock func() time.Time

var nowFunc Clock = time.Now

// Now returns the current time from the process-wide clock.
func Now() time.Time {
	return nowFunc()
}

// SetNowFunc overrides the function used by Now. Passing nil resets it.
func SetNowFunc(fn Clock) {
	if fn == nil {
		nowFunc = time.Now
		return
	}
	nowFunc = fn
}

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// OrDefault returns c, falling back to Now when c is nil.
func OrDefault(c Clock) Clock {
	if c == nil {
		return Now
	}
	return c
}
