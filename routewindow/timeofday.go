package routewindow

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time with the calendar date stripped off.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// FromTime extracts the clock reading of t in its own location.
func FromTime(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Before reports whether t reads earlier on the clock than u.
func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t.seconds() < u.seconds()
}

// After reports whether t reads later on the clock than u.
func (t TimeOfDay) After(u TimeOfDay) bool {
	return t.seconds() > u.seconds()
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// MarshalJSON renders the time as "HH:MM:SS".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the "HH:MM:SS" form.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse("15:04:05", s)
	if err != nil {
		return fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	*t = FromTime(parsed)
	return nil
}
