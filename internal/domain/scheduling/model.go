package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Slot is a single bookable appointment instant owned by one provider.
//
// Occupancy invariant: ClientID is non-nil exactly when Open is false.
// Attended and Paid only ever move from false to true. ScheduledAt is
// immutable; a slot at a different instant is a new slot.
type Slot struct {
	ID          uuid.UUID  `json:"id"`
	ProviderID  uuid.UUID  `json:"provider_id"`
	ClientID    *uuid.UUID `json:"client_id,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Open        bool       `json:"is_open"`
	Attended    bool       `json:"was_attended"`
	Paid        bool       `json:"is_paid"`
	Value       *float64   `json:"value,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ParseDate parses a YYYY-MM-DD date in the reference zone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// DayBounds returns the inclusive bounds of t's calendar day:
// 00:00:00.000 through 23:59:59.999 in the reference zone.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.In(time.Local)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), time.Local)
	return start, end
}

// RangeBounds returns [startOfDay(start), endOfDay(end)].
func RangeBounds(start, end time.Time) (time.Time, time.Time) {
	lo, _ := DayBounds(start)
	_, hi := DayBounds(end)
	return lo, hi
}
