package availability

import (
	"time"

	"github.com/avolkov/clubdesk/services/club-service/internal/model"
)

// Interval is a half-open booking window [Start, End). The end instant is
// excluded, so back-to-back bookings on the same computer are allowed.
//
// All times are expected to be in the venue's location.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Validate() error {
	if !i.End.After(i.Start) {
		return model.ErrInvalidInterval
	}
	return nil
}

// Overlaps reports whether two half-open intervals intersect:
// [a,b) overlaps [c,d) iff a < d && c < b.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

func OverlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
