package availability

import "time"

// ClubHours describes the venue's daily booking window. Offsets are measured
// from local midnight.
type ClubHours struct {
	Open    time.Duration // e.g. 10h for a 10:00 opening
	Close   time.Duration // e.g. 22h for a 22:00 close
	Step    time.Duration // spacing between candidate start times
	Session time.Duration // standard booking length a start must leave before close
}

func DefaultClubHours() ClubHours {
	return ClubHours{
		Open:    10 * time.Hour,
		Close:   22 * time.Hour,
		Step:    30 * time.Minute,
		Session: time.Hour,
	}
}

// StartTimes enumerates the candidate booking start times for the calendar
// day of date. The last candidate leaves a full session before close, so with
// a 22:00 close and 1h sessions the final slot is 21:00.
//
// For the current day the first candidate is the top of the next full hour
// after now; earlier days yield nothing; later days start at opening time.
// The result is a fresh finite slice. Callers re-enumerate per request since
// now keeps advancing.
func StartTimes(hours ClubHours, date, now time.Time) []time.Time {
	if hours.Step <= 0 || hours.Session <= 0 || hours.Close-hours.Session < hours.Open {
		return nil
	}

	day := midnight(date)
	today := midnight(now)
	if day.Before(today) {
		return nil
	}

	first := day.Add(hours.Open)
	if day.Equal(today) {
		if earliest := nextFullHour(now); earliest.After(first) {
			first = earliest
		}
	}

	lastStart := day.Add(hours.Close - hours.Session)
	var slots []time.Time
	for t := first; !t.After(lastStart); t = t.Add(hours.Step) {
		slots = append(slots, t)
	}
	return slots
}

// nextFullHour rounds up to the following hour boundary. 09:00 rounds to
// 10:00, not 09:00: a slot offered "now" would already be in the past by the
// time the customer confirms it.
func nextFullHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
