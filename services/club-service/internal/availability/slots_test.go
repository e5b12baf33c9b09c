package availability

import (
	"testing"
	"time"
)

func TestStartTimes_FullDay(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := day.Add(9 * time.Hour) // 09:00, before opening

	slots := StartTimes(DefaultClubHours(), day, now)
	// 10:00 .. 21:00 every 30 minutes.
	if len(slots) != 23 {
		t.Fatalf("expected 23 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(10 * time.Hour)) {
		t.Fatalf("expected first slot 10:00, got %s", slots[0].Format("15:04"))
	}
	if !slots[len(slots)-1].Equal(day.Add(21 * time.Hour)) {
		t.Fatalf("expected last slot 21:00, got %s", slots[len(slots)-1].Format("15:04"))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Sub(slots[i-1]) != 30*time.Minute {
			t.Fatalf("slots %d and %d are %s apart", i-1, i, slots[i].Sub(slots[i-1]))
		}
	}
}

func TestStartTimes_SameDayRoundsUpToNextHour(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	slots := StartTimes(DefaultClubHours(), day, day.Add(13*time.Hour+10*time.Minute))
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	if !slots[0].Equal(day.Add(14 * time.Hour)) {
		t.Fatalf("expected first slot 14:00, got %s", slots[0].Format("15:04"))
	}

	// Exactly on the hour still rounds to the following hour.
	slots = StartTimes(DefaultClubHours(), day, day.Add(13*time.Hour))
	if !slots[0].Equal(day.Add(14 * time.Hour)) {
		t.Fatalf("expected first slot 14:00, got %s", slots[0].Format("15:04"))
	}
}

func TestStartTimes_LateEveningEmpty(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// 21:45: the next full hour is 22:00, past the last 21:00 start.
	if slots := StartTimes(DefaultClubHours(), day, day.Add(21*time.Hour+45*time.Minute)); len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
	// 20:45 leaves exactly the 21:00 slot.
	slots := StartTimes(DefaultClubHours(), day, day.Add(20*time.Hour+45*time.Minute))
	if len(slots) != 1 || !slots[0].Equal(day.Add(21*time.Hour)) {
		t.Fatalf("expected single 21:00 slot, got %v", slots)
	}
}

func TestStartTimes_PastDateEmpty(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := day.AddDate(0, 0, 1).Add(12 * time.Hour)
	if slots := StartTimes(DefaultClubHours(), day, now); slots != nil {
		t.Fatalf("expected nil for past date, got %v", slots)
	}
}

func TestStartTimes_FutureDateStartsAtOpening(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := day.Add(-24*time.Hour + 18*time.Hour) // previous evening
	slots := StartTimes(DefaultClubHours(), day, now)
	if len(slots) == 0 || !slots[0].Equal(day.Add(10*time.Hour)) {
		t.Fatalf("expected future day to open at 10:00, got %v", slots)
	}
}

func TestStartTimes_DegenerateHours(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	hours := ClubHours{Open: 10 * time.Hour, Close: 10*time.Hour + 30*time.Minute, Step: 30 * time.Minute, Session: time.Hour}
	if slots := StartTimes(hours, day, day); slots != nil {
		t.Fatalf("window shorter than a session must yield nothing, got %v", slots)
	}
}
