package model

import "time"

// Computer is a bookable machine on the club floor. Computers are never
// hard-deleted: deactivating keeps historical bookings valid.
type Computer struct {
	ID        string
	Name      string
	Specs     string
	Active    bool
	CreatedAt time.Time
}
