package model

import "time"

// Booking is a confirmed claim on one computer over the half-open interval
// [StartTime, EndTime). Times are venue-local.
type Booking struct {
	ID         string
	CustomerID string
	ComputerID string
	StartTime  time.Time
	EndTime    time.Time
	CreatedAt  time.Time

	// Denormalized for listings; empty when not loaded.
	ComputerName string
	CustomerName string
}
