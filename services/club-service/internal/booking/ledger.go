package booking

import (
	"context"

	"github.com/avolkov/clubdesk/services/club-service/internal/availability"
	"github.com/avolkov/clubdesk/services/club-service/internal/model"
)

// CreateRequest carries everything needed to commit one booking.
type CreateRequest struct {
	Contact    model.Contact
	ComputerID string
	Interval   availability.Interval
}

// Ledger is the persistent store of computers, customers and bookings. The
// engine is a pure decision layer on top of it; Insert is the only guarded
// write and must perform the overlap re-check, the customer upsert and the
// booking insert in a single atomic transaction so that two concurrent
// requests for the same free slot cannot both commit.
//
// Implementations return the model sentinel errors for business rejections
// and pass infrastructure errors through unchanged.
type Ledger interface {
	GetComputer(ctx context.Context, id string) (model.Computer, error)
	ListActiveComputers(ctx context.Context) ([]model.Computer, error)
	ListBookingIntervals(ctx context.Context, computerID string) ([]availability.Interval, error)

	// Insert returns the committed booking with ComputerName populated;
	// confirmation messages render it directly.
	Insert(ctx context.Context, req CreateRequest) (model.Booking, error)

	ListBookings(ctx context.Context, limit int) ([]model.Booking, error)
	ListBookingsByContact(ctx context.Context, contact model.Contact) ([]model.Booking, error)
	DeleteBooking(ctx context.Context, id string) error

	AddComputer(ctx context.Context, name, specs string) (model.Computer, error)
	SetComputerActive(ctx context.Context, id string, active bool) error
}
