package booking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/clubdesk/services/club-service/internal/availability"
	"github.com/avolkov/clubdesk/services/club-service/internal/model"
)

// fakeLedger mimics the storage ledger's atomicity with a single mutex held
// across the check-then-insert step.
type fakeLedger struct {
	mu        sync.Mutex
	computers []model.Computer
	customers map[string]model.Customer // keyed by channel:value
	bookings  []model.Booking
}

func newFakeLedger(names ...string) *fakeLedger {
	l := &fakeLedger{customers: make(map[string]model.Customer)}
	for _, name := range names {
		l.computers = append(l.computers, model.Computer{ID: uuid.NewString(), Name: name, Active: true})
	}
	return l
}

func (l *fakeLedger) computerByName(name string) model.Computer {
	for _, c := range l.computers {
		if c.Name == name {
			return c
		}
	}
	return model.Computer{}
}

func (l *fakeLedger) GetComputer(_ context.Context, id string) (model.Computer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.computers {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Computer{}, model.ErrUnknownComputer
}

func (l *fakeLedger) ListActiveComputers(context.Context) ([]model.Computer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Computer
	for _, c := range l.computers {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListBookingIntervals(_ context.Context, computerID string) ([]availability.Interval, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intervalsLocked(computerID), nil
}

func (l *fakeLedger) intervalsLocked(computerID string) []availability.Interval {
	var out []availability.Interval
	for _, b := range l.bookings {
		if b.ComputerID == computerID {
			out = append(out, availability.Interval{Start: b.StartTime, End: b.EndTime})
		}
	}
	return out
}

func (l *fakeLedger) Insert(_ context.Context, req CreateRequest) (model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var comp model.Computer
	for _, c := range l.computers {
		if c.ID == req.ComputerID {
			comp = c
		}
	}
	if comp.ID == "" || !comp.Active {
		return model.Booking{}, model.ErrUnknownComputer
	}
	if availability.OverlapsAny(req.Interval, l.intervalsLocked(req.ComputerID)) {
		return model.Booking{}, model.ErrSlotUnavailable
	}

	key := string(req.Contact.Channel) + ":" + req.Contact.Value
	cust, ok := l.customers[key]
	if !ok {
		cust = model.Customer{ID: uuid.NewString(), Name: req.Contact.Name}
		l.customers[key] = cust
	}

	b := model.Booking{
		ID:           uuid.NewString(),
		CustomerID:   cust.ID,
		ComputerID:   req.ComputerID,
		StartTime:    req.Interval.Start,
		EndTime:      req.Interval.End,
		ComputerName: comp.Name,
		CreatedAt:    time.Now(),
	}
	l.bookings = append(l.bookings, b)
	return b, nil
}

func (l *fakeLedger) ListBookings(context.Context, int) ([]model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Booking(nil), l.bookings...), nil
}

func (l *fakeLedger) ListBookingsByContact(_ context.Context, contact model.Contact) ([]model.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cust, ok := l.customers[string(contact.Channel)+":"+contact.Value]
	if !ok {
		return nil, nil
	}
	var out []model.Booking
	for _, b := range l.bookings {
		if b.CustomerID == cust.ID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (l *fakeLedger) DeleteBooking(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, b := range l.bookings {
		if b.ID == id {
			l.bookings = append(l.bookings[:i], l.bookings[i+1:]...)
			return nil
		}
	}
	return model.ErrUnknownBooking
}

func (l *fakeLedger) AddComputer(_ context.Context, name, specs string) (model.Computer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := model.Computer{ID: uuid.NewString(), Name: name, Specs: specs, Active: true}
	l.computers = append(l.computers, c)
	return c, nil
}

func (l *fakeLedger) SetComputerActive(_ context.Context, id string, active bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.computers {
		if l.computers[i].ID == id {
			l.computers[i].Active = active
			return nil
		}
	}
	return model.ErrUnknownComputer
}

func testEngine(l Ledger) *Engine {
	return NewEngine(l, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestCreateBookingValidation(t *testing.T) {
	ledger := newFakeLedger("PC-1")
	eng := testEngine(ledger)
	now := at(9, 0)
	pc := ledger.computerByName("PC-1")

	_, err := eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+1", Name: "Ann"},
		ComputerID: pc.ID,
		Interval:   availability.Interval{Start: at(11, 0), End: at(10, 0)},
	}, now)
	assert.ErrorIs(t, err, model.ErrInvalidInterval)

	_, err = eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+1", Name: "Ann"},
		ComputerID: pc.ID,
		Interval:   availability.Interval{Start: at(8, 0), End: at(9, 30)},
	}, now)
	assert.ErrorIs(t, err, model.ErrPastStartTime)

	_, err = eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+1", Name: "Ann"},
		ComputerID: "nope",
		Interval:   availability.Interval{Start: at(10, 0), End: at(11, 0)},
	}, now)
	assert.ErrorIs(t, err, model.ErrUnknownComputer)
}

func TestCreateBookingEndToEnd(t *testing.T) {
	ledger := newFakeLedger("PC-1")
	eng := testEngine(ledger)
	now := at(9, 0)
	pc := ledger.computerByName("PC-1")

	first, err := eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+1", Name: "Ann"},
		ComputerID: pc.ID,
		Interval:   availability.Interval{Start: at(10, 0), End: at(11, 0)},
	}, now)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, "PC-1", first.ComputerName, "committed booking must carry the machine name")

	// Overlapping attempt by someone else fails, and keeps failing on retry.
	overlap := CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+2", Name: "Bob"},
		ComputerID: pc.ID,
		Interval:   availability.Interval{Start: at(10, 30), End: at(11, 30)},
	}
	_, err = eng.CreateBooking(context.Background(), overlap, now)
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)
	_, err = eng.CreateBooking(context.Background(), overlap, now)
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)

	// Back-to-back is allowed: starts exactly when the first one ends.
	second, err := eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+2", Name: "Bob"},
		ComputerID: pc.ID,
		Interval:   availability.Interval{Start: at(11, 0), End: at(12, 0)},
	}, now)
	require.NoError(t, err)

	// Safety invariant: committed bookings on one computer never overlap.
	all, err := ledger.ListBookings(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	a := availability.Interval{Start: first.StartTime, End: first.EndTime}
	b := availability.Interval{Start: second.StartTime, End: second.EndTime}
	assert.False(t, a.Overlaps(b))
}

func TestIsAvailable(t *testing.T) {
	ledger := newFakeLedger("PC-1", "PC-2")
	eng := testEngine(ledger)
	pc1 := ledger.computerByName("PC-1")
	pc2 := ledger.computerByName("PC-2")

	_, err := eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactTelegram, Value: "42", Name: "Ann"},
		ComputerID: pc1.ID,
		Interval:   availability.Interval{Start: at(10, 0), End: at(11, 0)},
	}, at(9, 0))
	require.NoError(t, err)

	free, err := eng.IsAvailable(context.Background(), pc1.ID, availability.Interval{Start: at(10, 30), End: at(11, 30)})
	require.NoError(t, err)
	assert.False(t, free)

	free, err = eng.IsAvailable(context.Background(), pc1.ID, availability.Interval{Start: at(11, 0), End: at(12, 0)})
	require.NoError(t, err)
	assert.True(t, free, "back-to-back slot must be free")

	free, err = eng.IsAvailable(context.Background(), pc2.ID, availability.Interval{Start: at(10, 0), End: at(11, 0)})
	require.NoError(t, err)
	assert.True(t, free, "computer with zero bookings must be free")

	_, err = eng.IsAvailable(context.Background(), pc1.ID, availability.Interval{Start: at(11, 0), End: at(11, 0)})
	assert.ErrorIs(t, err, model.ErrInvalidInterval)

	require.NoError(t, ledger.SetComputerActive(context.Background(), pc2.ID, false))
	_, err = eng.IsAvailable(context.Background(), pc2.ID, availability.Interval{Start: at(10, 0), End: at(11, 0)})
	assert.ErrorIs(t, err, model.ErrUnknownComputer)
}

func TestAvailableComputersDeterministicOrder(t *testing.T) {
	ledger := newFakeLedger("PC-1", "PC-2", "PC-3")
	eng := testEngine(ledger)
	pc2 := ledger.computerByName("PC-2")

	_, err := eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+1", Name: "Ann"},
		ComputerID: pc2.ID,
		Interval:   availability.Interval{Start: at(10, 0), End: at(12, 0)},
	}, at(9, 0))
	require.NoError(t, err)

	free, err := eng.AvailableComputers(context.Background(), availability.Interval{Start: at(11, 0), End: at(12, 0)})
	require.NoError(t, err)
	require.Len(t, free, 2)
	assert.Equal(t, "PC-1", free[0].Name)
	assert.Equal(t, "PC-3", free[1].Name)
}

func TestCreateBookingConcurrentSameSlot(t *testing.T) {
	ledger := newFakeLedger("PC-1")
	eng := testEngine(ledger)
	pc := ledger.computerByName("PC-1")
	now := at(9, 0)

	req := func(phone string) CreateRequest {
		return CreateRequest{
			Contact:    model.Contact{Channel: model.ContactPhone, Value: phone, Name: "racer"},
			ComputerID: pc.ID,
			Interval:   availability.Interval{Start: at(15, 0), End: at(16, 0)},
		}
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, phone := range []string{"+1", "+2"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := eng.CreateBooking(context.Background(), req(p), now)
			errs <- err
		}(phone)
	}
	wg.Wait()
	close(errs)

	var ok, unavailable int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, model.ErrSlotUnavailable):
			unavailable++
		}
	}
	assert.Equal(t, 1, ok, "exactly one concurrent request must win")
	assert.Equal(t, 1, unavailable)
}

func TestAdminOperationsRequireAdminActor(t *testing.T) {
	ledger := newFakeLedger("PC-1")
	eng := testEngine(ledger)
	user := model.Actor{CustomerID: "u1"}
	admin := model.Actor{CustomerID: "a1", Admin: true}

	_, err := eng.AddComputer(context.Background(), user, "PC-9", "")
	assert.ErrorIs(t, err, model.ErrForbidden)
	err = eng.DeleteBooking(context.Background(), user, "some-id")
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = eng.ListBookings(context.Background(), user, 10)
	assert.ErrorIs(t, err, model.ErrForbidden)

	added, err := eng.AddComputer(context.Background(), admin, "PC-9", "Ryzen 7, 16GB")
	require.NoError(t, err)
	assert.True(t, added.Active)

	b, err := eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+1", Name: "Ann"},
		ComputerID: added.ID,
		Interval:   availability.Interval{Start: at(10, 0), End: at(11, 0)},
	}, at(9, 0))
	require.NoError(t, err)
	require.NoError(t, eng.DeleteBooking(context.Background(), admin, b.ID))

	// The freed slot can be booked again after the administrative delete.
	_, err = eng.CreateBooking(context.Background(), CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: "+2", Name: "Bob"},
		ComputerID: added.ID,
		Interval:   availability.Interval{Start: at(10, 0), End: at(11, 0)},
	}, at(9, 0))
	require.NoError(t, err)
}
