package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventBookingCreated   = "club.booking.created.v1"
	EventBookingCancelled = "club.booking.cancelled.v1"
	EventComputerAdded    = "club.computer.added.v1"
)
