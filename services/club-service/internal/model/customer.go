package model

import "time"

// ContactChannel identifies where a customer can be reached. Exactly one
// channel is required per customer; either may populate it.
type ContactChannel string

const (
	ContactPhone    ContactChannel = "phone"
	ContactTelegram ContactChannel = "telegram"
)

// Contact is a customer's identity on one channel, as supplied by an adapter
// (web form phone number or chat user id).
type Contact struct {
	Channel ContactChannel
	Value   string
	Name    string
}

type Customer struct {
	ID         string
	Name       string
	Phone      string
	TelegramID string
	Admin      bool
	CreatedAt  time.Time
}

// Actor is the authorization context for administrative operations. It is
// passed explicitly; there is no ambient session flag.
type Actor struct {
	CustomerID string
	Admin      bool
}
