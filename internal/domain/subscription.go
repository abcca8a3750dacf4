package domain

import "time"

// Subscription is a team's registration of a destination URL and the
// event-name patterns it wants delivered. The secret, when set, is used to
// sign outgoing request bodies and is never serialized back to clients.
type Subscription struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"teamId"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Secret      string    `json:"-"`
	Events      []string  `json:"events"`
	Enabled     bool      `json:"enabled"`
	CreatedByID string    `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Matches reports whether the subscription wants the given event name.
// The pattern set matches on the literal name or the "*" wildcard.
func (s *Subscription) Matches(eventName string) bool {
	for _, p := range s.Events {
		if p == "*" || p == eventName {
			return true
		}
	}
	return false
}

// Validate checks creation invariants: a destination URL and at least one
// event-name pattern are required.
func (s *Subscription) Validate() error {
	if s.URL == "" || s.Name == "" || len(s.Events) == 0 {
		return ErrInvalidInput
	}
	return nil
}
