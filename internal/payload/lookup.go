// Package payload builds the JSON body sent to subscribers: the public
// representation of the entity a domain event refers to, plus related entity
// identifiers. Dispatch is keyed by event-name family; the handler table is
// assembled once at process start-up and passed in, never reached through
// globals.
package payload

import "context"

// LookupState is the three-way outcome of an entity lookup. Distinguishing
// "existed, now gone" from "never existed" keeps deletion events useful to
// subscribers: both yield a nil model, but the id is still correct.
type LookupState int

const (
	LookupActive LookupState = iota
	LookupDeleted
	LookupMissing
)

// Lookup carries the public representation of an entity. Model is non-nil
// only when State is LookupActive.
type Lookup struct {
	State LookupState
	Model map[string]any
}

// EntityReader is the read-only view of the product's domain model that
// payload construction needs. Every method must find soft-deleted rows,
// reporting them as LookupDeleted rather than LookupMissing.
type EntityReader interface {
	Document(ctx context.Context, id string) (Lookup, error)
	Collection(ctx context.Context, id string) (Lookup, error)
	Group(ctx context.Context, id string) (Lookup, error)
	User(ctx context.Context, id string) (Lookup, error)
	Team(ctx context.Context, id string) (Lookup, error)
	Pin(ctx context.Context, id string) (Lookup, error)
	Star(ctx context.Context, id string) (Lookup, error)
	Share(ctx context.Context, id string) (Lookup, error)
	View(ctx context.Context, id string) (Lookup, error)
	Comment(ctx context.Context, id string) (Lookup, error)
	FileOperation(ctx context.Context, id string) (Lookup, error)
	Revision(ctx context.Context, id string) (Lookup, error)
	Integration(ctx context.Context, id string) (Lookup, error)
	WebhookSubscription(ctx context.Context, id string) (Lookup, error)
}
