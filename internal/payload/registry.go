package payload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quillhq/hookrelay/internal/domain"
)

// Payload is the body sent to a subscriber: the primary entity's id, its
// public model (nil when the entity is gone), and any related entity ids
// flattened alongside them.
type Payload struct {
	ID      string
	Model   map[string]any
	Related map[string]string
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Related)+2)
	m["id"] = p.ID
	if p.Model != nil {
		m["model"] = p.Model
	} else {
		m["model"] = nil
	}
	for k, v := range p.Related {
		m[k] = v
	}
	return json.Marshal(m)
}

// Builder resolves one event family to a payload.
type Builder func(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error)

// Registry dispatches events to family builders.
type Registry struct {
	reader   EntityReader
	builders map[domain.Family]Builder
	logger   *slog.Logger
}

// NewRegistry assembles the full builder table. The table covers every
// family in the taxonomy; an event name with no family is either skipped on
// purpose or unknown, and unknown names log a warning and build nothing.
func NewRegistry(reader EntityReader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		reader:   reader,
		logger:   logger,
		builders: map[domain.Family]Builder{
			domain.FamilyDocuments:             buildDocument,
			domain.FamilyDocumentMemberships:   buildDocumentMembership,
			domain.FamilyCollections:           buildCollection,
			domain.FamilyCollectionMemberships: buildCollectionMembership,
			domain.FamilyCollectionGroups:      buildCollectionGroup,
			domain.FamilyGroups:                buildGroup,
			domain.FamilyGroupMemberships:      buildGroupMembership,
			domain.FamilyIntegrations:          buildIntegration,
			domain.FamilyTeams:                 buildTeam,
			domain.FamilyPins:                  buildPin,
			domain.FamilyStars:                 buildStar,
			domain.FamilyShares:                buildShare,
			domain.FamilyViews:                 buildView,
			domain.FamilyComments:              buildComment,
			domain.FamilyFileOperations:        buildFileOperation,
			domain.FamilyRevisions:             buildRevision,
			domain.FamilySubscriptions:         buildWebhookSubscription,
			domain.FamilyUsers:                 buildUser,
		},
	}
}

// Covers reports whether the registry has a builder for the family.
// Exists so a test can assert the table is exhaustive over the taxonomy.
func (r *Registry) Covers(f domain.Family) bool {
	_, ok := r.builders[f]
	return ok
}

// Build resolves an event to its payload. ok is false when the event is
// matched but intentionally produces no delivery: skipped names, and the
// defensive unknown-name path that should be unreachable while the family
// table tracks the taxonomy.
func (r *Registry) Build(ctx context.Context, event *domain.Event) (p *Payload, ok bool, err error) {
	family, known := domain.FamilyOf(event.Name)
	if !known {
		if !domain.Skipped(event.Name) {
			r.logger.Warn("event name not covered by any payload family", "event", event.Name)
		}
		return nil, false, nil
	}

	builder, has := r.builders[family]
	if !has {
		r.logger.Warn("no payload builder registered for family", "family", family, "event", event.Name)
		return nil, false, nil
	}

	p, err = builder(ctx, r.reader, event)
	if err != nil {
		return nil, false, fmt.Errorf("build payload for %s: %w", event.Name, err)
	}
	return p, true, nil
}

func fromLookup(id string, l Lookup, related map[string]string) *Payload {
	p := &Payload{ID: id, Related: related}
	if l.State == LookupActive {
		p.Model = l.Model
	}
	return p
}

func buildDocument(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Document(ctx, event.DocumentID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.DocumentID, l, nil), nil
}

func buildDocumentMembership(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.User(ctx, event.UserID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.UserID, l, map[string]string{"documentId": event.DocumentID}), nil
}

func buildCollection(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Collection(ctx, event.CollectionID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.CollectionID, l, nil), nil
}

func buildCollectionMembership(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.User(ctx, event.UserID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.UserID, l, map[string]string{"collectionId": event.CollectionID}), nil
}

func buildCollectionGroup(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Group(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, map[string]string{"collectionId": event.CollectionID}), nil
}

func buildGroup(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Group(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, nil), nil
}

func buildGroupMembership(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.User(ctx, event.UserID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.UserID, l, map[string]string{"groupId": event.ModelID}), nil
}

func buildIntegration(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Integration(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, nil), nil
}

func buildTeam(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Team(ctx, event.TeamID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.TeamID, l, nil), nil
}

func buildPin(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Pin(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, nil), nil
}

func buildStar(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Star(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, nil), nil
}

func buildShare(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Share(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, nil), nil
}

func buildView(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.View(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, map[string]string{"documentId": event.DocumentID}), nil
}

func buildComment(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Comment(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, map[string]string{"documentId": event.DocumentID}), nil
}

func buildFileOperation(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.FileOperation(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, nil), nil
}

func buildRevision(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.Revision(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, map[string]string{"documentId": event.DocumentID}), nil
}

func buildWebhookSubscription(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.WebhookSubscription(ctx, event.ModelID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.ModelID, l, nil), nil
}

func buildUser(ctx context.Context, reader EntityReader, event *domain.Event) (*Payload, error) {
	l, err := reader.User(ctx, event.UserID)
	if err != nil {
		return nil, err
	}
	return fromLookup(event.UserID, l, nil), nil
}
