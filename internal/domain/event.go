package domain

import (
	"encoding/json"
	"time"
)

// Event is an immutable record of something that happened in the wider
// product. Events are produced entirely outside this engine; we only consume
// them. Entity reference fields are set as applicable for the event name.
type Event struct {
	Name         string          `json:"name"`
	TeamID       string          `json:"teamId,omitempty"`
	ActorID      string          `json:"actorId,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	DocumentID   string          `json:"documentId,omitempty"`
	CollectionID string          `json:"collectionId,omitempty"`
	GroupID      string          `json:"groupId,omitempty"`
	ModelID      string          `json:"modelId,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	IP           string          `json:"ip,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Family groups event names by the entity type their payload is built from.
type Family string

const (
	FamilyDocuments             Family = "documents"
	FamilyDocumentMemberships   Family = "documentMemberships"
	FamilyCollections           Family = "collections"
	FamilyCollectionMemberships Family = "collectionMemberships"
	FamilyCollectionGroups      Family = "collectionGroups"
	FamilyGroups                Family = "groups"
	FamilyGroupMemberships      Family = "groupMemberships"
	FamilyIntegrations          Family = "integrations"
	FamilyTeams                 Family = "teams"
	FamilyPins                  Family = "pins"
	FamilyStars                 Family = "stars"
	FamilyShares                Family = "shares"
	FamilyViews                 Family = "views"
	FamilyComments              Family = "comments"
	FamilyFileOperations        Family = "fileOperations"
	FamilyRevisions             Family = "revisions"
	FamilySubscriptions         Family = "webhookSubscriptions"
	FamilyUsers                 Family = "users"
)

// eventFamilies is the full event-name taxonomy, keyed by family. Names not
// listed here and not in skippedEvents are unknown to the engine.
var eventFamilies = map[Family][]string{
	FamilyDocuments: {
		"documents.create",
		"documents.publish",
		"documents.unpublish",
		"documents.archive",
		"documents.unarchive",
		"documents.restore",
		"documents.delete",
		"documents.permanent_delete",
		"documents.move",
		"documents.update",
		"documents.title_change",
	},
	FamilyDocumentMemberships: {
		"documents.add_user",
		"documents.remove_user",
	},
	FamilyCollections: {
		"collections.create",
		"collections.update",
		"collections.move",
		"collections.archive",
		"collections.restore",
		"collections.delete",
		"collections.permanent_delete",
	},
	FamilyCollectionMemberships: {
		"collections.add_user",
		"collections.remove_user",
	},
	FamilyCollectionGroups: {
		"collections.add_group",
		"collections.remove_group",
	},
	FamilyGroups: {
		"groups.create",
		"groups.update",
		"groups.delete",
	},
	FamilyGroupMemberships: {
		"groups.add_user",
		"groups.remove_user",
	},
	FamilyIntegrations: {
		"integrations.create",
		"integrations.update",
		"integrations.delete",
	},
	FamilyTeams: {
		"teams.update",
	},
	FamilyPins: {
		"pins.create",
		"pins.update",
		"pins.delete",
	},
	FamilyStars: {
		"stars.create",
		"stars.update",
		"stars.delete",
	},
	FamilyShares: {
		"shares.create",
		"shares.update",
		"shares.revoke",
	},
	FamilyViews: {
		"views.create",
	},
	FamilyComments: {
		"comments.create",
		"comments.update",
		"comments.delete",
	},
	FamilyFileOperations: {
		"fileOperations.create",
		"fileOperations.update",
		"fileOperations.delete",
	},
	FamilyRevisions: {
		"revisions.create",
	},
	FamilySubscriptions: {
		"webhookSubscriptions.create",
		"webhookSubscriptions.update",
		"webhookSubscriptions.delete",
	},
	FamilyUsers: {
		"users.create",
		"users.signin",
		"users.update",
		"users.suspend",
		"users.activate",
		"users.invite",
		"users.promote",
		"users.demote",
		"users.delete",
	},
}

// skippedEvents are names that are part of the taxonomy but intentionally
// produce no delivery: housekeeping ticks and noise no subscriber cares about.
var skippedEvents = map[string]struct{}{
	"documents.update.delayed":   {},
	"documents.update.debounced": {},
	"comments.add_reaction":      {},
	"comments.remove_reaction":   {},
	"notifications.create":       {},
	"notifications.update":       {},
	"users.signout":              {},
}

var familyByName = func() map[string]Family {
	m := make(map[string]Family)
	for f, names := range eventFamilies {
		for _, n := range names {
			m[n] = f
		}
	}
	return m
}()

// FamilyOf resolves an event name to its family. ok is false for names the
// engine does not deliver, whether skipped or unknown.
func FamilyOf(name string) (Family, bool) {
	f, ok := familyByName[name]
	return f, ok
}

// Skipped reports whether the event name is known but deliberately dropped.
func Skipped(name string) bool {
	_, ok := skippedEvents[name]
	return ok
}

// EventNames returns every deliverable event name in the taxonomy.
func EventNames() []string {
	names := make([]string, 0, len(familyByName))
	for n := range familyByName {
		names = append(names, n)
	}
	return names
}
