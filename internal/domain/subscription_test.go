package domain

import "testing"

func TestSubscription_Matches(t *testing.T) {
	tests := []struct {
		name      string
		patterns  []string
		eventName string
		want      bool
	}{
		{"wildcard matches anything", []string{"*"}, "users.signin", true},
		{"literal match", []string{"documents.publish"}, "documents.publish", true},
		{"literal mismatch", []string{"users.create"}, "users.signin", false},
		{"wildcard among literals", []string{"users.create", "*"}, "comments.delete", true},
		{"no prefix matching", []string{"documents"}, "documents.publish", false},
		{"empty pattern set", nil, "users.signin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Subscription{Events: tt.patterns}
			if got := sub.Matches(tt.eventName); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.eventName, got, tt.want)
			}
		})
	}
}

func TestSubscription_Validate(t *testing.T) {
	valid := &Subscription{Name: "ci", URL: "https://example.com/hook", Events: []string{"*"}}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid subscription, got %v", err)
	}

	noEvents := &Subscription{Name: "ci", URL: "https://example.com/hook"}
	if err := noEvents.Validate(); err == nil {
		t.Error("expected error for subscription without event patterns")
	}

	noURL := &Subscription{Name: "ci", Events: []string{"*"}}
	if err := noURL.Validate(); err == nil {
		t.Error("expected error for subscription without URL")
	}
}
