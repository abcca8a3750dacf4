package mail

import (
	"context"
	"fmt"

	"github.com/quillhq/hookrelay/internal/domain"
)

// UserDirectory resolves a user id to an email address. Implemented by the
// postgres entity reader.
type UserDirectory interface {
	UserEmail(ctx context.Context, id string) (string, error)
}

// Notifier composes and sends the subscription-disabled notice.
type Notifier struct {
	users  UserDirectory
	mailer Mailer
}

func NewNotifier(users UserDirectory, mailer Mailer) *Notifier {
	return &Notifier{users: users, mailer: mailer}
}

// SubscriptionDisabled emails the subscription's original creator that the
// circuit breaker turned it off.
func (n *Notifier) SubscriptionDisabled(ctx context.Context, sub *domain.Subscription) error {
	to, err := n.users.UserEmail(ctx, sub.CreatedByID)
	if err != nil {
		return fmt.Errorf("resolve creator email: %w", err)
	}

	subject := fmt.Sprintf("Webhook %q disabled", sub.Name)
	body := fmt.Sprintf(
		"Your webhook %q has been automatically disabled because its recent "+
			"deliveries to %s all failed.\n\nFix the destination and re-enable "+
			"the webhook from your team's integration settings.\n",
		sub.Name, sub.URL,
	)

	return n.mailer.Send(ctx, to, subject, body)
}
