package delivery

import (
	"errors"
	"net/http"
	"time"
)

// ErrRedirectRefused marks a destination that answered with a redirect.
// Redirects are never followed: a compromised or misconfigured destination
// must not be able to bounce deliveries elsewhere.
var ErrRedirectRefused = errors.New("destination redirected the delivery")

// DefaultTimeout bounds the one outbound POST per delivery attempt.
const DefaultTimeout = 5 * time.Second

// NewHTTPClient returns the client used for webhook POSTs: bounded timeout,
// redirects refused.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return ErrRedirectRefused
		},
	}
}
