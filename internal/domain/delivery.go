package domain

import "time"

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// Delivery is one logged attempt to send a subscription's payload for one
// event. A row is created in pending state before the network call and
// finalized exactly once afterward; it is never updated again. Rows are
// removed only by the retention sweeper.
type Delivery struct {
	ID              string            `json:"id"`
	SubscriptionID  string            `json:"webhookSubscriptionId"`
	Status          DeliveryStatus    `json:"status"`
	StatusCode      *int              `json:"statusCode,omitempty"`
	RequestBody     []byte            `json:"requestBody,omitempty"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseBody    []byte            `json:"responseBody,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Finalize records the terminal state of the attempt. statusCode is nil for
// transport-level failures where no response was received.
func (d *Delivery) Finalize(status DeliveryStatus, statusCode *int) {
	d.Status = status
	d.StatusCode = statusCode
}
