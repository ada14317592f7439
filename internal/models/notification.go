// internal/models/notification.go
package models

import "time"

// SendStatus is the delivery state of a notification request.
type SendStatus string

const (
	SendPending SendStatus = "PENDING"
	SendSent    SendStatus = "SENT"
	SendFailed  SendStatus = "FAILED"
)

// NotificationRequest records one outbound email about a listing to a
// recipient. The (ListingID, Recipient) pair is the dedup key: once a
// request for a pair is SENT it stays SENT and further notify calls for the
// pair return the recorded provider message id instead of re-dispatching.
type NotificationRequest struct {
	ID                string     `json:"id"`
	ListingID         string     `json:"listingId"`
	Recipient         string     `json:"recipient"`
	Status            SendStatus `json:"status"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	Attempts          int        `json:"attempts"`
	LastError         *string    `json:"lastError,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
