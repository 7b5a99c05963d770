package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sudeshabasnet/MediTrack-sub001/domain"
	"github.com/sudeshabasnet/MediTrack-sub001/internal/obs"
)

// Notification carries what downstream channels (email, push) need about an
// accepted order transition.
type Notification struct {
	ID         string             `json:"id"`
	OrderID    int64              `json:"order_id"`
	Status     domain.OrderStatus `json:"status"`
	Recipient  string             `json:"recipient"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// New builds a Notification with a fresh message id.
func New(orderID int64, status domain.OrderStatus, recipient string) Notification {
	return Notification{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		Status:     status,
		Recipient:  recipient,
		OccurredAt: time.Now().UTC(),
	}
}

// Dispatcher delivers a notification to its external channel. Delivery is
// at-most-once best effort; the caller never retries synchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// LogDispatcher writes notifications to the structured log. It stands in
// for the real email/push channel, which is external to this service.
type LogDispatcher struct{}

// Dispatch logs the notification.
func (LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	obs.Logger.Info("order notification",
		"message_id", n.ID,
		"order_id", n.OrderID,
		"status", string(n.Status),
		"recipient", n.Recipient,
	)
	return nil
}
