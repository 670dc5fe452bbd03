package models

import "time"

// Delivery statuses. Transitions are monotonic:
// pending -> delivered -> read, and pending -> read when the recipient
// reads before the delivery worker visits. Downgrades are refused.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
)

// DeliveryRecord tracks per-recipient delivery and read state for a message.
// Exactly one record exists per (message, recipient-other-than-sender).
type DeliveryRecord struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	MessageID   uint       `gorm:"not null;uniqueIndex:idx_delivery_msg_user" json:"messageId"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_delivery_msg_user;index:idx_delivery_user_status" json:"userId"`
	Status      string     `gorm:"size:16;default:pending;index:idx_delivery_user_status" json:"status"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// deliveryRank orders statuses for monotonicity checks.
func deliveryRank(status string) int {
	switch status {
	case DeliveryPending:
		return 0
	case DeliveryDelivered:
		return 1
	case DeliveryRead:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from into to is a legal (non-downgrade)
// delivery status transition.
func CanTransition(from, to string) bool {
	f, t := deliveryRank(from), deliveryRank(to)
	return f >= 0 && t >= 0 && t > f
}

// DeliveryStatusesBefore lists the statuses a record may legally reach the
// target from. Status updates scope their WHERE clause to this set, which is
// what makes the transitions monotonic under concurrent writers.
func DeliveryStatusesBefore(target string) []string {
	var from []string
	for _, s := range []string{DeliveryPending, DeliveryDelivered, DeliveryRead} {
		if CanTransition(s, target) {
			from = append(from, s)
		}
	}
	return from
}
