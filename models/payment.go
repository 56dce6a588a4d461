package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

type Payment struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"userId" json:"userId"`
	CheckoutRequestID string             `bson:"checkoutRequestId" json:"checkoutRequestId"`
	Phone             string             `bson:"phone" json:"phone"`
	Amount            int                `bson:"amount" json:"amount"`
	Status            string             `bson:"status" json:"status"` // pending, completed, failed
	Receipt           string             `bson:"receipt,omitempty" json:"receipt,omitempty"`
	CreatedAt         int64              `bson:"createdAt" json:"createdAt"`
	UpdatedAt         int64              `bson:"updatedAt" json:"updatedAt"`
}
