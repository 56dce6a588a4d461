package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	ThreadPending = "pending"
	ThreadOpen    = "open"
	ThreadClosed  = "closed"
)

// Reply is the single nested admin reply a message can carry.
type Reply struct {
	SenderID  primitive.ObjectID `bson:"senderId" json:"senderId"`
	Body      string             `bson:"body" json:"body"`
	CreatedAt int64              `bson:"createdAt" json:"createdAt"`
}

type ThreadMessage struct {
	MessageID string             `bson:"messageId" json:"messageId"`
	SenderID  primitive.ObjectID `bson:"senderId" json:"senderId"`
	Body      string             `bson:"body" json:"body"`
	IsRead    bool               `bson:"isRead" json:"isRead"`
	CreatedAt int64              `bson:"createdAt" json:"createdAt"`
	Reply     *Reply             `bson:"reply,omitempty" json:"reply,omitempty"`
}

// Thread is the single support conversation between one user and the admin
// role. One thread per user, messages append-only, never deleted.
type Thread struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID  `bson:"userId" json:"userId"`
	AdminID      *primitive.ObjectID `bson:"adminId,omitempty" json:"adminId,omitempty"`
	Status       string              `bson:"status" json:"status"` // pending, open, closed
	Messages     []ThreadMessage     `bson:"messages" json:"messages"`
	LastActivity int64               `bson:"lastActivity" json:"lastActivity"`
	CreatedAt    int64               `bson:"createdAt" json:"createdAt"`
}
