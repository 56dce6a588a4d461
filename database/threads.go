package database

import (
	"context"
	"time"

	"kindled/models"
	"kindled/services"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ThreadStore wraps the support-thread collection.
type ThreadStore struct {
	C *mongo.Collection
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{C: Threads}
}

func (s *ThreadStore) Insert(ctx context.Context, thread *models.Thread) error {
	_, err := s.C.InsertOne(ctx, thread)
	if mongo.IsDuplicateKeyError(err) {
		return services.ErrDuplicate
	}
	return err
}

func (s *ThreadStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Thread, error) {
	var thread models.Thread
	err := s.C.FindOne(ctx, bson.M{"_id": id}).Decode(&thread)
	if err == mongo.ErrNoDocuments {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (s *ThreadStore) GetByUser(ctx context.Context, userID primitive.ObjectID) (*models.Thread, error) {
	var thread models.Thread
	err := s.C.FindOne(ctx, bson.M{"userId": userID}).Decode(&thread)
	if err == mongo.ErrNoDocuments {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// AppendMessage pushes one message onto the thread and bumps lastActivity.
func (s *ThreadStore) AppendMessage(ctx context.Context, id primitive.ObjectID, msg models.ThreadMessage) error {
	result, err := s.C.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"lastActivity": time.Now().Unix()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *ThreadStore) SetStatus(ctx context.Context, id primitive.ObjectID, status string, adminID *primitive.ObjectID) error {
	set := bson.M{"status": status}
	if adminID != nil {
		set["adminId"] = *adminID
	}
	result, err := s.C.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// SetReply attaches the single nested reply to one message in the thread
// and bumps lastActivity.
func (s *ThreadStore) SetReply(ctx context.Context, id primitive.ObjectID, messageID string, reply models.Reply) error {
	result, err := s.C.UpdateOne(ctx,
		bson.M{"_id": id, "messages.messageId": messageID},
		bson.M{
			"$set": bson.M{
				"messages.$.reply": reply,
				"lastActivity":     time.Now().Unix(),
			},
		})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// ListByActivity returns threads newest-activity first, for the admin inbox.
func (s *ThreadStore) ListByActivity(ctx context.Context, limit int64) ([]models.Thread, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "lastActivity", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.C.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var threads []models.Thread
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}
