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

// UserStore wraps the users collection behind the interface the service
// layer consumes.
type UserStore struct {
	C *mongo.Collection
}

func NewUserStore() *UserStore {
	return &UserStore{C: Users}
}

func (s *UserStore) Insert(ctx context.Context, user *models.User) error {
	_, err := s.C.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return services.ErrDuplicate
	}
	return err
}

func (s *UserStore) Get(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.C.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.C.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.C.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	cursor, err := s.C.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AppendRef pushes ref onto one of the social-graph arrays (likes, passes,
// matches). Set semantics are the caller's responsibility.
func (s *UserStore) AppendRef(ctx context.Context, id primitive.ObjectID, field string, ref primitive.ObjectID) error {
	result, err := s.C.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$push": bson.M{field: ref}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// RemoveRef pulls ref back out of one of the social-graph arrays. Only used
// to roll back a half-written match; likes and matches are otherwise
// append-only.
func (s *UserStore) RemoveRef(ctx context.Context, id primitive.ObjectID, field string, ref primitive.ObjectID) error {
	result, err := s.C.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{field: ref}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// Candidates returns up to limit users excluding the given ids, optionally
// narrowed by gender. Ordering is whatever the store yields; callers must
// not rely on it.
func (s *UserStore) Candidates(ctx context.Context, exclude []primitive.ObjectID, gender string, limit int64) ([]models.User, error) {
	filter := bson.M{"_id": bson.M{"$nin": exclude}}
	if gender != "" {
		filter["gender"] = gender
	}

	cursor, err := s.C.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// PruneRefs removes ref from every other user's likes, passes and matches
// arrays. Called on account deletion so no dangling references survive.
func (s *UserStore) PruneRefs(ctx context.Context, ref primitive.ObjectID) error {
	_, err := s.C.UpdateMany(ctx, bson.M{}, bson.M{"$pull": bson.M{
		"likes":   ref,
		"passes":  ref,
		"matches": ref,
	}})
	return err
}

func (s *UserStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.C.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// SetFields applies a partial $set update to one user document.
// Last-write-wins at the granularity of the field set.
func (s *UserStore) SetFields(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	result, err := s.C.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *UserStore) PushPhoto(ctx context.Context, id primitive.ObjectID, photo models.Photo) error {
	result, err := s.C.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$push": bson.M{"photos": photo}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *UserStore) PullPhoto(ctx context.Context, id primitive.ObjectID, photoID string) error {
	result, err := s.C.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$pull": bson.M{"photos": bson.M{"photoId": photoID}}})
	if err != nil {
		return err
	}
	if result.ModifiedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// SetResetToken stores the hashed reset token and its expiry on the user.
func (s *UserStore) SetResetToken(ctx context.Context, id primitive.ObjectID, tokenHash string, expiry time.Time) error {
	return s.SetFields(ctx, id, bson.M{
		"resetTokenHash":   tokenHash,
		"resetTokenExpiry": expiry,
	})
}

// GetByResetToken finds the user holding an unexpired reset token hash.
func (s *UserStore) GetByResetToken(ctx context.Context, tokenHash string) (*models.User, error) {
	var user models.User
	err := s.C.FindOne(ctx, bson.M{
		"resetTokenHash":   tokenHash,
		"resetTokenExpiry": bson.M{"$gt": time.Now()},
	}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetPassword writes a new password hash and removes any pending reset
// token in the same update, so the token cannot survive a password change.
func (s *UserStore) SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	result, err := s.C.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"passwordHash": passwordHash},
		"$unset": bson.M{
			"resetTokenHash":   "",
			"resetTokenExpiry": "",
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
