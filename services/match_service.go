package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"kindled/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExplorePageSize bounds the candidate list returned by Explore.
const ExplorePageSize = 20

// UserDirectory is the storage surface the matching engine needs.
type UserDirectory interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	AppendRef(ctx context.Context, id primitive.ObjectID, field string, ref primitive.ObjectID) error
	RemoveRef(ctx context.Context, id primitive.ObjectID, field string, ref primitive.ObjectID) error
	Candidates(ctx context.Context, exclude []primitive.ObjectID, gender string, limit int64) ([]models.User, error)
	PruneRefs(ctx context.Context, ref primitive.ObjectID) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// LikeResult reports whether a like completed the mutual pair.
type LikeResult struct {
	Matched bool
}

// MatchService drives like/pass/match transitions over the user directory.
//
// The mutual check plus the two matches writes are serialized per unordered
// user pair with an in-process lock, so concurrent Like(A,B) and Like(B,A)
// converge to exactly one symmetric match. The store remains the
// serialization point for everything else.
type MatchService struct {
	Users UserDirectory

	// Notify, when set, is called after a mutual match for each side.
	// Best effort only.
	Notify func(userID primitive.ObjectID, partnerName string)

	// DeletePhoto, when set, is called for each stored photo during
	// account deletion. Failures are logged, not surfaced.
	DeletePhoto func(ctx context.Context, publicID string) error

	mu    sync.Mutex
	locks map[[2]string]*pairLock
}

// pairLock carries a waiter count so the entry can be dropped from the map
// once the last holder releases it.
type pairLock struct {
	mu   sync.Mutex
	refs int
}

func NewMatchService(users UserDirectory) *MatchService {
	return &MatchService{
		Users: users,
		locks: make(map[[2]string]*pairLock),
	}
}

// lockPair serializes all matching operations on one unordered user pair.
func (ms *MatchService) lockPair(a, b primitive.ObjectID) func() {
	key := [2]string{a.Hex(), b.Hex()}
	if key[0] > key[1] {
		key[0], key[1] = key[1], key[0]
	}

	ms.mu.Lock()
	lock, ok := ms.locks[key]
	if !ok {
		lock = &pairLock{}
		ms.locks[key] = lock
	}
	lock.refs++
	ms.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		ms.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(ms.locks, key)
		}
		ms.mu.Unlock()
	}
}

// Like records actor liking target and, when target already liked actor,
// promotes the pair to a symmetric match.
func (ms *MatchService) Like(ctx context.Context, actorID, targetID primitive.ObjectID) (*LikeResult, error) {
	if actorID == targetID {
		return nil, ErrSelfAction
	}

	unlock := ms.lockPair(actorID, targetID)
	defer unlock()

	// Both reads happen under the pair lock so the mutual check cannot
	// race a reciprocal like.
	actor, err := ms.Users.Get(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target, err := ms.Users.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if models.HasRef(actor.Likes, targetID) {
		return nil, fmt.Errorf("%w: already liked", ErrDuplicate)
	}

	if err := ms.Users.AppendRef(ctx, actorID, "likes", targetID); err != nil {
		return nil, err
	}

	if !models.HasRef(target.Likes, actorID) {
		return &LikeResult{Matched: false}, nil
	}

	// Mutual like: write both sides of the match. If the second write
	// fails the first is rolled back so no one-sided match survives.
	if err := ms.Users.AppendRef(ctx, actorID, "matches", targetID); err != nil {
		return nil, err
	}
	if err := ms.Users.AppendRef(ctx, targetID, "matches", actorID); err != nil {
		if rbErr := ms.Users.RemoveRef(ctx, actorID, "matches", targetID); rbErr != nil {
			log.Printf("[MatchService] rollback of one-sided match %s->%s failed: %v",
				actorID.Hex(), targetID.Hex(), rbErr)
		}
		return nil, err
	}

	if ms.Notify != nil {
		ms.Notify(actorID, target.Name)
		ms.Notify(targetID, actor.Name)
	}

	return &LikeResult{Matched: true}, nil
}

// Pass records a unilateral rejection. Passing someone already matched is
// rejected rather than silently recorded alongside the match.
func (ms *MatchService) Pass(ctx context.Context, actorID, targetID primitive.ObjectID) error {
	if actorID == targetID {
		return ErrSelfAction
	}

	unlock := ms.lockPair(actorID, targetID)
	defer unlock()

	actor, err := ms.Users.Get(ctx, actorID)
	if err != nil {
		return err
	}
	if _, err := ms.Users.Get(ctx, targetID); err != nil {
		return err
	}

	if models.HasRef(actor.Passes, targetID) {
		return fmt.Errorf("%w: already passed", ErrDuplicate)
	}
	if models.HasRef(actor.Matches, targetID) {
		return ErrAlreadyMatched
	}

	return ms.Users.AppendRef(ctx, actorID, "passes", targetID)
}

// Explore returns a bounded page of candidates for actor, excluding the
// actor itself and everyone already liked or passed. When no explicit
// gender filter is given and the actor's own gender is one of the two
// binary values, the opposite gender is used; otherwise the filter is
// honored verbatim, which for an unset gender means no narrowing.
func (ms *MatchService) Explore(ctx context.Context, actorID primitive.ObjectID, genderFilter string, limit int64) ([]models.PublicProfile, error) {
	if limit <= 0 || limit > ExplorePageSize {
		limit = ExplorePageSize
	}

	actor, err := ms.Users.Get(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if genderFilter == "" {
		switch actor.Gender {
		case models.GenderMale:
			genderFilter = models.GenderFemale
		case models.GenderFemale:
			genderFilter = models.GenderMale
		}
	}

	exclude := make([]primitive.ObjectID, 0, 1+len(actor.Likes)+len(actor.Passes))
	exclude = append(exclude, actorID)
	exclude = append(exclude, actor.Likes...)
	exclude = append(exclude, actor.Passes...)

	candidates, err := ms.Users.Candidates(ctx, exclude, genderFilter, limit)
	if err != nil {
		return nil, err
	}

	profiles := make([]models.PublicProfile, 0, len(candidates))
	for i := range candidates {
		profiles = append(profiles, candidates[i].Public())
	}
	return profiles, nil
}

// ListMatches resolves actor's matches to password-stripped profiles.
func (ms *MatchService) ListMatches(ctx context.Context, actorID primitive.ObjectID) ([]models.PublicProfile, error) {
	actor, err := ms.Users.Get(ctx, actorID)
	if err != nil {
		return nil, err
	}

	users, err := ms.Users.GetMany(ctx, actor.Matches)
	if err != nil {
		return nil, err
	}

	profiles := make([]models.PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Public())
	}
	return profiles, nil
}

// RemoveUser deletes an account: the user's identifier is pruned from every
// other user's likes, passes and matches, stored photos are deleted best
// effort, then the document itself goes.
func (ms *MatchService) RemoveUser(ctx context.Context, id primitive.ObjectID) error {
	user, err := ms.Users.Get(ctx, id)
	if err != nil {
		return err
	}

	if ms.DeletePhoto != nil {
		for _, photo := range user.Photos {
			if err := ms.DeletePhoto(ctx, photo.PublicID); err != nil {
				log.Printf("[MatchService] photo cleanup for %s failed: %v", id.Hex(), err)
			}
		}
	}

	if err := ms.Users.PruneRefs(ctx, id); err != nil {
		return err
	}
	return ms.Users.Delete(ctx, id)
}
