package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kindled/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ThreadDirectory is the storage surface the support chat needs.
type ThreadDirectory interface {
	Insert(ctx context.Context, thread *models.Thread) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Thread, error)
	GetByUser(ctx context.Context, userID primitive.ObjectID) (*models.Thread, error)
	AppendMessage(ctx context.Context, id primitive.ObjectID, msg models.ThreadMessage) error
	SetStatus(ctx context.Context, id primitive.ObjectID, status string, adminID *primitive.ObjectID) error
	SetReply(ctx context.Context, id primitive.ObjectID, messageID string, reply models.Reply) error
	ListByActivity(ctx context.Context, limit int64) ([]models.Thread, error)
}

// NameResolver maps user ids to display names for thread rendering.
type NameResolver interface {
	GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

// PostedMessage is what PostMessage hands back to the caller.
type PostedMessage struct {
	ThreadID primitive.ObjectID   `json:"threadId"`
	Status   string               `json:"status"`
	Message  models.ThreadMessage `json:"message"`
}

// ThreadView is a thread with sender names resolved.
type ThreadView struct {
	models.Thread
	SenderNames map[string]string `json:"senderNames"`
}

// ChatService maintains exactly one append-only support conversation per
// user. Messages land whether or not an admin has engaged the thread.
type ChatService struct {
	Threads ThreadDirectory
	Users   NameResolver

	// Notify, when set, is called when an admin reply lands on a user's
	// thread. Best effort only.
	Notify func(userID primitive.ObjectID, body string)
}

func NewChatService(threads ThreadDirectory, users NameResolver) *ChatService {
	return &ChatService{Threads: threads, Users: users}
}

// ensureThread returns the user's thread, lazily creating a pending one.
func (cs *ChatService) ensureThread(ctx context.Context, userID primitive.ObjectID) (*models.Thread, error) {
	thread, err := cs.Threads.GetByUser(ctx, userID)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().Unix()
	thread = &models.Thread{
		ID:           primitive.NewObjectID(),
		UserID:       userID,
		Status:       models.ThreadPending,
		Messages:     []models.ThreadMessage{},
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := cs.Threads.Insert(ctx, thread); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the creation race; the winner's thread is the thread.
			return cs.Threads.GetByUser(ctx, userID)
		}
		return nil, err
	}
	return thread, nil
}

// PostMessage appends a message to the user's thread, creating the thread
// with status pending if absent.
func (cs *ChatService) PostMessage(ctx context.Context, userID, senderID primitive.ObjectID, body string) (*PostedMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is required", ErrValidation)
	}

	thread, err := cs.ensureThread(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg := models.ThreadMessage{
		MessageID: uuid.NewString(),
		SenderID:  senderID,
		Body:      body,
		IsRead:    false,
		CreatedAt: time.Now().Unix(),
	}
	if err := cs.Threads.AppendMessage(ctx, thread.ID, msg); err != nil {
		return nil, err
	}

	return &PostedMessage{
		ThreadID: thread.ID,
		Status:   thread.Status,
		Message:  msg,
	}, nil
}

// FetchThread returns the user's thread with sender names resolved, lazily
// creating an empty pending thread if none exists.
func (cs *ChatService) FetchThread(ctx context.Context, userID primitive.ObjectID) (*ThreadView, error) {
	thread, err := cs.ensureThread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cs.resolve(ctx, thread)
}

func (cs *ChatService) resolve(ctx context.Context, thread *models.Thread) (*ThreadView, error) {
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, msg := range thread.Messages {
		if !seen[msg.SenderID] {
			seen[msg.SenderID] = true
			ids = append(ids, msg.SenderID)
		}
		if msg.Reply != nil && !seen[msg.Reply.SenderID] {
			seen[msg.Reply.SenderID] = true
			ids = append(ids, msg.Reply.SenderID)
		}
	}

	names := map[string]string{}
	if len(ids) > 0 {
		users, err := cs.Users.GetMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range users {
			names[users[i].ID.Hex()] = users[i].Name
		}
	}

	return &ThreadView{Thread: *thread, SenderNames: names}, nil
}

// Engage assigns an admin to a pending thread and opens it.
func (cs *ChatService) Engage(ctx context.Context, threadID, adminID primitive.ObjectID) error {
	thread, err := cs.Threads.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.Status == models.ThreadClosed {
		return fmt.Errorf("%w: thread is closed", ErrValidation)
	}
	return cs.Threads.SetStatus(ctx, threadID, models.ThreadOpen, &adminID)
}

// Close moves a thread to closed. Messages remain; the thread is never
// deleted.
func (cs *ChatService) Close(ctx context.Context, threadID primitive.ObjectID) error {
	if _, err := cs.Threads.Get(ctx, threadID); err != nil {
		return err
	}
	return cs.Threads.SetStatus(ctx, threadID, models.ThreadClosed, nil)
}

// Reply attaches the single nested admin reply to one message.
func (cs *ChatService) Reply(ctx context.Context, threadID primitive.ObjectID, messageID string, adminID primitive.ObjectID, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("%w: reply body is required", ErrValidation)
	}

	thread, err := cs.Threads.Get(ctx, threadID)
	if err != nil {
		return err
	}

	reply := models.Reply{
		SenderID:  adminID,
		Body:      body,
		CreatedAt: time.Now().Unix(),
	}
	if err := cs.Threads.SetReply(ctx, threadID, messageID, reply); err != nil {
		return err
	}

	if cs.Notify != nil {
		cs.Notify(thread.UserID, body)
	}
	return nil
}

// ListThreads returns the admin inbox, newest activity first.
func (cs *ChatService) ListThreads(ctx context.Context, limit int64) ([]models.Thread, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return cs.Threads.ListByActivity(ctx, limit)
}
