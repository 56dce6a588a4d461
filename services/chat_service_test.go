package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"kindled/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memoryThreads is an in-memory ThreadDirectory mirroring the unique
// userId index of the real collection.
type memoryThreads struct {
	mu      sync.Mutex
	threads map[primitive.ObjectID]*models.Thread
}

func newMemoryThreads() *memoryThreads {
	return &memoryThreads{threads: make(map[primitive.ObjectID]*models.Thread)}
}

func (d *memoryThreads) Insert(_ context.Context, thread *models.Thread) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.threads {
		if existing.UserID == thread.UserID {
			return ErrDuplicate
		}
	}
	copied := *thread
	d.threads[thread.ID] = &copied
	return nil
}

func (d *memoryThreads) Get(_ context.Context, id primitive.ObjectID) (*models.Thread, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	thread, ok := d.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *thread
	return &copied, nil
}

func (d *memoryThreads) GetByUser(_ context.Context, userID primitive.ObjectID) (*models.Thread, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, thread := range d.threads {
		if thread.UserID == userID {
			copied := *thread
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memoryThreads) AppendMessage(_ context.Context, id primitive.ObjectID, msg models.ThreadMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	thread, ok := d.threads[id]
	if !ok {
		return ErrNotFound
	}
	thread.Messages = append(thread.Messages, msg)
	thread.LastActivity = time.Now().Unix()
	return nil
}

func (d *memoryThreads) SetStatus(_ context.Context, id primitive.ObjectID, status string, adminID *primitive.ObjectID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	thread, ok := d.threads[id]
	if !ok {
		return ErrNotFound
	}
	thread.Status = status
	if adminID != nil {
		thread.AdminID = adminID
	}
	return nil
}

func (d *memoryThreads) SetReply(_ context.Context, id primitive.ObjectID, messageID string, reply models.Reply) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	thread, ok := d.threads[id]
	if !ok {
		return ErrNotFound
	}
	for i := range thread.Messages {
		if thread.Messages[i].MessageID == messageID {
			thread.Messages[i].Reply = &reply
			thread.LastActivity = time.Now().Unix()
			return nil
		}
	}
	return ErrNotFound
}

func (d *memoryThreads) ListByActivity(_ context.Context, limit int64) ([]models.Thread, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.Thread
	for _, thread := range d.threads {
		out = append(out, *thread)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity > out[j].LastActivity })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memoryNames resolves sender names from a fixed map.
type memoryNames struct {
	names map[primitive.ObjectID]string
}

func (r *memoryNames) GetMany(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if name, ok := r.names[id]; ok {
			out = append(out, models.User{ID: id, Name: name})
		}
	}
	return out, nil
}

func newChatFixture() (*ChatService, *memoryThreads, primitive.ObjectID, primitive.ObjectID) {
	threads := newMemoryThreads()
	userID := primitive.NewObjectID()
	adminID := primitive.NewObjectID()
	users := &memoryNames{names: map[primitive.ObjectID]string{
		userID:  "Alice",
		adminID: "Support",
	}}
	return NewChatService(threads, users), threads, userID, adminID
}

func TestPostMessageCreatesPendingThread(t *testing.T) {
	cs, threads, userID, _ := newChatFixture()
	ctx := context.Background()

	posted, err := cs.PostMessage(ctx, userID, userID, "hello, I need help")
	require.NoError(t, err)
	assert.Equal(t, models.ThreadPending, posted.Status)
	assert.Equal(t, userID, posted.Message.SenderID)
	assert.False(t, posted.Message.IsRead)

	thread, err := threads.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadPending, thread.Status)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "hello, I need help", thread.Messages[0].Body)
}

func TestPostMessageAppendsInOrder(t *testing.T) {
	cs, threads, userID, _ := newChatFixture()
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		_, err := cs.PostMessage(ctx, userID, userID, body)
		require.NoError(t, err)
	}

	thread, err := threads.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, thread.Messages, 3)
	assert.Equal(t, "first", thread.Messages[0].Body)
	assert.Equal(t, "third", thread.Messages[2].Body)
}

func TestPostMessageRejectsEmptyBody(t *testing.T) {
	cs, _, userID, _ := newChatFixture()

	_, err := cs.PostMessage(context.Background(), userID, userID, "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFetchThreadLazilyCreates(t *testing.T) {
	cs, _, userID, _ := newChatFixture()

	view, err := cs.FetchThread(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadPending, view.Status)
	assert.Empty(t, view.Messages)

	// A second fetch returns the same thread.
	again, err := cs.FetchThread(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, view.Thread.ID, again.Thread.ID)
}

func TestFetchThreadResolvesSenderNames(t *testing.T) {
	cs, _, userID, _ := newChatFixture()
	ctx := context.Background()

	_, err := cs.PostMessage(ctx, userID, userID, "hello")
	require.NoError(t, err)

	view, err := cs.FetchThread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", view.SenderNames[userID.Hex()])
}

func TestEngageOpensThread(t *testing.T) {
	cs, threads, userID, adminID := newChatFixture()
	ctx := context.Background()

	posted, err := cs.PostMessage(ctx, userID, userID, "hello")
	require.NoError(t, err)

	require.NoError(t, cs.Engage(ctx, posted.ThreadID, adminID))

	thread, err := threads.Get(ctx, posted.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadOpen, thread.Status)
	require.NotNil(t, thread.AdminID)
	assert.Equal(t, adminID, *thread.AdminID)
}

func TestEngageClosedThreadRejected(t *testing.T) {
	cs, _, userID, adminID := newChatFixture()
	ctx := context.Background()

	posted, err := cs.PostMessage(ctx, userID, userID, "hello")
	require.NoError(t, err)
	require.NoError(t, cs.Close(ctx, posted.ThreadID))

	assert.ErrorIs(t, cs.Engage(ctx, posted.ThreadID, adminID), ErrValidation)
}

func TestReplyAttachesNestedReply(t *testing.T) {
	cs, threads, userID, adminID := newChatFixture()
	ctx := context.Background()

	var notified primitive.ObjectID
	cs.Notify = func(id primitive.ObjectID, _ string) { notified = id }

	posted, err := cs.PostMessage(ctx, userID, userID, "my photos won't upload")
	require.NoError(t, err)

	err = cs.Reply(ctx, posted.ThreadID, posted.Message.MessageID, adminID, "try again now")
	require.NoError(t, err)

	thread, err := threads.Get(ctx, posted.ThreadID)
	require.NoError(t, err)
	require.NotNil(t, thread.Messages[0].Reply)
	assert.Equal(t, "try again now", thread.Messages[0].Reply.Body)
	assert.Equal(t, adminID, thread.Messages[0].Reply.SenderID)
	assert.Equal(t, userID, notified)
}

func TestReplyUnknownMessageRejected(t *testing.T) {
	cs, _, userID, adminID := newChatFixture()
	ctx := context.Background()

	posted, err := cs.PostMessage(ctx, userID, userID, "hello")
	require.NoError(t, err)

	err = cs.Reply(ctx, posted.ThreadID, "no-such-message", adminID, "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListThreadsNewestActivityFirst(t *testing.T) {
	cs, threads, userID, _ := newChatFixture()
	ctx := context.Background()

	otherID := primitive.NewObjectID()
	_, err := cs.PostMessage(ctx, userID, userID, "older")
	require.NoError(t, err)

	// Force distinct activity timestamps.
	first, err := threads.GetByUser(ctx, userID)
	require.NoError(t, err)
	threads.mu.Lock()
	threads.threads[first.ID].LastActivity -= 100
	threads.mu.Unlock()

	_, err = cs.PostMessage(ctx, otherID, otherID, "newer")
	require.NoError(t, err)

	listed, err := cs.ListThreads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, otherID, listed[0].UserID)
}
