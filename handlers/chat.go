package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GetSupportThread returns the caller's support thread, creating an empty
// pending one on first fetch.
func GetSupportThread(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	view, err := chatSvc.FetchThread(ctx, userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// PostSupportMessage appends a message to the caller's support thread,
// whatever the thread's status or admin assignment.
func PostSupportMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	posted, err := chatSvc.PostMessage(ctx, userID, userID, req.Body)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, posted)
}

// ---- Admin endpoints ----

func ListSupportThreads(c *gin.Context) {
	var limit int64
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	threads, err := chatSvc.ListThreads(ctx, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, threads)
}

func threadIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	threadID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid thread ID"})
		return primitive.NilObjectID, false
	}
	return threadID, true
}

// EngageThread assigns the calling admin to a thread and opens it.
func EngageThread(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := chatSvc.Engage(ctx, threadID, adminID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Thread opened"})
}

func CloseThread(c *gin.Context) {
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := chatSvc.Close(ctx, threadID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Thread closed"})
}

// ReplyToMessage attaches the single nested admin reply to one message.
func ReplyToMessage(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	threadID, ok := threadIDParam(c)
	if !ok {
		return
	}

	var req struct {
		MessageID string `json:"messageId" binding:"required"`
		Body      string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := chatSvc.Reply(ctx, threadID, req.MessageID, adminID, req.Body); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Reply sent"})
}
