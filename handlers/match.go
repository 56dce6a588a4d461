package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type swipeRequest struct {
	TargetUserID string `json:"targetUserId" binding:"required"`
}

func (r *swipeRequest) targetID(c *gin.Context) (primitive.ObjectID, bool) {
	targetID, err := primitive.ObjectIDFromHex(r.TargetUserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target user ID"})
		return primitive.NilObjectID, false
	}
	return targetID, true
}

func Like(c *gin.Context) {
	var req swipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := req.targetID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := matchSvc.Like(ctx, userID, targetID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if result.Matched {
		c.JSON(http.StatusOK, gin.H{"message": "It's a match!", "match": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Liked", "match": false})
}

func Pass(c *gin.Context) {
	var req swipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := req.targetID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := matchSvc.Pass(ctx, userID, targetID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Passed"})
}

// Explore serves a bounded page of swipe candidates.
func Explore(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

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

	profiles, err := matchSvc.Explore(ctx, userID, c.Query("gender"), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profiles)
}

func GetMatches(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profiles, err := matchSvc.ListMatches(ctx, userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profiles)
}
