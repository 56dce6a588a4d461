package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"kindled/database"
	"kindled/models"
	"kindled/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// InitiatePayment starts a premium purchase via STK push. The gateway
// reports the outcome later through PaymentCallback.
func InitiatePayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Phone  string `json:"phone" binding:"required,min=10,max=13"`
		Amount int    `json:"amount" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	checkoutID, err := paymentSvc.InitiateSTKPush(ctx, req.Phone, req.Amount)
	if err != nil {
		// Payment initiation is a critical collaborator: failures surface.
		writeServiceError(c, err)
		return
	}

	now := time.Now().Unix()
	payment := models.Payment{
		ID:                primitive.NewObjectID(),
		UserID:            userID,
		CheckoutRequestID: checkoutID,
		Phone:             req.Phone,
		Amount:            req.Amount,
		Status:            models.PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := database.Payments.InsertOne(ctx, payment); err != nil {
		log.Printf("[Payment] failed to record pending payment %s: %v", checkoutID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "Payment prompt sent to phone",
		"checkoutRequestId": checkoutID,
	})
}

// PaymentCallback receives the async gateway result. The gateway is always
// acked with a 200 regardless of business outcome; content is only trusted
// after validation.
func PaymentCallback(c *gin.Context) {
	ack := gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}

	var cb services.STKCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		log.Printf("[PaymentCallback] unreadable callback body: %v", err)
		c.JSON(http.StatusOK, ack)
		return
	}

	if err := paymentSvc.ValidateCallback(&cb); err != nil {
		log.Printf("[PaymentCallback] rejected callback: %v", err)
		c.JSON(http.StatusOK, ack)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sc := cb.Body.StkCallback
	status := models.PaymentCompleted
	if sc.ResultCode != 0 {
		status = models.PaymentFailed
	}

	var payment models.Payment
	err := database.Payments.FindOneAndUpdate(ctx,
		bson.M{"checkoutRequestId": sc.CheckoutRequestID},
		bson.M{"$set": bson.M{
			"status":    status,
			"receipt":   cb.Receipt(),
			"updatedAt": time.Now().Unix(),
		}},
	).Decode(&payment)
	if err == mongo.ErrNoDocuments {
		log.Printf("[PaymentCallback] no pending payment for %s", sc.CheckoutRequestID)
		c.JSON(http.StatusOK, ack)
		return
	}
	if err != nil {
		log.Printf("[PaymentCallback] failed to update payment %s: %v", sc.CheckoutRequestID, err)
		c.JSON(http.StatusOK, ack)
		return
	}

	if status == models.PaymentCompleted {
		if err := userStore.SetFields(ctx, payment.UserID, bson.M{"premium": true}); err != nil {
			log.Printf("[PaymentCallback] failed to set premium for %s: %v", payment.UserID.Hex(), err)
		}
	}

	c.JSON(http.StatusOK, ack)
}
