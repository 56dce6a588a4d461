package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"kindled/database"
	"kindled/models"
	"kindled/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccountDirectory is the slice of the user store the signup, login and
// password-reset flows touch. The matching engine consumes its own surface
// (services.UserDirectory); this one lets the auth handlers run against an
// in-memory store.
type AccountDirectory interface {
	Insert(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetFields(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	SetResetToken(ctx context.Context, id primitive.ObjectID, tokenHash string, expiry time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string) (*models.User, error)
	SetPassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error
}

// ResetMailer delivers the password-reset email.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, toEmail, toName, resetURL string) error
}

// Shared service handles wired in from main.
var (
	userStore   *database.UserStore
	accounts    AccountDirectory
	threadStore *database.ThreadStore
	matchSvc    *services.MatchService
	chatSvc     *services.ChatService
	geocodeSvc  *services.GeocodeService
	mailSvc     ResetMailer
	storageSvc  *services.StorageService
	paymentSvc  *services.PaymentService
	pushSvc     *services.PushService
)

// Init wires the handler package to its services. Called once from main
// after the database connection is up.
func Init(storage *services.StorageService) {
	userStore = database.NewUserStore()
	accounts = userStore
	threadStore = database.NewThreadStore()
	storageSvc = storage
	geocodeSvc = services.NewGeocodeService()
	mailSvc = services.NewMailService()
	paymentSvc = services.NewPaymentService()
	pushSvc = services.NewPushService(database.Subscriptions)

	matchSvc = services.NewMatchService(userStore)
	matchSvc.Notify = pushSvc.SendMatch
	if storageSvc != nil {
		matchSvc.DeletePhoto = storageSvc.DeletePhoto
	}

	chatSvc = services.NewChatService(threadStore, userStore)
	chatSvc.Notify = pushSvc.SendSupportReply
}

// writeServiceError maps service-layer sentinels to HTTP responses.
// Unrecognized errors become a 500 with no internal detail leaked.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrSelfAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyMatched):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrUpstream):
		log.Printf("[Handlers] upstream error: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream service failure"})
	default:
		log.Printf("[Handlers] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
