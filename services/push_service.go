package services

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"kindled/models"

	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PushService sends web push notifications for matches and support replies.
type PushService struct {
	Subs       *mongo.Collection
	PublicKey  string
	privateKey string
	Subscriber string
}

func NewPushService(subs *mongo.Collection) *PushService {
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")

	if publicKey == "" || privateKey == "" {
		var err error
		publicKey, privateKey, err = webpush.GenerateVAPIDKeys()
		if err != nil {
			log.Printf("[Push] failed to generate VAPID keys: %v", err)
		} else {
			log.Println("[Push] generated ephemeral VAPID keys; set VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY in production")
		}
	}

	return &PushService{
		Subs:       subs,
		PublicKey:  publicKey,
		privateKey: privateKey,
		Subscriber: "mailto:support@kindled.app",
	}
}

// Subscribe upserts the user's push subscription.
func (p *PushService) Subscribe(ctx context.Context, userID primitive.ObjectID, sub webpush.Subscription) error {
	pushSub := models.PushSubscription{
		ID:     primitive.NewObjectID(),
		UserID: userID,
		Sub:    sub,
	}
	_, err := p.Subs.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{"$set": pushSub},
		options.Update().SetUpsert(true),
	)
	return err
}

// Send delivers a notification to the user's subscription, if any. Runs in
// the background; failures are logged, never surfaced.
func (p *PushService) Send(userID primitive.ObjectID, title, body string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Push] panic while sending notification: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var sub models.PushSubscription
		err := p.Subs.FindOne(ctx, bson.M{"userId": userID}).Decode(&sub)
		if err == mongo.ErrNoDocuments {
			return
		}
		if err != nil {
			log.Printf("[Push] failed to load subscription for %s: %v", userID.Hex(), err)
			return
		}

		payload, err := json.Marshal(map[string]interface{}{
			"title": title,
			"body":  body,
			"data": map[string]interface{}{
				"timestamp": time.Now().Unix(),
			},
		})
		if err != nil {
			log.Printf("[Push] failed to marshal payload: %v", err)
			return
		}

		resp, err := webpush.SendNotification(payload, &sub.Sub, &webpush.Options{
			Subscriber:      p.Subscriber,
			VAPIDPrivateKey: p.privateKey,
			TTL:             30,
		})
		if err != nil {
			log.Printf("[Push] send to %s failed: %v", userID.Hex(), err)
			// Expired subscription, drop it.
			if resp != nil && resp.StatusCode == 410 {
				if _, delErr := p.Subs.DeleteOne(ctx, bson.M{"userId": userID}); delErr != nil {
					log.Printf("[Push] failed to delete expired subscription: %v", delErr)
				}
			}
			return
		}
		resp.Body.Close()
	}()
}

// SendMatch notifies a user about a new mutual match.
func (p *PushService) SendMatch(userID primitive.ObjectID, partnerName string) {
	if partnerName == "" {
		partnerName = "someone new"
	}
	p.Send(userID, "It's a match! 🎉", "You matched with "+partnerName)
}

// SendSupportReply notifies a user that support answered their message.
func (p *PushService) SendSupportReply(userID primitive.ObjectID, body string) {
	if len(body) > 100 {
		body = body[:100] + "..."
	}
	p.Send(userID, "Support replied", body)
}
