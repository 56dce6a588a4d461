package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"kindled/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// currentUserID pulls the authenticated user id set by the JWT middleware.
func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	userID, err := primitive.ObjectIDFromHex(c.GetString("userId"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return primitive.NilObjectID, false
	}
	return userID, true
}

func GetMyProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := userStore.Get(ctx, userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	profile := user.Public()
	c.JSON(http.StatusOK, gin.H{
		"id":        profile.ID,
		"username":  user.Username,
		"email":     user.Email,
		"name":      user.Name,
		"bio":       user.Bio,
		"gender":    user.Gender,
		"birthDate": user.BirthDate,
		"location":  user.Location,
		"latitude":  user.Latitude,
		"longitude": user.Longitude,
		"interests": profile.Interests,
		"photos":    profile.Photos,
		"premium":   user.Premium,
		"role":      user.Role,
		"createdAt": user.CreatedAt,
		"lastSeen":  user.LastSeen,
	})
}

// GetUser serves another user's password-stripped profile.
func GetUser(c *gin.Context) {
	targetID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := userStore.Get(ctx, targetID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user.Public())
}

type ProfileUpdate struct {
	Name      string   `json:"name"`
	Bio       string   `json:"bio"`
	Gender    string   `json:"gender"`
	BirthDate int64    `json:"birthDate"`
	Location  string   `json:"location"`
	Interests []string `json:"interests"`
}

func UpdateMyProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var data ProfileUpdate
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON data"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := userStore.Get(ctx, userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	set := bson.M{}
	if data.Name != "" {
		set["name"] = data.Name
	}
	if data.Bio != "" {
		set["bio"] = data.Bio
	}
	if data.Location != "" {
		set["location"] = data.Location
	}
	if data.Interests != nil {
		set["interests"] = data.Interests
	}

	// Gender and birth date are write-once.
	if data.Gender != "" {
		if user.Gender != "" && user.Gender != data.Gender {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Gender cannot be changed once set"})
			return
		}
		if data.Gender != models.GenderMale && data.Gender != models.GenderFemale {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Gender must be male or female"})
			return
		}
		set["gender"] = data.Gender
	}
	if data.BirthDate != 0 {
		if user.BirthDate != 0 && user.BirthDate != data.BirthDate {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Birth date cannot be changed once set"})
			return
		}
		set["birthDate"] = data.BirthDate
	}

	if len(set) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No changes to update"})
		return
	}

	if err := userStore.SetFields(ctx, userID, set); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
}

// UpdateMyLocation stores coordinates and resolves them to a place label.
// Geocoding failures degrade to a coordinate label, never an error.
func UpdateMyLocation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	label := geocodeSvc.ReverseGeocode(ctx, *req.Latitude, *req.Longitude)

	if err := userStore.SetFields(ctx, userID, bson.M{
		"latitude":  *req.Latitude,
		"longitude": *req.Longitude,
		"location":  label,
	}); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"location": label})
}

// UploadPhoto stores a gallery photo and appends it to the profile with a
// stable photo id.
func UploadPhoto(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form data"})
		return
	}

	photoFile, _, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No photo file provided"})
		return
	}
	defer photoFile.Close()

	if storageSvc == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Photo storage not configured"})
		return
	}

	photoID := uuid.NewString()
	url, publicID, err := storageSvc.UploadPhoto(ctx, photoFile, userID.Hex()+"_"+photoID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	photo := models.Photo{
		PhotoID:  photoID,
		URL:      url,
		PublicID: publicID,
	}
	if err := userStore.PushPhoto(ctx, userID, photo); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"photoId": photoID, "url": url})
}

// DeletePhoto removes one photo by its stable id. Storage deletion is
// idempotent; a handle that is already gone is not an error.
func DeletePhoto(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	photoID := c.Param("photoId")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := userStore.Get(ctx, userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	var publicID string
	for _, photo := range user.Photos {
		if photo.PhotoID == photoID {
			publicID = photo.PublicID
			break
		}
	}
	if publicID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Photo not found"})
		return
	}

	if storageSvc != nil {
		if err := storageSvc.DeletePhoto(ctx, publicID); err != nil {
			log.Printf("[DeletePhoto] storage delete failed for %s: %v", photoID, err)
		}
	}

	if err := userStore.PullPhoto(ctx, userID, photoID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Photo deleted"})
}

// DeleteMe removes the account and prunes its id from every other user's
// social-graph arrays.
func DeleteMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := matchSvc.RemoveUser(ctx, userID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}
