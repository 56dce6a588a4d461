package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Photo is one entry in a user's gallery. PhotoID is a stable identifier so
// deletes address a specific photo instead of a positional index.
type Photo struct {
	PhotoID  string `bson:"photoId" json:"photoId"`
	URL      string `bson:"url" json:"url"`
	PublicID string `bson:"publicId" json:"-"`
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	Role         string             `bson:"role" json:"role"`

	// Profile fields
	Name      string   `bson:"name" json:"name"`
	Bio       string   `bson:"bio" json:"bio"`
	Gender    string   `bson:"gender" json:"gender"`       // male, female; write-once
	BirthDate int64    `bson:"birthDate" json:"birthDate"` // Unix timestamp; write-once
	Location  string   `bson:"location" json:"location"`   // human-readable place label
	Latitude  *float64 `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude *float64 `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Interests []string `bson:"interests" json:"interests"`
	Photos    []Photo  `bson:"photos" json:"photos"`

	// Social graph. Insertion-ordered, set semantics enforced in the
	// matching engine. Likes and matches are append-only; the only removal
	// path is full account deletion.
	Likes   []primitive.ObjectID `bson:"likes" json:"likes"`
	Passes  []primitive.ObjectID `bson:"passes" json:"passes"`
	Matches []primitive.ObjectID `bson:"matches" json:"matches"`

	// Password reset. Both fields present only while a reset is pending.
	ResetTokenHash   *string    `bson:"resetTokenHash,omitempty" json:"-"`
	ResetTokenExpiry *time.Time `bson:"resetTokenExpiry,omitempty" json:"-"`

	Premium   bool  `bson:"premium" json:"premium"`
	CreatedAt int64 `bson:"createdAt" json:"createdAt"`
	LastSeen  int64 `bson:"lastSeen" json:"lastSeen"`
}

// PublicProfile is the password-stripped view served to other users.
type PublicProfile struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Name      string   `json:"name"`
	Bio       string   `json:"bio"`
	Gender    string   `json:"gender"`
	BirthDate int64    `json:"birthDate"`
	Location  string   `json:"location"`
	Interests []string `json:"interests"`
	Photos    []Photo  `json:"photos"`
	LastSeen  int64    `json:"lastSeen"`
}

// Public converts a full user document into its shareable view. Reset token
// and credential fields never leave this boundary.
func (u *User) Public() PublicProfile {
	interests := u.Interests
	if interests == nil {
		interests = []string{}
	}
	photos := u.Photos
	if photos == nil {
		photos = []Photo{}
	}
	return PublicProfile{
		ID:        u.ID.Hex(),
		Username:  u.Username,
		Name:      u.Name,
		Bio:       u.Bio,
		Gender:    u.Gender,
		BirthDate: u.BirthDate,
		Location:  u.Location,
		Interests: interests,
		Photos:    photos,
		LastSeen:  u.LastSeen,
	}
}

// HasRef reports whether ref is already present in the given id list.
func HasRef(list []primitive.ObjectID, ref primitive.ObjectID) bool {
	for _, id := range list {
		if id == ref {
			return true
		}
	}
	return false
}
