package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"kindled/models"
	"kindled/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-key-for-testing")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// memoryAccounts is an in-memory AccountDirectory mirroring the unique
// username and email indexes of the real collection.
type memoryAccounts struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{users: make(map[primitive.ObjectID]*models.User)}
}

func (d *memoryAccounts) Insert(_ context.Context, user *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return services.ErrDuplicate
		}
	}
	copied := *user
	d.users[user.ID] = &copied
	return nil
}

func (d *memoryAccounts) GetByEmail(_ context.Context, email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, user := range d.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, services.ErrNotFound
}

func (d *memoryAccounts) SetFields(_ context.Context, id primitive.ObjectID, fields bson.M) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[id]
	if !ok {
		return services.ErrNotFound
	}
	for key, value := range fields {
		switch key {
		case "passwordHash":
			user.PasswordHash = value.(string)
		case "lastSeen":
			user.LastSeen = value.(int64)
		case "premium":
			user.Premium = value.(bool)
		}
	}
	return nil
}

func (d *memoryAccounts) SetResetToken(_ context.Context, id primitive.ObjectID, tokenHash string, expiry time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[id]
	if !ok {
		return services.ErrNotFound
	}
	user.ResetTokenHash = &tokenHash
	user.ResetTokenExpiry = &expiry
	return nil
}

func (d *memoryAccounts) GetByResetToken(_ context.Context, tokenHash string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, user := range d.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash &&
			user.ResetTokenExpiry != nil && user.ResetTokenExpiry.After(time.Now()) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, services.ErrNotFound
}

func (d *memoryAccounts) SetPassword(_ context.Context, id primitive.ObjectID, passwordHash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[id]
	if !ok {
		return services.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.ResetTokenHash = nil
	user.ResetTokenExpiry = nil
	return nil
}

// captureMailer records reset URLs instead of sending email.
type captureMailer struct {
	urls []string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _, _, resetURL string) error {
	m.urls = append(m.urls, resetURL)
	return nil
}

func setupAuthTest() *captureMailer {
	accounts = newMemoryAccounts()
	mailer := &captureMailer{}
	mailSvc = mailer
	return mailer
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.POST("/api/signup", Signup)
	r.POST("/api/login", Login)
	r.POST("/api/forgot-password", ForgotPassword)
	r.POST("/api/reset-password", ResetPassword)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSignupDuplicateUsernameRejected(t *testing.T) {
	setupAuthTest()
	r := authRouter()

	w := postJSON(t, r, "/api/signup",
		`{"username":"alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, r, "/api/signup",
		`{"username":"alice","email":"other@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already in use")
}

func TestSignupDuplicateEmailRejected(t *testing.T) {
	setupAuthTest()
	r := authRouter()

	w := postJSON(t, r, "/api/signup",
		`{"username":"alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, r, "/api/signup",
		`{"username":"bob","email":"alice@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginWrongPasswordRejected(t *testing.T) {
	setupAuthTest()
	r := authRouter()

	w := postJSON(t, r, "/api/signup",
		`{"username":"alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, r, "/api/login",
		`{"email":"alice@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")
}

func TestForgotPasswordUnknownEmailSendsNothing(t *testing.T) {
	mailer := setupAuthTest()
	r := authRouter()

	w := postJSON(t, r, "/api/forgot-password", `{"email":"nobody@example.com"}`)

	// Same 200 and same body as the known-email case, and no email goes out.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), forgotPasswordResponse)
	assert.Empty(t, mailer.urls)
}

func TestForgotPasswordKnownEmailSendsLink(t *testing.T) {
	mailer := setupAuthTest()
	r := authRouter()

	w := postJSON(t, r, "/api/signup",
		`{"username":"alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, r, "/api/forgot-password", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), forgotPasswordResponse)
	require.Len(t, mailer.urls, 1)
	assert.Contains(t, mailer.urls[0], "token=")
}

func resetTokenFromURL(t *testing.T, resetURL string) string {
	t.Helper()
	parts := strings.SplitN(resetURL, "token=", 2)
	require.Len(t, parts, 2)
	return parts[1]
}

func TestResetTokenIsSingleUse(t *testing.T) {
	mailer := setupAuthTest()
	r := authRouter()

	w := postJSON(t, r, "/api/signup",
		`{"username":"alice","email":"alice@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, r, "/api/forgot-password", `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mailer.urls, 1)
	token := resetTokenFromURL(t, mailer.urls[0])

	w = postJSON(t, r, "/api/reset-password",
		`{"token":"`+token+`","password":"newsecret"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// The new password works.
	w = postJSON(t, r, "/api/login",
		`{"email":"alice@example.com","password":"newsecret"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// Replaying the same token does not.
	w = postJSON(t, r, "/api/reset-password",
		`{"token":"`+token+`","password":"hijacked"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or expired reset token")
}

func TestResetPasswordBogusTokenRejected(t *testing.T) {
	setupAuthTest()
	r := authRouter()

	w := postJSON(t, r, "/api/reset-password",
		`{"token":"not-a-real-token","password":"newsecret"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
