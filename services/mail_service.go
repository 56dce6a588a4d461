package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// MailService sends transactional email via a Mailtrap-style JSON API.
type MailService struct {
	APIKey    string
	URL       string
	FromEmail string
	FromName  string
	Client    *http.Client
}

func NewMailService() *MailService {
	return &MailService{
		APIKey:    os.Getenv("MAIL_API_KEY"),
		URL:       os.Getenv("MAIL_API_URL"),
		FromEmail: "noreply@kindled.app",
		FromName:  "Kindled",
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type emailRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type emailRequest struct {
	From     emailRecipient   `json:"from"`
	To       []emailRecipient `json:"to"`
	Subject  string           `json:"subject"`
	HTML     string           `json:"html,omitempty"`
	Text     string           `json:"text,omitempty"`
	Category string           `json:"category,omitempty"`
}

// SendPasswordReset sends the reset link. Callers in the forgot-password
// flow must treat a failure as log-only: the HTTP response stays a generic
// success so registered addresses cannot be enumerated.
func (m *MailService) SendPasswordReset(ctx context.Context, toEmail, toName, resetURL string) error {
	htmlBody := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
			<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
				<h2>Reset your Kindled password</h2>
				<p>Hello %s,</p>
				<p>We received a request to reset your password. Click the button below to reset it:</p>
				<p style="margin: 30px 0;">
					<a href="%s" style="background-color: #e0245e; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; display: inline-block;">Reset Password</a>
				</p>
				<p>Or copy and paste this link into your browser:</p>
				<p style="word-break: break-all; color: #e0245e;">%s</p>
				<p>This link will expire in 10 minutes.</p>
				<p>If you didn't request a password reset, you can safely ignore this email.</p>
			</div>
		</body>
		</html>
	`, toName, resetURL, resetURL)

	textBody := fmt.Sprintf(`Hello %s,

We received a request to reset your Kindled password. Open the link below to reset it:

%s

This link will expire in 10 minutes. If you didn't request a reset, ignore this email.
`, toName, resetURL)

	return m.send(ctx, emailRequest{
		From:     emailRecipient{Email: m.FromEmail, Name: m.FromName},
		To:       []emailRecipient{{Email: toEmail, Name: toName}},
		Subject:  "Reset your Kindled password",
		HTML:     htmlBody,
		Text:     textBody,
		Category: "password_reset",
	})
}

func (m *MailService) send(ctx context.Context, emailReq emailRequest) error {
	payload, err := json.Marshal(emailReq)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to send email: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: mail API returned status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}
