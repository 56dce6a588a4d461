package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// PaymentService initiates M-Pesa-style STK push payments. The gateway
// reports the business outcome asynchronously via a callback; see
// ValidateCallback.
type PaymentService struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	Client         *http.Client
}

func NewPaymentService() *PaymentService {
	base := os.Getenv("MPESA_API_URL")
	if base == "" {
		base = "https://sandbox.safaricom.co.ke"
	}
	return &PaymentService{
		BaseURL:        base,
		ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		Shortcode:      os.Getenv("MPESA_SHORTCODE"),
		Passkey:        os.Getenv("MPESA_PASSKEY"),
		CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		Client:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (ps *PaymentService) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ps.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(ps.ConsumerKey, ps.ConsumerSecret)

	resp, err := ps.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token request returned status %d", ErrUpstream, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: bad token response: %v", ErrUpstream, err)
	}
	return body.AccessToken, nil
}

// InitiateSTKPush asks the gateway to push a payment prompt to the phone.
// Returns the checkout request ID the async callback will reference.
func (ps *PaymentService) InitiateSTKPush(ctx context.Context, phone string, amount int) (string, error) {
	token, err := ps.accessToken(ctx)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(ps.Shortcode + ps.Passkey + timestamp))

	payload, err := json.Marshal(map[string]interface{}{
		"BusinessShortCode": ps.Shortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            ps.Shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       ps.CallbackURL,
		"AccountReference":  "Kindled",
		"TransactionDesc":   "Kindled premium",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		ps.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ps.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: stk push failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: stk push returned status %d", ErrUpstream, resp.StatusCode)
	}

	var body struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
		ResponseDesc      string `json:"ResponseDescription"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: bad stk push response: %v", ErrUpstream, err)
	}
	if body.ResponseCode != "0" {
		return "", fmt.Errorf("%w: stk push rejected: %s", ErrUpstream, body.ResponseDesc)
	}
	return body.CheckoutRequestID, nil
}

// STKCallback is the async payment result posted by the gateway.
type STKCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			BusinessShortCode string `json:"BusinessShortCode"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ValidateCallback checks that a callback is one we are expecting. The
// handler always acks the gateway with a 200 either way; validation only
// decides whether the content is trusted.
func (ps *PaymentService) ValidateCallback(cb *STKCallback) error {
	sc := cb.Body.StkCallback
	if sc.CheckoutRequestID == "" {
		return fmt.Errorf("%w: missing checkout request id", ErrValidation)
	}
	if sc.BusinessShortCode != "" && sc.BusinessShortCode != ps.Shortcode {
		return fmt.Errorf("%w: unexpected shortcode", ErrValidation)
	}
	return nil
}

// Receipt extracts the payment receipt number from callback metadata.
func (cb *STKCallback) Receipt() string {
	for _, item := range cb.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}
