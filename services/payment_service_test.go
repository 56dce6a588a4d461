package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(baseURL string) *PaymentService {
	return &PaymentService{
		BaseURL:        baseURL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/api/payments/callback",
		Client:         &http.Client{Timeout: 2 * time.Second},
	}
}

func stkGateway(t *testing.T, pushStatus int, pushBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "key" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"access_token":"test-token","expires_in":"3599"}`))
		case "/mpesa/stkpush/v1/processrequest":
			if r.Header.Get("Authorization") != "Bearer test-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(pushStatus)
			w.Write([]byte(pushBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestInitiateSTKPushReturnsCheckoutID(t *testing.T) {
	srv := stkGateway(t, http.StatusOK,
		`{"CheckoutRequestID":"ws_CO_123","ResponseCode":"0","ResponseDescription":"Success"}`)
	defer srv.Close()

	ps := newTestPayment(srv.URL)
	id, err := ps.InitiateSTKPush(context.Background(), "254712345678", 500)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_123", id)
}

func TestInitiateSTKPushRejectedByGateway(t *testing.T) {
	srv := stkGateway(t, http.StatusOK,
		`{"ResponseCode":"1","ResponseDescription":"Insufficient funds"}`)
	defer srv.Close()

	ps := newTestPayment(srv.URL)
	_, err := ps.InitiateSTKPush(context.Background(), "254712345678", 500)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestInitiateSTKPushGatewayError(t *testing.T) {
	srv := stkGateway(t, http.StatusInternalServerError, `{}`)
	defer srv.Close()

	ps := newTestPayment(srv.URL)
	_, err := ps.InitiateSTKPush(context.Background(), "254712345678", 500)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestValidateCallback(t *testing.T) {
	ps := newTestPayment("")

	valid := &STKCallback{}
	valid.Body.StkCallback.CheckoutRequestID = "ws_CO_123"
	valid.Body.StkCallback.BusinessShortCode = "174379"
	assert.NoError(t, ps.ValidateCallback(valid))

	// Shortcode is optional in the payload but must match when present.
	noShortcode := &STKCallback{}
	noShortcode.Body.StkCallback.CheckoutRequestID = "ws_CO_123"
	assert.NoError(t, ps.ValidateCallback(noShortcode))

	wrongShortcode := &STKCallback{}
	wrongShortcode.Body.StkCallback.CheckoutRequestID = "ws_CO_123"
	wrongShortcode.Body.StkCallback.BusinessShortCode = "999999"
	assert.ErrorIs(t, ps.ValidateCallback(wrongShortcode), ErrValidation)

	missingID := &STKCallback{}
	assert.ErrorIs(t, ps.ValidateCallback(missingID), ErrValidation)
}

func TestReceiptExtraction(t *testing.T) {
	payload := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_123",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 500},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`

	var cb STKCallback
	require.NoError(t, json.Unmarshal([]byte(payload), &cb))
	assert.Equal(t, "NLJ7RT61SV", cb.Receipt())
	assert.Equal(t, 0, cb.Body.StkCallback.ResultCode)
}

func TestReceiptMissingMetadata(t *testing.T) {
	var cb STKCallback
	cb.Body.StkCallback.CheckoutRequestID = "ws_CO_123"
	cb.Body.StkCallback.ResultCode = 1032
	assert.Equal(t, "", cb.Receipt())
}
