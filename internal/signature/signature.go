// Package signature verifies Razorpay HMAC-SHA256 signatures for checkout
// callbacks and webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
)

const HeaderWebhookSignature = "X-Razorpay-Signature"

// Compute returns the lowercase hex HMAC-SHA256 of message under secret.
func Compute(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// CallbackMessage is the payload Razorpay signs on checkout success.
func CallbackMessage(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(gatewayOrderID + "|" + gatewayPaymentID)
}

type Verifier struct {
	keySecret     string
	webhookSecret string
}

func NewVerifier(keySecret, webhookSecret string) *Verifier {
	return &Verifier{keySecret: keySecret, webhookSecret: webhookSecret}
}

func (v *Verifier) VerifyCallback(gatewayOrderID, gatewayPaymentID, provided string) error {
	if gatewayOrderID == "" || gatewayPaymentID == "" {
		return internal.ErrInvalidSignature
	}
	return verify(v.keySecret, CallbackMessage(gatewayOrderID, gatewayPaymentID), provided)
}

// VerifyWebhook checks the signature against the exact bytes received.
func (v *Verifier) VerifyWebhook(rawBody []byte, provided string) error {
	return verify(v.webhookSecret, rawBody, provided)
}

func verify(secret string, message []byte, provided string) error {
	if secret == "" || provided == "" {
		return internal.ErrInvalidSignature
	}
	// compared as sent: Razorpay signs with lowercase hex
	expected := Compute(secret, message)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return internal.ErrInvalidSignature
	}
	return nil
}
