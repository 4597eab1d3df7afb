package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"subhub/internal/types"
)

// RazorpayVerifier validates signed payment confirmations returned by the
// gateway's checkout popup. The gateway signs the string
//
//	orderID + "|" + paymentID
//
// with HMAC-SHA256 under the shared API secret and sends the hex digest as
// razorpay_signature. Verification gates the cancellation of a subscription
// whose pending dues were just paid.
type RazorpayVerifier struct {
	secret types.SecretString
}

// NewRazorpayVerifier creates a verifier bound to the gateway API secret.
func NewRazorpayVerifier(secret types.SecretString) *RazorpayVerifier {
	return &RazorpayVerifier{secret: secret}
}

// Verify recomputes the expected signature for (orderID, paymentID) and
// compares it against the supplied one in constant time. It returns true
// only on an exact match; any mutation of orderID, paymentID, or the
// signature flips the result to false.
func (v *RazorpayVerifier) Verify(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(v.secret.Unmask()))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	// hmac.Equal gives a constant-time comparison over the hex strings.
	return hmac.Equal([]byte(expected), []byte(signature))
}
