package botsync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderAPIKey       = "X-Api-Key"
	HeaderAPISignature = "X-Api-Signature"
	signaturePrefix    = "sha256="
)

// AuthHeaders authenticates exactly one outgoing studio call.
type AuthHeaders struct {
	APIKey       string
	APISignature string
}

func (h AuthHeaders) Apply(req *http.Request) {
	req.Header.Set(HeaderAPIKey, h.APIKey)
	req.Header.Set(HeaderAPISignature, h.APISignature)
}

// DeriveAuthHeaders signs "<apiKey>|<unix seconds>" with HMAC-SHA256 keyed by
// apiSecret. Empty inputs are not rejected here.
func DeriveAuthHeaders(apiKey, apiSecret string, now time.Time) AuthHeaders {
	message := apiKey + "|" + strconv.FormatInt(now.Unix(), 10)
	return AuthHeaders{
		APIKey:       message,
		APISignature: signaturePrefix + Signature(apiSecret, message),
	}
}

// Signature returns the lowercase hex HMAC-SHA256 of message.
func Signature(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

type Signer struct {
	apiKey    string
	apiSecret string
	now       func() time.Time
}

func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{apiKey: apiKey, apiSecret: apiSecret, now: time.Now}
}

// Sign derives a fresh header pair from the current wall clock.
func (s *Signer) Sign() AuthHeaders {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return DeriveAuthHeaders(s.apiKey, s.apiSecret, now())
}
