package studioapi

import (
	"crypto/hmac"
	"strconv"
	"strings"
	"time"

	"github.com/agentworkforce/botsync/internal/botsync"
)

type authError struct {
	status  int
	code    string
	message string
}

func (e *authError) Error() string {
	return e.message
}

// verifyStudioHMAC checks the key|timestamp header against the configured
// key, the replay window and the sha256= signature.
func verifyStudioHMAC(apiKey, secret, keyHeader, signatureHeader string, now time.Time, maxSkew time.Duration) *authError {
	if keyHeader == "" || signatureHeader == "" {
		return &authError{status: 401, code: "unauthorized", message: "missing api key or signature"}
	}
	sep := strings.LastIndex(keyHeader, "|")
	if sep < 0 {
		return &authError{status: 401, code: "unauthorized", message: "invalid api key header"}
	}
	key, rawTimestamp := keyHeader[:sep], keyHeader[sep+1:]
	if !hmac.Equal([]byte(key), []byte(apiKey)) {
		return &authError{status: 401, code: "unauthorized", message: "unknown api key"}
	}
	seconds, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return &authError{status: 401, code: "unauthorized", message: "invalid api key timestamp"}
	}
	delta := now.Sub(time.Unix(seconds, 0))
	if delta < 0 {
		delta = -delta
	}
	if delta > maxSkew {
		return &authError{status: 401, code: "unauthorized", message: "request outside replay window"}
	}

	signature, ok := strings.CutPrefix(signatureHeader, "sha256=")
	if !ok {
		return &authError{status: 401, code: "unauthorized", message: "unsupported signature scheme"}
	}
	expectedHex := botsync.Signature(secret, keyHeader)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expectedHex)) {
		return &authError{status: 401, code: "unauthorized", message: "signature mismatch"}
	}
	return nil
}
