package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the scheme tag GitHub prepends to the hex HMAC digest
// in X-Hub-Signature-256.
const SignaturePrefix = "sha256="

// VerifySignature checks an inbound webhook body against its
// X-Hub-Signature-256 header. It fails closed: an empty secret, a missing
// header or a header without the sha256= prefix all return false. The
// digest comparison is constant-time. Callers must pass the raw request
// body, not a re-serialized form.
func VerifySignature(secret, body []byte, header string) bool {
	if len(secret) == 0 {
		return false
	}
	if !strings.HasPrefix(header, SignaturePrefix) {
		return false
	}
	got := strings.ToLower(strings.TrimPrefix(header, SignaturePrefix))

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(want), []byte(got))
}
