package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "topsecret"
	body := `{"action":"opened"}`

	tests := []struct {
		name   string
		secret string
		body   string
		header string
		want   bool
	}{
		{
			name:   "valid signature",
			secret: secret,
			body:   body,
			header: sign(secret, body),
			want:   true,
		},
		{
			name:   "uppercase digest accepted",
			secret: secret,
			body:   body,
			header: SignaturePrefix + strings.ToUpper(strings.TrimPrefix(sign(secret, body), SignaturePrefix)),
			want:   true,
		},
		{
			name:   "missing header",
			secret: secret,
			body:   body,
			header: "",
			want:   false,
		},
		{
			name:   "wrong prefix",
			secret: secret,
			body:   body,
			header: "sha1=" + strings.TrimPrefix(sign(secret, body), SignaturePrefix),
			want:   false,
		},
		{
			name:   "wrong secret",
			secret: secret,
			body:   body,
			header: sign("othersecret", body),
			want:   false,
		},
		{
			name:   "tampered body",
			secret: secret,
			body:   `{"action":"closed"}`,
			header: sign(secret, body),
			want:   false,
		},
		{
			name:   "empty secret fails closed",
			secret: "",
			body:   body,
			header: sign("", body),
			want:   false,
		},
		{
			name:   "truncated digest",
			secret: secret,
			body:   body,
			header: sign(secret, body)[:20],
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature([]byte(tt.secret), []byte(tt.body), tt.header)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}
