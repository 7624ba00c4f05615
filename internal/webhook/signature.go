package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignatureEncoding names how a platform encodes its HMAC digest.
type SignatureEncoding string

const (
	EncodingHex    SignatureEncoding = "hex"
	EncodingBase64 SignatureEncoding = "base64"
)

// Secret is one platform's shared webhook secret and digest convention.
type Secret struct {
	Key      string
	Encoding SignatureEncoding
}

// VerifySignature checks an HMAC-SHA256 signature over the raw payload.
// Comparison is constant time. An empty provided signature never verifies.
func VerifySignature(payload []byte, secret Secret, provided string) bool {
	provided = strings.TrimSpace(provided)
	if secret.Key == "" || provided == "" {
		return false
	}
	// Some senders prefix the digest, e.g. "sha256=<hex>".
	if i := strings.IndexByte(provided, '='); i >= 0 && strings.EqualFold(provided[:i], "sha256") {
		provided = provided[i+1:]
	}

	var got []byte
	var err error
	switch secret.Encoding {
	case EncodingBase64:
		got, err = base64.StdEncoding.DecodeString(provided)
	default:
		got, err = hex.DecodeString(provided)
	}
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret.Key))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}
