package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidSignature covers malformed headers, digest mismatches, and
	// unknown schemes. Callers must not mutate state after it.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrSignatureExpired means the signature verified but its timestamp
	// fell outside the tolerance window.
	ErrSignatureExpired = errors.New("webhook signature outside tolerance window")
)

// DefaultTolerance bounds how stale a signed webhook may be.
const DefaultTolerance = 5 * time.Minute

// VerifyStripeSignature checks a "t=<unix>,v1=<hex>" style signature header
// against the raw body. The signed message is "<t>.<body>", HMAC-SHA256 with
// the endpoint secret, hex encoded. Multiple v1 entries are accepted if any
// matches; comparison is constant time.
func VerifyStripeSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" || strings.TrimSpace(header) == "" {
		return ErrInvalidSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var ts int64 = -1
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}
	if ts < 0 || len(sigs) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	want := mac.Sum(nil)

	matched := false
	for _, sig := range sigs {
		if hmac.Equal(want, sig) {
			matched = true
		}
	}
	if !matched {
		return ErrInvalidSignature
	}

	sent := time.Unix(ts, 0)
	if diff := now.Sub(sent); diff > tolerance || diff < -tolerance {
		return ErrSignatureExpired
	}
	return nil
}
