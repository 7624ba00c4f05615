package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func sign(payload []byte, key string) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return mac.Sum(nil)
}

func TestVerifySignature_Hex(t *testing.T) {
	payload := []byte(`{"event":"placed"}`)
	secret := Secret{Key: "topsecret", Encoding: EncodingHex}
	good := hex.EncodeToString(sign(payload, "topsecret"))

	if !VerifySignature(payload, secret, good) {
		t.Fatal("expected valid signature to verify")
	}
	if !VerifySignature(payload, secret, "sha256="+good) {
		t.Fatal("expected prefixed signature to verify")
	}
	if VerifySignature(payload, secret, hex.EncodeToString(sign(payload, "wrongkey"))) {
		t.Fatal("expected wrong-key signature to fail")
	}
	if VerifySignature([]byte(`{"event":"tampered"}`), secret, good) {
		t.Fatal("expected tampered payload to fail")
	}
}

func TestVerifySignature_Base64(t *testing.T) {
	payload := []byte(`{"event_type":"orders.notification"}`)
	secret := Secret{Key: "ue-secret", Encoding: EncodingBase64}
	good := base64.StdEncoding.EncodeToString(sign(payload, "ue-secret"))

	if !VerifySignature(payload, secret, good) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySignature(payload, secret, "not base64!!") {
		t.Fatal("expected undecodable signature to fail")
	}
}

func TestVerifySignature_EmptyInputs(t *testing.T) {
	payload := []byte(`{}`)
	if VerifySignature(payload, Secret{Key: "k"}, "") {
		t.Fatal("empty signature must not verify")
	}
	if VerifySignature(payload, Secret{}, "abcd") {
		t.Fatal("empty secret must not verify")
	}
}
