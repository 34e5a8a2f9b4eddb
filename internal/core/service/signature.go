package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Signer signs webhook payloads with HMAC-SHA256 and base64 (standard
// alphabet, padded).
type Signer struct{}

func NewSigner() Signer {
	return Signer{}
}

func (Signer) GenerateSignature(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time.
func (s Signer) VerifySignature(payload, signature, secret string) bool {
	expected := s.GenerateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
