package service

import "testing"

func TestSignatureRoundTrip(t *testing.T) {
	signer := NewSigner()
	payload := `{"event":"document.routed","document_id":"doc-1"}`
	secret := "0123456789abcdef0123456789abcdef"

	signature := signer.GenerateSignature(payload, secret)
	if !signer.VerifySignature(payload, signature, secret) {
		t.Fatalf("expected signature to verify")
	}
	if signer.VerifySignature(payload+" ", signature, secret) {
		t.Fatalf("expected mutated payload to fail verification")
	}
	if signer.VerifySignature(payload, signature, secret+"x") {
		t.Fatalf("expected different secret to fail verification")
	}
}

func TestGenerateSignatureKnownVector(t *testing.T) {
	// HMAC-SHA256("The quick brown fox jumps over the lazy dog", "key").
	got := NewSigner().GenerateSignature("The quick brown fox jumps over the lazy dog", "key")
	if got != "97yD9DBThCSxMpjmqm+xQ+9NWaFJRhdZl0edvC0aPNg=" {
		t.Fatalf("unexpected signature %q", got)
	}
}
