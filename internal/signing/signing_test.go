package signing

import (
	"strings"
	"testing"
)

func TestSignDeterministic(t *testing.T) {
	s := New("secret")
	a := s.Sign([]byte(`{"a":1}`))
	b := s.Sign([]byte(`{"a":1}`))
	c := s.Sign([]byte(`{"a":2}`))
	if a != b {
		t.Fatalf("expected deterministic signature")
	}
	if a == c {
		t.Fatalf("expected different signatures for different payloads")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if New("other").Sign([]byte(`{"a":1}`)) == a {
		t.Fatalf("expected key to change signature")
	}
}

func TestVerify(t *testing.T) {
	s := New("secret")
	payload := []byte("hello")
	sig := s.Sign(payload)
	if !s.Verify(payload, sig) {
		t.Fatalf("expected valid signature")
	}
	if s.Verify([]byte("hellO"), sig) {
		t.Fatalf("expected payload change to fail")
	}
	if s.Verify(payload, sig[:len(sig)-2]) {
		t.Fatalf("expected truncated signature to fail")
	}
	if s.Verify(payload, "zz"+sig[2:]) {
		t.Fatalf("expected non-hex signature to fail")
	}
	if s.Verify(payload, strings.ToUpper(sig)) {
		t.Fatalf("expected upper-case signature to fail")
	}
	if s.Verify(payload, " "+sig) || s.Verify(payload, sig+"\n") {
		t.Fatalf("expected padded signature to fail")
	}
	if s.Verify(payload, "") {
		t.Fatalf("expected empty signature to fail")
	}
}

func TestSignatureHeader(t *testing.T) {
	h := New("k").SignatureHeader([]byte("body"))
	if !strings.HasPrefix(h, "sha256=") {
		t.Fatalf("unexpected header %s", h)
	}
}
