package auth

import "testing"

func TestValidateSPNEGORejectsGarbage(t *testing.T) {
	if err := ValidateSPNEGO([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected malformed token error")
	}
}

func TestExtractNTLMSSP(t *testing.T) {
	msg := append([]byte("junk-prefix"), []byte(ntlmSignature)...)
	msg = append(msg, 0x02, 0x00, 0x00, 0x00)
	got, ok := ExtractNTLMSSP(msg)
	if !ok {
		t.Fatal("expected to find NTLMSSP signature")
	}
	typ, err := NTLMMessageType(got)
	if err != nil {
		t.Fatalf("message type: %v", err)
	}
	if typ != 2 {
		t.Fatalf("expected type 2, got %d", typ)
	}
}

func TestNTLMv1ResponseDeterministic(t *testing.T) {
	hash := NTHash("sekret")
	challenge := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	r1, err := NTLMv1Response(hash, challenge)
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	r2, _ := NTLMv1Response(hash, challenge)
	if r1 != r2 {
		t.Fatal("NTLMv1Response must be deterministic for the same inputs")
	}
	other := NTHash("different")
	r3, _ := NTLMv1Response(other, challenge)
	if r1 == r3 {
		t.Fatal("different passwords must yield different responses")
	}
}
