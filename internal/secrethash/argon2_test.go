package secrethash

import "testing"

func TestHashAndVerify_RoundTrip(t *testing.T) {
	h := NewDefaultHasher()

	encoded, err := h.Hash("s3cr3t-client-value")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := Verify("s3cr3t-client-value", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected Verify to succeed for the original secret")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	h := NewDefaultHasher()

	encoded, err := h.Hash("correct-secret")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := Verify("wrong-secret", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected Verify to fail for a mismatched secret")
	}
}

func TestHash_UniqueSaltPerCall(t *testing.T) {
	h := NewDefaultHasher()

	a, err := h.Hash("same-secret")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	b, err := h.Hash("same-secret")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	if a == b {
		t.Fatalf("expected distinct encoded hashes across calls due to random salt")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	if _, err := Verify("anything", "not-a-valid-hash"); err == nil {
		t.Fatalf("expected an error for a malformed encoded hash")
	}
}
