package password

import (
	"errors"
	"testing"

	"github.com/viewtube/accounts/internal/common"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	h := NewHasher(4) // minimal cost keeps the test fast

	hashed, err := h.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hashed == "pw123" {
		t.Fatalf("hash must not equal plaintext")
	}

	ok, err := h.Verify("pw123", hashed)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected correct password to verify")
	}

	ok, err = h.Verify("wrong", hashed)
	if err != nil {
		t.Fatalf("Verify error on mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected wrong password to fail verification")
	}
}

func TestHash_SaltRandomness(t *testing.T) {
	h := NewHasher(4)

	h1, err := h.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	h2, err := h.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("two hashes of the same input must differ")
	}

	for _, hash := range []string{h1, h2} {
		ok, err := h.Verify("pw123", hash)
		if err != nil || !ok {
			t.Fatalf("both hashes must verify: ok=%v err=%v", ok, err)
		}
	}
}

func TestHash_EmptyPlaintext(t *testing.T) {
	h := NewHasher(4)

	_, err := h.Hash("")
	if !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("expected ErrorValidation, got %v", err)
	}
}

func TestVerify_CorruptHash(t *testing.T) {
	h := NewHasher(4)

	_, err := h.Verify("pw123", "not-a-bcrypt-hash")
	if !errors.Is(err, common.ErrorCorruptHash) {
		t.Fatalf("expected ErrorCorruptHash, got %v", err)
	}
}

func TestNewHasher_CostOutOfRange(t *testing.T) {
	h := NewHasher(99)

	hashed, err := h.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if ok, err := h.Verify("pw123", hashed); err != nil || !ok {
		t.Fatalf("fallback-cost hash must verify: ok=%v err=%v", ok, err)
	}
}
