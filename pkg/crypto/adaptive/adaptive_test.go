package adaptive

import (
	"bytes"
	"strings"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestSealOpenRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmAESGCM, AlgorithmChaCha20} {
		c, err := NewWithAlgorithm(testKey(), alg)
		if err != nil {
			t.Fatalf("%s: %v", alg, err)
		}

		plain := []byte("per-key state blob")
		aad := []byte("storage-7")

		blob, err := c.Seal(plain, aad)
		if err != nil {
			t.Fatalf("%s: Seal: %v", alg, err)
		}
		if bytes.Contains(blob, plain) {
			t.Fatalf("%s: ciphertext contains plaintext", alg)
		}

		got, err := c.Open(blob, aad)
		if err != nil {
			t.Fatalf("%s: Open: %v", alg, err)
		}
		if !bytes.Equal(got, plain) {
			t.Fatalf("%s: Open = %q, want %q", alg, got, plain)
		}
	}
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	c, err := New(testKey())
	if err != nil {
		t.Fatal(err)
	}
	blob, err := c.Seal([]byte("v"), []byte("aad-1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Open(blob, []byte("aad-2")); err == nil {
		t.Fatal("Open with wrong aad must fail")
	}
}

func TestOpenRejectsShortInput(t *testing.T) {
	c, err := New(testKey())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Open([]byte{1, 2, 3}, nil); err != ErrShortInput {
		t.Fatalf("err = %v, want ErrShortInput", err)
	}
}

func TestBadKeySize(t *testing.T) {
	if _, err := NewAESGCM([]byte("short")); err != ErrBadKeySize {
		t.Fatalf("NewAESGCM: err = %v, want ErrBadKeySize", err)
	}
	if _, err := NewChaCha20([]byte("short")); err != ErrBadKeySize {
		t.Fatalf("NewChaCha20: err = %v, want ErrBadKeySize", err)
	}
}

func TestParseKey(t *testing.T) {
	if _, err := ParseKey(strings.Repeat("ab", KeySize)); err != nil {
		t.Fatalf("ParseKey valid: %v", err)
	}
	if _, err := ParseKey("zz"); err == nil {
		t.Fatal("ParseKey must reject non-hex input")
	}
	if _, err := ParseKey("abcd"); err != ErrBadKeySize {
		t.Fatalf("ParseKey short: err = %v, want ErrBadKeySize", err)
	}
}
