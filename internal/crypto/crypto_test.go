package crypto

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundtrip(t *testing.T) {
	key, err := DeriveKey("shared-token")
	if err != nil {
		t.Fatal(err)
	}
	plain := []byte(`{"type":"STATUS"}`)
	ct, err := Seal(plain, key)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(ct, plain) {
		t.Fatal("ciphertext contains the plaintext")
	}
	got, err := Open(ct, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("roundtrip = %q, want %q", got, plain)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a, err := DeriveKey("token")
	if err != nil {
		t.Fatal(err)
	}
	b, err := DeriveKey("token")
	if err != nil {
		t.Fatal(err)
	}
	if *a != *b {
		t.Fatal("same token derived different keys")
	}
	c, err := DeriveKey("other")
	if err != nil {
		t.Fatal(err)
	}
	if *a == *c {
		t.Fatal("different tokens derived the same key")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	right, _ := DeriveKey("right")
	wrong, _ := DeriveKey("wrong")
	ct, err := Seal([]byte("payload"), right)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(ct, wrong); err == nil {
		t.Fatal("wrong key opened the box")
	}
}

func TestOpenRejectsTamper(t *testing.T) {
	key, _ := DeriveKey("token")
	ct, err := Seal([]byte("payload"), key)
	if err != nil {
		t.Fatal(err)
	}
	ct[len(ct)-1] ^= 0x01
	if _, err := Open(ct, key); err == nil {
		t.Fatal("tampered ciphertext opened")
	}
}

func TestOpenRejectsShortCiphertext(t *testing.T) {
	key, _ := DeriveKey("token")
	if _, err := Open([]byte("short"), key); err == nil {
		t.Fatal("short ciphertext accepted")
	}
}
