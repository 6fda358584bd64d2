package primitives

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// TestAES256CTRVector checks against the NIST SP 800-38A F.5.5 AES-256-CTR
// test vector (first block only).
func TestAES256CTRVector(t *testing.T) {
	key, _ := hex.DecodeString("603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	iv, _ := hex.DecodeString("f0f1f2f3f4f5f6f7f8f9fafbfcfdfeff")
	plaintext, _ := hex.DecodeString("6bc1bee22e409f96e93d7e117393172a")
	wantCiphertext, _ := hex.DecodeString("601ec313775789a5b7a7f504bbf3d228")

	enc := NewAES256CTREncryptor()
	if err := enc.SetKey(key); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := enc.SetIV(iv); err != nil {
		t.Fatalf("SetIV: %v", err)
	}
	out, err := enc.Process(plaintext)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !bytes.Equal(out, wantCiphertext) {
		t.Fatalf("AES-256-CTR mismatch:\n got  %x\n want %x", out, wantCiphertext)
	}
}

// TestAES256CTRVectorRFC3686 checks against RFC 3686's AES-256 "Single
// block msg" test vector (test vector #7).
func TestAES256CTRVectorRFC3686(t *testing.T) {
	key, _ := hex.DecodeString("776beff2851db06f4c8a0542c8696f6c6a81af1eec96b4d37fc1d689e6c1c104")
	iv, _ := hex.DecodeString("00000060db5672c97aa8f0b200000001")
	plaintext := []byte("Single block msg")
	wantCiphertext, _ := hex.DecodeString("145ad01dbf824ec7560863dc71e3e0c0")

	enc := NewAES256CTREncryptor()
	if err := enc.SetKey(key); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := enc.SetIV(iv); err != nil {
		t.Fatalf("SetIV: %v", err)
	}
	out, err := enc.Process(plaintext)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !bytes.Equal(out, wantCiphertext) {
		t.Fatalf("AES-256-CTR RFC3686 vector mismatch:\n got  %x\n want %x", out, wantCiphertext)
	}
}

func TestCipherRoundTrips(t *testing.T) {
	cases := []struct {
		name string
		enc  *blockCipher
		dec  *blockCipher
	}{
		{"aes-256-ctr", NewAES256CTREncryptor(), NewAES256CTRDecryptor()},
		{"chacha20", NewChaCha20Encryptor(), NewChaCha20Decryptor()},
		{"camellia-256-ctr", NewCamellia256CTREncryptor(), NewCamellia256CTRDecryptor()},
	}
	for _, c := range cases {
		key := make([]byte, c.enc.KeySize())
		for i := range key {
			key[i] = byte(i)
		}
		iv := make([]byte, c.enc.IVSize())
		for i := range iv {
			iv[i] = byte(255 - i)
		}
		if err := c.enc.SetKey(key); err != nil {
			t.Fatalf("%s: SetKey: %v", c.name, err)
		}
		if err := c.enc.SetIV(iv); err != nil {
			t.Fatalf("%s: SetIV: %v", c.name, err)
		}
		if err := c.dec.SetKey(key); err != nil {
			t.Fatalf("%s: SetKey: %v", c.name, err)
		}
		if err := c.dec.SetIV(iv); err != nil {
			t.Fatalf("%s: SetIV: %v", c.name, err)
		}

		plaintext := []byte("the quick brown fox jumps over the lazy dog, 1234567890")
		ciphertext, err := c.enc.Process(plaintext)
		if err != nil {
			t.Fatalf("%s: encrypt: %v", c.name, err)
		}
		recovered, err := c.dec.Process(ciphertext)
		if err != nil {
			t.Fatalf("%s: decrypt: %v", c.name, err)
		}
		if !bytes.Equal(plaintext, recovered) {
			t.Fatalf("%s: round trip mismatch:\n got  %q\n want %q", c.name, recovered, plaintext)
		}
	}
}

func TestCipherOppositeProducesCounterpart(t *testing.T) {
	enc := NewAES256CTREncryptor()
	key := bytes.Repeat([]byte{0x42}, enc.KeySize())
	if err := enc.SetKey(key); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	opp := enc.Opposite()
	if opp.IsEncryptor() {
		t.Fatal("expected Opposite() of an encryptor to be a decryptor")
	}
	if opp.AlgorithmID() != enc.AlgorithmID() {
		t.Fatalf("expected matching algorithm id, got %d vs %d", opp.AlgorithmID(), enc.AlgorithmID())
	}
	if opp.Key() != nil {
		t.Fatal("expected Opposite() to start with no key set")
	}
}

func TestProcessBeforeKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when Process is called before key/iv are set")
		}
	}()
	c := NewAES256CTREncryptor()
	_, _ = c.Process([]byte("data"))
}
