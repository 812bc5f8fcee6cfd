package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, 20)
	addr := MustNewAddress(HolderPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "stk1") {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != HolderPrefix {
		t.Fatalf("prefix mismatch: %s", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("bytes mismatch")
	}
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	if _, err := NewAddress(HolderPrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := t.TempDir() + "/signer.keystore"
	if err := SaveToKeystore(path, key, "correct horse"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("address mismatch after reload")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected decryption failure")
	}
}

type staticPassphrase string

func (s staticPassphrase) Get() (string, error) { return string(s), nil }

func TestCreateKeystoreAndLoadSigner(t *testing.T) {
	path := t.TempDir() + "/custody.keystore"
	key, err := CreateKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateKeystore(path, "hunter2"); !errors.Is(err, ErrKeystoreExists) {
		t.Fatalf("expected ErrKeystoreExists, got %v", err)
	}
	signer, err := LoadSigner(path, staticPassphrase("hunter2"))
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	if !bytes.Equal(signer.Bytes(), key.Bytes()) {
		t.Fatalf("signer key mismatch")
	}
	if _, err := LoadSigner(path, nil); err == nil {
		t.Fatalf("expected error without passphrase source")
	}
}
