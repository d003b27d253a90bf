package state

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/curve25519"
)

// DeviceIdentity is this device's long-lived X25519 keypair, persisted at
// identity.json with owner-only permissions (spec §4.8). It is the anchor
// the trust store and TOFU handshake pin against, so a corrupt file is
// treated as fatal rather than silently regenerated — silently minting a
// new identity would invalidate every peer's existing trust pin without
// telling anyone.
type DeviceIdentity struct {
	PrivateKeyB64 string `json:"secret_key"`
	PublicKeyB64  string `json:"public_key"`
}

// LoadOrCreateIdentity loads the identity at path, creating and persisting
// a fresh X25519 keypair if the file does not exist. A file that exists
// but fails to parse is a fatal error: the caller should surface it rather
// than fabricate a replacement identity.
func LoadOrCreateIdentity(path string) (*DeviceIdentity, error) {
	var id DeviceIdentity
	found, err := readJSONStrict(path, &id)
	if err != nil {
		return nil, fmt.Errorf("state: identity file is corrupt, refusing to regenerate: %w", err)
	}
	if found {
		if err := id.validate(); err != nil {
			return nil, fmt.Errorf("state: identity file failed validation: %w", err)
		}
		return &id, nil
	}

	newID, err := generateIdentity()
	if err != nil {
		return nil, err
	}
	if err := newID.save(path); err != nil {
		return nil, err
	}
	return newID, nil
}

func generateIdentity() (*DeviceIdentity, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("state: generating identity key: %w", err)
	}
	// Clamp per RFC 7748 so curve25519.X25519 treats this as a valid scalar.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("state: deriving public key: %w", err)
	}

	return &DeviceIdentity{
		PrivateKeyB64: base64.StdEncoding.EncodeToString(priv[:]),
		PublicKeyB64:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// validate re-derives the public key from the stored private key and
// cross-checks it against the stored public key, catching the case where
// one half of the file was truncated or hand-edited without the other.
func (id *DeviceIdentity) validate() error {
	priv, err := base64.StdEncoding.DecodeString(id.PrivateKeyB64)
	if err != nil || len(priv) != 32 {
		return fmt.Errorf("state: identity private key is malformed")
	}
	wantPub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("state: identity private key is invalid: %w", err)
	}
	if base64.StdEncoding.EncodeToString(wantPub) != id.PublicKeyB64 {
		return fmt.Errorf("state: identity public key does not match its private key")
	}
	return nil
}

// PrivateKey decodes the stored private key bytes.
func (id *DeviceIdentity) PrivateKey() ([]byte, error) {
	return base64.StdEncoding.DecodeString(id.PrivateKeyB64)
}

// PublicKey decodes the stored public key bytes.
func (id *DeviceIdentity) PublicKey() ([]byte, error) {
	return base64.StdEncoding.DecodeString(id.PublicKeyB64)
}

func (id *DeviceIdentity) save(path string) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encoding identity file: %w", err)
	}
	// 0600: owner read/write only. An identity file readable by other
	// local users defeats the point of a device-bound private key.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("state: writing identity file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("state: renaming identity file into place: %w", err)
	}
	return nil
}
