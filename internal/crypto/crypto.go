// Package crypto implements the transfer core's encrypted channel: an X25519
// Diffie-Hellman handshake, BLAKE3 key derivation with a fixed
// domain-separation context, and XChaCha20-Poly1305 authenticated
// encryption per message. It mirrors the teacher's TLS setup
// (internal/pki/tls.go) in spirit — negotiate once, encrypt every frame
// after — but the negotiation itself runs over the application protocol
// instead of a transport-level handshake, since peers talk directly over
// a plain TCP socket discovered via mDNS.
package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// kdfContext is the fixed domain-separation string mixed into every key
// derivation, so a shared secret produced here can never be confused with
// one derived for an unrelated protocol.
const kdfContext = "flux-transfer.dev channel key v1"

// NonceSize is the XChaCha20-Poly1305 nonce length carried on every
// DataChunk (spec §4.8/§4.10).
const NonceSize = chacha20poly1305.NonceSizeX

// KeySize is the derived AEAD key length.
const KeySize = chacha20poly1305.KeySize

// Handshake holds the ephemeral keypair produced by Initiate, pending
// completion via Complete or CompleteWithCode.
type Handshake struct {
	secret [32]byte
	Public [32]byte
}

// Initiate generates an ephemeral X25519 keypair for one side of a
// handshake.
func Initiate() (*Handshake, error) {
	h := &Handshake{}
	if _, err := rand.Read(h.secret[:]); err != nil {
		return nil, fmt.Errorf("crypto: generating ephemeral secret: %w", err)
	}
	h.secret[0] &= 248
	h.secret[31] &= 127
	h.secret[31] |= 64

	pub, err := curve25519.X25519(h.secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("crypto: deriving ephemeral public key: %w", err)
	}
	copy(h.Public[:], pub)
	return h, nil
}

// FromIdentitySecret builds a Handshake around an already-clamped X25519
// secret (a device's persisted long-lived key, per spec §4.8), rather than
// generating a fresh one. TOFU pinning needs the offered public key to be
// stable across sessions, which a freshly-random Initiate() key cannot
// provide; code-phrase mode has no such requirement and uses Initiate
// instead. The name does not make this "ephemeral" in the ordinary sense
// — only the in-memory Handshake wrapper is — but the API matches
// Initiate's so callers don't need two code paths for Complete/
// CompleteWithCode.
func FromIdentitySecret(secret [32]byte) (*Handshake, error) {
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("crypto: deriving identity public key: %w", err)
	}
	h := &Handshake{secret: secret}
	copy(h.Public[:], pub)
	return h, nil
}

// Channel wraps a derived AEAD key, ready to seal and open DataChunk
// payloads.
type Channel struct {
	aead *chacha20poly1305.AEAD
}

// Complete performs the DH exchange against peerPublic and derives the
// session key via BLAKE3(sharedSecret, context=kdfContext). The ephemeral
// secret in h is zeroed before returning, win or lose.
func (h *Handshake) Complete(peerPublic [32]byte) (*Channel, error) {
	return h.completeWithCodeBytes(peerPublic, nil)
}

// CompleteWithCode is Complete but additionally binds codePhrase into the
// derivation, so the resulting channel only matches end-to-end when both
// peers supply the same code — a PAKE-like check layered over the DH
// exchange (spec §4.8).
func (h *Handshake) CompleteWithCode(peerPublic [32]byte, codePhrase string) (*Channel, error) {
	return h.completeWithCodeBytes(peerPublic, []byte(codePhrase))
}

func (h *Handshake) completeWithCodeBytes(peerPublic [32]byte, code []byte) (*Channel, error) {
	defer zero(h.secret[:])

	shared, err := curve25519.X25519(h.secret[:], peerPublic[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: computing shared secret: %w", err)
	}
	defer zero(shared)

	hasher := blake3.New()
	hasher.Write([]byte(kdfContext))
	hasher.Write(shared)
	if len(code) > 0 {
		hasher.Write(code)
	}

	var key [KeySize]byte
	digest := hasher.Sum(nil)
	n := copy(key[:], digest)
	if n < KeySize {
		return nil, fmt.Errorf("crypto: derived key material shorter than required")
	}
	defer zero(key[:])

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: constructing AEAD: %w", err)
	}
	return &Channel{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce and returns
// (nonce, ciphertext||tag).
func (c *Channel) Seal(plaintext []byte) (nonce [NonceSize]byte, ciphertext []byte, err error) {
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	ciphertext = c.aead.Seal(nil, nonce[:], plaintext, nil)
	return nonce, ciphertext, nil
}

// Open decrypts ciphertext||tag using nonce. A decryption failure is
// always treated as fatal for the transfer (spec §4.8).
func (c *Channel) Open(nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
