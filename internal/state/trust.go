package state

import (
	"crypto/subtle"
	"encoding/base64"
	"sync"
	"time"
)

// TrustedDevice is one pinned peer identity (spec §3).
type TrustedDevice struct {
	PublicKeyB64 string    `json:"public_key_b64"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	FriendlyName string    `json:"friendly_name"`
}

// CheckResult is the outcome of comparing an offered key against the
// trust store, per the TOFU flow in spec §4.10.
type CheckResult int

const (
	Trusted CheckResult = iota
	Unknown
	KeyChanged
)

type trustFile struct {
	Devices map[string]TrustedDevice `json:"devices"`
}

// TrustStore persists trusted_devices.json with constant-time public-key
// comparison, so trust decisions never leak timing information about how
// much of a stored key matches an offered one.
type TrustStore struct {
	mu   sync.Mutex
	path string
	data trustFile
}

// NewTrustStore loads path, tolerating a missing or corrupt file as empty.
func NewTrustStore(path string) *TrustStore {
	s := &TrustStore{path: path, data: trustFile{Devices: map[string]TrustedDevice{}}}
	readJSONTolerant(path, &s.data)
	if s.data.Devices == nil {
		s.data.Devices = map[string]TrustedDevice{}
	}
	return s
}

// Check compares publicKeyB64 against the entry for name.
func (s *TrustStore) Check(name, publicKeyB64 string) CheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data.Devices[name]
	if !ok {
		return Unknown
	}
	if constantTimeEqualB64(existing.PublicKeyB64, publicKeyB64) {
		return Trusted
	}
	return KeyChanged
}

// Trust pins publicKeyB64 for name, recording first/last-seen timestamps.
func (s *TrustStore) Trust(name, publicKeyB64, friendlyName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.data.Devices[name]
	firstSeen := now
	if ok {
		firstSeen = existing.FirstSeen
	}

	s.data.Devices[name] = TrustedDevice{
		PublicKeyB64: publicKeyB64,
		FirstSeen:    firstSeen,
		LastSeen:     now,
		FriendlyName: friendlyName,
	}
	return writeJSONAtomic(s.path, &s.data)
}

// Remove deletes the trust pin for name (e.g. after an operator-rejected
// key-changed warning).
func (s *TrustStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.Devices, name)
	return writeJSONAtomic(s.path, &s.data)
}

func constantTimeEqualB64(a, b string) bool {
	da, errA := base64.StdEncoding.DecodeString(a)
	db, errB := base64.StdEncoding.DecodeString(b)
	if errA != nil || errB != nil {
		return false
	}
	if len(da) != len(db) {
		return false
	}
	return subtle.ConstantTimeCompare(da, db) == 1
}
