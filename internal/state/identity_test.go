package state

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadOrCreateIdentity_CreatesOnFirstUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	id, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}
	if id.PrivateKeyB64 == "" || id.PublicKeyB64 == "" {
		t.Fatal("expected generated identity to have both keys populated")
	}

	priv, err := id.PrivateKey()
	if err != nil || len(priv) != 32 {
		t.Fatalf("PrivateKey() = %v, %v, want 32 bytes", priv, err)
	}
}

func TestLoadOrCreateIdentity_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	first, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("first LoadOrCreateIdentity: %v", err)
	}

	second, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("second LoadOrCreateIdentity: %v", err)
	}

	if first.PublicKeyB64 != second.PublicKeyB64 {
		t.Fatal("expected the same identity to be reloaded rather than regenerated")
	}
}

func TestLoadOrCreateIdentity_OwnerOnlyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permission bits are not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), "identity.json")
	if _, err := LoadOrCreateIdentity(path); err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("permissions = %o, want 0600", perm)
	}
}

func TestLoadOrCreateIdentity_CorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadOrCreateIdentity(path); err == nil {
		t.Fatal("expected a corrupt identity file to be treated as fatal, not regenerated")
	}
}

func TestLoadOrCreateIdentity_MismatchedKeyPairIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	id, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}

	tampered := *id
	tampered.PublicKeyB64 = "dGFtcGVyZWQtcHVibGljLWtleS0zMmJ5dGVzISE="
	if err := tampered.save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := LoadOrCreateIdentity(path); err == nil {
		t.Fatal("expected mismatched public/private key pair to fail validation")
	}
}
