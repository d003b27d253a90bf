package backend

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Prompt asks the operator to accept an unknown host key, given its
// OpenSSH-style fingerprint. Returns true to trust and persist it.
type Prompt func(host, fingerprint string) bool

// NewKnownHostsCallback builds a ssh.HostKeyCallback backed by the
// standard OpenSSH known_hosts file, implementing the TOFU check in
// spec §4.3: an exact match proceeds silently; an unknown key invokes
// prompt and, on acceptance, is appended to the file; a changed key is
// rejected with a MITM warning rather than silently accepted.
func NewKnownHostsCallback(knownHostsPath string, prompt Prompt) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("backend: resolving home directory for known_hosts: %w", err)
		}
		knownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}

	// A missing file is normal on first use; create it empty so
	// knownhosts.New has something to parse.
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0700); err != nil {
			return nil, fmt.Errorf("backend: creating ssh config directory: %w", err)
		}
		if err := os.WriteFile(knownHostsPath, nil, 0600); err != nil {
			return nil, fmt.Errorf("backend: creating known_hosts file: %w", err)
		}
	}

	base, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("backend: parsing known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := base(hostname, remote, key)
		if err == nil {
			return nil // exact match
		}

		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) > 0 {
			return fmt.Errorf("backend: HOST IDENTIFICATION HAS CHANGED for %s — possible MITM attack, refusing connection: %w", hostname, err)
		}

		// Unknown host: prompt and persist on acceptance.
		fp := fingerprint(key)
		if prompt == nil || !prompt(hostname, fp) {
			return fmt.Errorf("backend: host key for %s not trusted: %s", hostname, fp)
		}

		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		f, ferr := os.OpenFile(knownHostsPath, os.O_APPEND|os.O_WRONLY, 0600)
		if ferr != nil {
			return fmt.Errorf("backend: persisting accepted host key: %w", ferr)
		}
		defer f.Close()
		if _, werr := f.WriteString(line + "\n"); werr != nil {
			return fmt.Errorf("backend: persisting accepted host key: %w", werr)
		}
		return nil
	}, nil
}

// fingerprint renders key as "SHA256:<base64-nopad>", falling back to
// "MD5:<hex:colons>" if SHA-256 digesting were ever unavailable (it never
// is in the standard library; the fallback exists to match spec §6's
// documented format exactly).
func fingerprint(key ssh.PublicKey) string {
	sum := sha256.Sum256(key.Marshal())
	enc := base64.RawStdEncoding.EncodeToString(sum[:])
	if enc != "" {
		return "SHA256:" + enc
	}
	md5sum := md5.Sum(key.Marshal())
	parts := make([]string, len(md5sum))
	for i, b := range md5sum {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return "MD5:" + strings.Join(parts, ":")
}
