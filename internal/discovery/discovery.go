// Package discovery advertises and browses Flux instances over mDNS using
// github.com/grandcat/zeroconf, the service-discovery library the rest of
// the example pack reaches for over a hand-rolled mDNS client. The
// advertise/browse split mirrors the teacher's agent/server split: one
// side announces itself and waits, the other side watches for arrivals.
package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the reserved mDNS service type Flux instances register
// under (spec §4.9).
const ServiceType = "_flux._tcp"

// ServiceDomain is the mDNS domain Flux uses.
const ServiceDomain = "local."

// ProtocolVersion is advertised in every TXT record so peers can detect a
// version mismatch before even attempting a handshake.
const ProtocolVersion = "1"

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)
var repeatedDash = regexp.MustCompile(`-+`)

// SanitizeInstanceName applies the DNS-label sanitization rules from
// spec §4.9: non-alphanumeric runs collapse to a single '-', leading and
// trailing '-' are trimmed, the result is capped at 63 bytes, and an
// empty result falls back to "flux-device".
func SanitizeInstanceName(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "-")
	s = repeatedDash.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 63 {
		s = s[:63]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		return "flux-device"
	}
	return s
}

// Advertisement describes what to publish for this instance.
type Advertisement struct {
	InstanceName string
	Port         int
	PublicKeyB64 string // TOFU mode; mutually exclusive with CodeHash
	CodeHash     string // code-phrase mode; mutually exclusive with PublicKeyB64
}

// Handle controls a running advertisement.
type Handle struct {
	server *zeroconf.Server
}

// Advertise registers the local instance under ServiceType with the given
// port and TXT properties {version, pubkey|code_hash}.
func Advertise(ad Advertisement) (*Handle, error) {
	name := SanitizeInstanceName(ad.InstanceName)

	var txt []string
	txt = append(txt, "version="+ProtocolVersion)
	switch {
	case ad.PublicKeyB64 != "":
		txt = append(txt, "pubkey="+ad.PublicKeyB64)
	case ad.CodeHash != "":
		txt = append(txt, "code_hash="+ad.CodeHash)
	default:
		return nil, fmt.Errorf("discovery: advertisement must carry either a public key or a code hash")
	}

	server, err := zeroconf.Register(name, ServiceType, ServiceDomain, ad.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: registering mDNS service: %w", err)
	}
	return &Handle{server: server}, nil
}

// Shutdown withdraws the advertisement.
func (h *Handle) Shutdown() {
	h.server.Shutdown()
}

// DiscoveredDevice is one resolved advertisement seen while browsing.
type DiscoveredDevice struct {
	Name         string
	Host         string
	Port         int
	Version      string
	PublicKeyB64 string
	CodeHash     string
}

// Browse watches for Flux advertisements until ctx is cancelled, invoking
// onDevice for each newly seen instance name (first seen wins — later
// advertisements for an already-seen name are ignored, per spec §4.9).
func Browse(ctx context.Context, onDevice func(DiscoveredDevice)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: creating resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)

	var mu sync.Mutex
	seen := make(map[string]bool)

	go func() {
		for entry := range entries {
			d := fromServiceEntry(entry)
			mu.Lock()
			if seen[d.Name] {
				mu.Unlock()
				continue
			}
			seen[d.Name] = true
			mu.Unlock()
			onDevice(d)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("discovery: browsing: %w", err)
	}
	<-ctx.Done()
	return nil
}

// FindByCodeHash browses until a device advertising codeHash is found, or
// timeout elapses.
func FindByCodeHash(ctx context.Context, codeHash string, timeout time.Duration) (*DiscoveredDevice, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: creating resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	found := make(chan DiscoveredDevice, 1)

	go func() {
		for entry := range entries {
			d := fromServiceEntry(entry)
			if d.CodeHash == codeHash {
				select {
				case found <- d:
				default:
				}
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browsing: %w", err)
	}

	select {
	case d := <-found:
		return &d, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("discovery: no device advertising code hash %s found within %s", codeHash, timeout)
	}
}

func fromServiceEntry(entry *zeroconf.ServiceEntry) DiscoveredDevice {
	d := DiscoveredDevice{
		Name: entry.Instance,
		Host: entry.HostName,
		Port: entry.Port,
	}
	for _, kv := range entry.Text {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "version":
			d.Version = parts[1]
		case "pubkey":
			d.PublicKeyB64 = parts[1]
		case "code_hash":
			d.CodeHash = parts[1]
		}
	}
	return d
}
