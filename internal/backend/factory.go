package backend

import "fmt"

// New selects and constructs a Backend from a Protocol value (spec §4.3).
// SFTP is deliberately not handled here: connecting requires an
// ssh.HostKeyCallback built via NewKnownHostsCallback, which in turn needs
// an operator prompt channel the factory has no access to. Callers detect
// ProtocolSFTP themselves and call DialSFTP directly.
func New(proto Protocol) (Backend, error) {
	switch proto.Kind {
	case ProtocolLocal:
		return NewLocalBackend(), nil
	case ProtocolSMB:
		return NewSMBBackend(proto.Server, proto.Share), nil
	case ProtocolWebDAV:
		return DialWebDAV(proto.URL, proto.Auth), nil
	case ProtocolSFTP:
		return nil, fmt.Errorf("backend: use DialSFTP directly for SFTP (requires an ssh.HostKeyCallback)")
	default:
		return nil, fmt.Errorf("backend: unknown protocol kind %d", proto.Kind)
	}
}
