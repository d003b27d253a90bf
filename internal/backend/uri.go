package backend

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ProtocolKind tags which concrete backend a Protocol value selects.
type ProtocolKind int

const (
	ProtocolLocal ProtocolKind = iota
	ProtocolSFTP
	ProtocolSMB
	ProtocolWebDAV
)

// Protocol is the tagged variant produced by the URI parser and consumed
// by the backend factory (spec §3).
type Protocol struct {
	Kind ProtocolKind

	// Local
	Path string

	// SFTP
	User string
	Host string
	Port int

	// SMB
	Server string
	Share  string

	// WebDAV
	URL  string
	Auth Auth
}

// AuthKind tags an Auth variant.
type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthPassword
	AuthKeyFile
	AuthAgent
)

// Auth is the tagged variant describing how to authenticate to a remote
// backend.
type Auth struct {
	Kind       AuthKind
	User       string
	Password   string
	KeyPath    string
	Passphrase string
}

const defaultSFTPPort = 22

// DetectProtocol classifies a path/URI per spec §6's detection order:
// UNC/SMB forms first, then URL schemes, then single-letter drive
// letters, falling back to Local.
func DetectProtocol(input string) (Protocol, error) {
	// 1. \\server\share\path
	if strings.HasPrefix(input, `\\`) {
		return parseSMBBackslash(input)
	}

	// 2. //server/share/path, but not ///... (which is a local absolute path
	// with a redundant leading slash).
	if strings.HasPrefix(input, "//") && !strings.HasPrefix(input, "///") {
		return parseSMBSlash(input)
	}

	if u, err := url.Parse(input); err == nil && u.Scheme != "" {
		switch strings.ToLower(u.Scheme) {
		case "sftp", "ssh":
			return parseSFTPURL(u)
		case "smb":
			return parseSMBURL(u)
		case "https", "http", "webdav", "dav":
			return parseWebDAVURL(u, input)
		}
		// Single-letter scheme: a Windows drive letter ("C:\Users\x"),
		// not a recognized URL scheme.
		if len(u.Scheme) == 1 {
			return Protocol{Kind: ProtocolLocal, Path: input}, nil
		}
	}

	// Otherwise → Local.
	return Protocol{Kind: ProtocolLocal, Path: input}, nil
}

func parseSMBBackslash(input string) (Protocol, error) {
	trimmed := strings.TrimPrefix(input, `\\`)
	parts := strings.SplitN(trimmed, `\`, 3)
	if len(parts) < 2 {
		return Protocol{}, fmt.Errorf("backend: malformed UNC path %q", input)
	}
	p := Protocol{Kind: ProtocolSMB, Server: parts[0], Share: parts[1]}
	if len(parts) == 3 {
		p.Path = strings.ReplaceAll(parts[2], `\`, "/")
	}
	return p, nil
}

func parseSMBSlash(input string) (Protocol, error) {
	trimmed := strings.TrimPrefix(input, "//")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 {
		return Protocol{}, fmt.Errorf("backend: malformed SMB path %q", input)
	}
	p := Protocol{Kind: ProtocolSMB, Server: parts[0], Share: parts[1]}
	if len(parts) == 3 {
		p.Path = parts[2]
	}
	return p, nil
}

func parseSFTPURL(u *url.URL) (Protocol, error) {
	port := defaultSFTPPort
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return Protocol{}, fmt.Errorf("backend: invalid SFTP port %q: %w", u.Port(), err)
		}
		port = p
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	return Protocol{
		Kind: ProtocolSFTP,
		User: user,
		Host: u.Hostname(),
		Port: port,
		Path: u.Path,
	}, nil
}

func parseSMBURL(u *url.URL) (Protocol, error) {
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return Protocol{}, fmt.Errorf("backend: SMB URL missing share name")
	}
	p := Protocol{Kind: ProtocolSMB, Server: u.Hostname(), Share: parts[0]}
	if len(parts) == 2 {
		p.Path = parts[1]
	}
	return p, nil
}

func parseWebDAVURL(u *url.URL, original string) (Protocol, error) {
	auth := Auth{Kind: AuthNone}
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = Auth{Kind: AuthPassword, User: u.User.Username(), Password: pass}
	}

	// Strip userinfo from the URL we hand to the gowebdav client; auth is
	// passed separately.
	stripped := *u
	stripped.User = nil

	return Protocol{Kind: ProtocolWebDAV, URL: stripped.String(), Auth: auth}, nil
}
