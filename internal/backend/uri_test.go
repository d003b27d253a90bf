package backend

import "testing"

func TestDetectProtocol_WindowsDriveLetterIsLocal(t *testing.T) {
	p, err := DetectProtocol(`C:\Users\x`)
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolLocal {
		t.Errorf("Kind = %v, want ProtocolLocal", p.Kind)
	}
}

func TestDetectProtocol_DoubleSlashIsSMB(t *testing.T) {
	p, err := DetectProtocol("//a/b/c")
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolSMB {
		t.Errorf("Kind = %v, want ProtocolSMB", p.Kind)
	}
	if p.Server != "a" || p.Share != "b" || p.Path != "c" {
		t.Errorf("p = %+v", p)
	}
}

func TestDetectProtocol_TripleSlashIsLocal(t *testing.T) {
	p, err := DetectProtocol("///a")
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolLocal {
		t.Errorf("Kind = %v, want ProtocolLocal", p.Kind)
	}
}

func TestDetectProtocol_UNCBackslash(t *testing.T) {
	p, err := DetectProtocol(`\\server\share\dir\file.txt`)
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolSMB {
		t.Errorf("Kind = %v, want ProtocolSMB", p.Kind)
	}
	if p.Server != "server" || p.Share != "share" || p.Path != "dir/file.txt" {
		t.Errorf("p = %+v", p)
	}
}

func TestDetectProtocol_SFTPScheme(t *testing.T) {
	p, err := DetectProtocol("sftp://user@example.com:2222/path/to/file")
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolSFTP {
		t.Errorf("Kind = %v, want ProtocolSFTP", p.Kind)
	}
	if p.User != "user" || p.Host != "example.com" || p.Port != 2222 {
		t.Errorf("p = %+v", p)
	}
}

func TestDetectProtocol_SFTPDefaultPort(t *testing.T) {
	p, err := DetectProtocol("sftp://example.com/path")
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Port != 22 {
		t.Errorf("Port = %d, want 22", p.Port)
	}
}

func TestDetectProtocol_SSHSchemeAliasesSFTP(t *testing.T) {
	p, err := DetectProtocol("ssh://example.com/path")
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolSFTP {
		t.Errorf("Kind = %v, want ProtocolSFTP", p.Kind)
	}
}

func TestDetectProtocol_SMBScheme(t *testing.T) {
	p, err := DetectProtocol("smb://server/share/path")
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolSMB {
		t.Errorf("Kind = %v, want ProtocolSMB", p.Kind)
	}
	if p.Server != "server" || p.Share != "share" {
		t.Errorf("p = %+v", p)
	}
}

func TestDetectProtocol_WebDAVSchemesWithInlineAuth(t *testing.T) {
	schemes := []string{"https", "http", "webdav", "dav"}
	for _, scheme := range schemes {
		p, err := DetectProtocol(scheme + "://alice:secret@example.com/dav/path")
		if err != nil {
			t.Fatalf("DetectProtocol(%s): %v", scheme, err)
		}
		if p.Kind != ProtocolWebDAV {
			t.Errorf("scheme %s: Kind = %v, want ProtocolWebDAV", scheme, p.Kind)
		}
		if p.Auth.Kind != AuthPassword || p.Auth.User != "alice" || p.Auth.Password != "secret" {
			t.Errorf("scheme %s: Auth = %+v", scheme, p.Auth)
		}
	}
}

func TestDetectProtocol_PlainPathIsLocal(t *testing.T) {
	p, err := DetectProtocol("/home/user/file.txt")
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolLocal {
		t.Errorf("Kind = %v, want ProtocolLocal", p.Kind)
	}
	if p.Path != "/home/user/file.txt" {
		t.Errorf("Path = %q", p.Path)
	}
}

func TestDetectProtocol_RelativePathIsLocal(t *testing.T) {
	p, err := DetectProtocol("relative/path.txt")
	if err != nil {
		t.Fatalf("DetectProtocol: %v", err)
	}
	if p.Kind != ProtocolLocal {
		t.Errorf("Kind = %v, want ProtocolLocal", p.Kind)
	}
}
