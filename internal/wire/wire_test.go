package wire

import (
	"bytes"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, TypeFileHeader, []byte("payload")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	typ, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != TypeFileHeader || string(payload) != "payload" {
		t.Fatalf("got (%v, %q), want (FileHeader, payload)", typ, payload)
	}
}

func TestWriteFrame_RejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	oversized := make([]byte, MaxFrameSize+1)
	if err := WriteFrame(&buf, TypeDataChunk, oversized); err == nil {
		t.Fatal("expected error for payload exceeding MaxFrameSize")
	}
}

func TestReadFrame_RejectsDeclaredOversizeWithoutReadingPayload(t *testing.T) {
	var buf bytes.Buffer
	var header [5]byte
	header[0], header[1], header[2], header[3] = 0xFF, 0xFF, 0xFF, 0xFF
	buf.Write(header[:])

	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for frame declaring an oversize length")
	}
}

func TestHandshakeRoundTrip(t *testing.T) {
	h := Handshake{Version: ProtocolVersion, DeviceName: "laptop", PublicKey: []byte{1, 2, 3, 4}}
	decoded, err := DecodeHandshake(EncodeHandshake(h))
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if decoded.Version != h.Version || decoded.DeviceName != h.DeviceName || !bytes.Equal(decoded.PublicKey, h.PublicKey) {
		t.Fatalf("decoded = %+v, want %+v", decoded, h)
	}
}

func TestHandshake_NoPublicKeyRoundTripsAsEmpty(t *testing.T) {
	h := Handshake{Version: ProtocolVersion, DeviceName: "laptop"}
	decoded, err := DecodeHandshake(EncodeHandshake(h))
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if len(decoded.PublicKey) != 0 {
		t.Fatalf("PublicKey = %v, want empty", decoded.PublicKey)
	}
}

func TestHandshakeAckRoundTrip(t *testing.T) {
	a := HandshakeAck{Accepted: true, PublicKey: []byte{9, 9}, Reason: ""}
	decoded, err := DecodeHandshakeAck(EncodeHandshakeAck(a))
	if err != nil {
		t.Fatalf("DecodeHandshakeAck: %v", err)
	}
	if !decoded.Accepted || !bytes.Equal(decoded.PublicKey, a.PublicKey) {
		t.Fatalf("decoded = %+v, want %+v", decoded, a)
	}
}

func TestHandshakeAckRoundTrip_Rejected(t *testing.T) {
	a := HandshakeAck{Accepted: false, Reason: "version mismatch"}
	decoded, err := DecodeHandshakeAck(EncodeHandshakeAck(a))
	if err != nil {
		t.Fatalf("DecodeHandshakeAck: %v", err)
	}
	if decoded.Accepted || decoded.Reason != "version mismatch" {
		t.Fatalf("decoded = %+v, want rejected with reason", decoded)
	}
}

func TestFileHeaderRoundTrip(t *testing.T) {
	h := FileHeader{Filename: "report.pdf", Size: 123456, Checksum: "abcd", Encrypted: true}
	decoded, err := DecodeFileHeader(EncodeFileHeader(h))
	if err != nil {
		t.Fatalf("DecodeFileHeader: %v", err)
	}
	if decoded != h {
		t.Fatalf("decoded = %+v, want %+v", decoded, h)
	}
}

func TestDataChunkRoundTrip(t *testing.T) {
	c := DataChunk{Offset: 4096, Data: bytes.Repeat([]byte{0xAB}, 1024), Nonce: bytes.Repeat([]byte{0x01}, 24)}
	decoded, err := DecodeDataChunk(EncodeDataChunk(c))
	if err != nil {
		t.Fatalf("DecodeDataChunk: %v", err)
	}
	if decoded.Offset != c.Offset || !bytes.Equal(decoded.Data, c.Data) || !bytes.Equal(decoded.Nonce, c.Nonce) {
		t.Fatalf("decoded mismatch")
	}
}

func TestTransferCompleteRoundTrip(t *testing.T) {
	c := TransferComplete{Filename: "report.pdf", BytesReceived: 123456, HasVerification: true, ChecksumVerified: true}
	decoded, err := DecodeTransferComplete(EncodeTransferComplete(c))
	if err != nil {
		t.Fatalf("DecodeTransferComplete: %v", err)
	}
	if decoded != c {
		t.Fatalf("decoded = %+v, want %+v", decoded, c)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	e := Error{Message: "exceeds maximum"}
	decoded, err := DecodeError(EncodeError(e))
	if err != nil {
		t.Fatalf("DecodeError: %v", err)
	}
	if decoded != e {
		t.Fatalf("decoded = %+v, want %+v", decoded, e)
	}
}

func TestDecodeFileHeader_TruncatedPayloadErrors(t *testing.T) {
	if _, err := DecodeFileHeader([]byte{0, 0, 0}); err == nil {
		t.Fatal("expected error decoding a truncated file-header payload")
	}
}

func TestFrameRoundTrip_OverTCPLikeStream(t *testing.T) {
	var buf bytes.Buffer
	messages := []string{"one", "two", "three"}
	for _, m := range messages {
		if err := WriteFrame(&buf, TypeError, EncodeError(Error{Message: m})); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	for _, want := range messages {
		typ, payload, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if typ != TypeError {
			t.Fatalf("type = %v, want Error", typ)
		}
		e, err := DecodeError(payload)
		if err != nil {
			t.Fatalf("DecodeError: %v", err)
		}
		if e.Message != want {
			t.Fatalf("message = %q, want %q", e.Message, want)
		}
	}
}

func TestTypeString(t *testing.T) {
	if !strings.Contains(TypeHandshake.String(), "Handshake") {
		t.Fatalf("String() = %q", TypeHandshake.String())
	}
}
