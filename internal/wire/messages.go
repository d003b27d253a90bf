package wire

import (
	"encoding/binary"
	"fmt"
)

// ProtocolVersion is the current Flux wire protocol version (spec §4.10).
const ProtocolVersion byte = 1

// Handshake is the sender's opening message.
type Handshake struct {
	Version    byte
	DeviceName string
	PublicKey  []byte // absent (nil) when encryption is not offered
}

// HandshakeAck is the receiver's reply.
type HandshakeAck struct {
	Accepted  bool
	PublicKey []byte // present iff encryption was agreed
	Reason    string
}

// FileHeader announces the incoming file.
type FileHeader struct {
	Filename  string
	Size      uint64
	Checksum  string // empty when none supplied
	Encrypted bool
}

// DataChunk carries one slice of file content at a known offset.
type DataChunk struct {
	Offset uint64
	Data   []byte
	Nonce  []byte // present iff Encrypted, always 24 bytes (crypto.NonceSize)
}

// TransferComplete closes out a successful transfer.
type TransferComplete struct {
	Filename         string
	BytesReceived    uint64
	ChecksumVerified bool
	HasVerification  bool // distinguishes "not checked" from "checked and failed"
}

// Error carries a terminal failure description. The recipient must treat
// receiving one as ending the exchange (spec §4.10).
type Error struct {
	Message string
}

// EncodeHandshake serializes h into a frame payload.
func EncodeHandshake(h Handshake) []byte {
	buf := []byte{h.Version}
	buf = appendString(buf, h.DeviceName)
	buf = appendBytes(buf, h.PublicKey)
	return buf
}

// DecodeHandshake parses a Handshake payload.
func DecodeHandshake(payload []byte) (Handshake, error) {
	var h Handshake
	if len(payload) < 1 {
		return h, fmt.Errorf("wire: handshake payload too short")
	}
	h.Version = payload[0]
	rest := payload[1:]

	name, rest, err := readString(rest)
	if err != nil {
		return h, fmt.Errorf("wire: decoding handshake device name: %w", err)
	}
	h.DeviceName = name

	pub, _, err := readBytes(rest)
	if err != nil {
		return h, fmt.Errorf("wire: decoding handshake public key: %w", err)
	}
	h.PublicKey = pub
	return h, nil
}

// EncodeHandshakeAck serializes a.
func EncodeHandshakeAck(a HandshakeAck) []byte {
	var buf []byte
	buf = append(buf, boolByte(a.Accepted))
	buf = appendBytes(buf, a.PublicKey)
	buf = appendString(buf, a.Reason)
	return buf
}

// DecodeHandshakeAck parses a HandshakeAck payload.
func DecodeHandshakeAck(payload []byte) (HandshakeAck, error) {
	var a HandshakeAck
	if len(payload) < 1 {
		return a, fmt.Errorf("wire: handshake-ack payload too short")
	}
	a.Accepted = payload[0] != 0
	rest := payload[1:]

	pub, rest, err := readBytes(rest)
	if err != nil {
		return a, fmt.Errorf("wire: decoding handshake-ack public key: %w", err)
	}
	a.PublicKey = pub

	reason, _, err := readString(rest)
	if err != nil {
		return a, fmt.Errorf("wire: decoding handshake-ack reason: %w", err)
	}
	a.Reason = reason
	return a, nil
}

// EncodeFileHeader serializes h.
func EncodeFileHeader(h FileHeader) []byte {
	var buf []byte
	buf = appendString(buf, h.Filename)
	buf = appendUint64(buf, h.Size)
	buf = appendString(buf, h.Checksum)
	buf = append(buf, boolByte(h.Encrypted))
	return buf
}

// DecodeFileHeader parses a FileHeader payload.
func DecodeFileHeader(payload []byte) (FileHeader, error) {
	var h FileHeader
	name, rest, err := readString(payload)
	if err != nil {
		return h, fmt.Errorf("wire: decoding file-header filename: %w", err)
	}
	h.Filename = name

	size, rest, err := readUint64(rest)
	if err != nil {
		return h, fmt.Errorf("wire: decoding file-header size: %w", err)
	}
	h.Size = size

	checksum, rest, err := readString(rest)
	if err != nil {
		return h, fmt.Errorf("wire: decoding file-header checksum: %w", err)
	}
	h.Checksum = checksum

	if len(rest) < 1 {
		return h, fmt.Errorf("wire: file-header payload missing encrypted flag")
	}
	h.Encrypted = rest[0] != 0
	return h, nil
}

// EncodeDataChunk serializes c.
func EncodeDataChunk(c DataChunk) []byte {
	var buf []byte
	buf = appendUint64(buf, c.Offset)
	buf = appendBytes(buf, c.Data)
	buf = appendBytes(buf, c.Nonce)
	return buf
}

// DecodeDataChunk parses a DataChunk payload.
func DecodeDataChunk(payload []byte) (DataChunk, error) {
	var c DataChunk
	offset, rest, err := readUint64(payload)
	if err != nil {
		return c, fmt.Errorf("wire: decoding data-chunk offset: %w", err)
	}
	c.Offset = offset

	data, rest, err := readBytes(rest)
	if err != nil {
		return c, fmt.Errorf("wire: decoding data-chunk data: %w", err)
	}
	c.Data = data

	nonce, _, err := readBytes(rest)
	if err != nil {
		return c, fmt.Errorf("wire: decoding data-chunk nonce: %w", err)
	}
	c.Nonce = nonce
	return c, nil
}

// EncodeTransferComplete serializes c.
func EncodeTransferComplete(c TransferComplete) []byte {
	var buf []byte
	buf = appendString(buf, c.Filename)
	buf = appendUint64(buf, c.BytesReceived)
	buf = append(buf, boolByte(c.HasVerification))
	buf = append(buf, boolByte(c.ChecksumVerified))
	return buf
}

// DecodeTransferComplete parses a TransferComplete payload.
func DecodeTransferComplete(payload []byte) (TransferComplete, error) {
	var c TransferComplete
	name, rest, err := readString(payload)
	if err != nil {
		return c, fmt.Errorf("wire: decoding transfer-complete filename: %w", err)
	}
	c.Filename = name

	bytesReceived, rest, err := readUint64(rest)
	if err != nil {
		return c, fmt.Errorf("wire: decoding transfer-complete bytes: %w", err)
	}
	c.BytesReceived = bytesReceived

	if len(rest) < 2 {
		return c, fmt.Errorf("wire: transfer-complete payload missing verification flags")
	}
	c.HasVerification = rest[0] != 0
	c.ChecksumVerified = rest[1] != 0
	return c, nil
}

// EncodeError serializes e.
func EncodeError(e Error) []byte {
	return appendString(nil, e.Message)
}

// DecodeError parses an Error payload.
func DecodeError(payload []byte) (Error, error) {
	msg, _, err := readString(payload)
	if err != nil {
		return Error{}, fmt.Errorf("wire: decoding error message: %w", err)
	}
	return Error{Message: msg}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("buffer too short for uint64")
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

// appendBytes writes a uint32 length prefix followed by the bytes. A nil
// slice and an empty slice both round-trip as length 0, so callers that
// need to distinguish "absent" from "empty" track that separately (e.g.
// FileHeader.Encrypted, HandshakeAck.Accepted).
func appendBytes(buf, data []byte) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(data)))
	buf = append(buf, tmp[:]...)
	return append(buf, data...)
}

func readBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("buffer too short for length prefix")
	}
	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, fmt.Errorf("buffer too short for declared length %d", n)
	}
	if n == 0 {
		return nil, buf, nil
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, buf[n:], nil
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func readString(buf []byte) (string, []byte, error) {
	b, rest, err := readBytes(buf)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}
