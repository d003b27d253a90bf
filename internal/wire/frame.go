// Package wire implements Flux's peer-to-peer framing: length-delimited
// frames over a plain TCP stream, carrying tagged message variants
// (Handshake, HandshakeAck, FileHeader, DataChunk, TransferComplete,
// Error). It plays the role the teacher's internal/protocol package
// plays for NBackup's agent↔server wire — a small, explicit binary codec
// read with io.ReadFull and written with direct io.Writer calls — but
// replaces NBackup's magic-plus-newline-delimited fields with a uniform
// 4-byte big-endian length prefix per spec §4.10, since Flux frames carry
// operator-supplied filenames that could themselves contain the newline a
// delimited field would use as a terminator.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize is the hard per-frame cap (spec §4.10): 2 MiB, including the
// one-byte message-type tag.
const MaxFrameSize = 2 * 1024 * 1024

// DefaultChunkSize is the default DataChunk payload size, comfortably
// under MaxFrameSize even with AEAD expansion and a nonce.
const DefaultChunkSize = 256 * 1024

// Type tags a frame's payload so the reader knows which message to decode.
type Type byte

const (
	TypeHandshake Type = iota
	TypeHandshakeAck
	TypeFileHeader
	TypeDataChunk
	TypeTransferComplete
	TypeError
)

func (t Type) String() string {
	switch t {
	case TypeHandshake:
		return "Handshake"
	case TypeHandshakeAck:
		return "HandshakeAck"
	case TypeFileHeader:
		return "FileHeader"
	case TypeDataChunk:
		return "DataChunk"
	case TypeTransferComplete:
		return "TransferComplete"
	case TypeError:
		return "Error"
	default:
		return fmt.Sprintf("Type(%d)", byte(t))
	}
}

// WriteFrame writes one length-delimited frame: [len uint32 BE][type 1B][payload].
// len counts the type byte plus payload.
func WriteFrame(w io.Writer, typ Type, payload []byte) error {
	total := len(payload) + 1
	if total > MaxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds max %d", total, MaxFrameSize)
	}

	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(total))
	header[4] = byte(typ)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: writing frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("wire: writing frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one length-delimited frame and returns its type tag and
// payload. A frame declaring a length over MaxFrameSize is rejected before
// any payload bytes are read, so a malicious or corrupt peer cannot force
// an unbounded allocation.
func ReadFrame(r io.Reader) (Type, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("wire: reading frame length: %w", err)
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total == 0 {
		return 0, nil, fmt.Errorf("wire: frame declares zero length, missing type tag")
	}
	if total > MaxFrameSize {
		return 0, nil, fmt.Errorf("wire: frame of %d bytes exceeds max %d", total, MaxFrameSize)
	}

	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("wire: reading frame type: %w", err)
	}

	payload := make([]byte, total-1)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("wire: reading frame payload: %w", err)
		}
	}
	return Type(typeBuf[0]), payload, nil
}
