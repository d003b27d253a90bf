package peer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/flux-transfer/flux/internal/checksum"
	"github.com/flux-transfer/flux/internal/crypto"
	"github.com/flux-transfer/flux/internal/state"
	"github.com/flux-transfer/flux/internal/wire"
)

// SendOptions configures one outbound peer transfer.
type SendOptions struct {
	DeviceName string
	Identity   *state.DeviceIdentity // non-nil offers encryption using this device's persistent key (TOFU mode)
	CodePhrase string                // non-empty selects complete_with_code on both sides; implies a one-off key
	Verify     bool                  // include a whole-file checksum in FileHeader
}

// SendResult summarizes a completed outbound transfer.
type SendResult struct {
	BytesSent        uint64
	Accepted         bool
	ChecksumVerified bool
}

// Send dials addr and pushes sourcePath through the full exchange
// described in spec §4.10.
func Send(ctx context.Context, addr, sourcePath string, opts SendOptions) (*SendResult, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peer: dialing %s: %w", addr, err)
	}
	defer conn.Close()

	return SendOverConn(conn, sourcePath, opts)
}

// SendOverConn runs the exchange over an already-established connection,
// used directly by code-phrase mode where the sender is the one listening
// (spec §4.10's role reversal).
func SendOverConn(conn net.Conn, sourcePath string, opts SendOptions) (*SendResult, error) {
	if err := conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("peer: setting handshake deadline: %w", err)
	}

	var handshake *crypto.Handshake
	var err error
	switch {
	case opts.CodePhrase != "":
		handshake, err = crypto.Initiate()
	case opts.Identity != nil:
		var secret [32]byte
		raw, secretErr := opts.Identity.PrivateKey()
		if secretErr != nil {
			return nil, fmt.Errorf("peer: reading local identity: %w", secretErr)
		}
		copy(secret[:], raw)
		handshake, err = crypto.FromIdentitySecret(secret)
	}
	if err != nil {
		return nil, err
	}

	var publicKeyForWire []byte
	if handshake != nil {
		publicKeyForWire = handshake.Public[:]
	}

	if err := wire.WriteFrame(conn, wire.TypeHandshake, wire.EncodeHandshake(wire.Handshake{
		Version:    wire.ProtocolVersion,
		DeviceName: opts.DeviceName,
		PublicKey:  publicKeyForWire,
	})); err != nil {
		return nil, fmt.Errorf("peer: writing handshake: %w", err)
	}

	typ, payload, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("peer: reading handshake ack: %w", err)
	}
	if typ != wire.TypeHandshakeAck {
		return nil, fmt.Errorf("peer: expected HandshakeAck, got %s", typ)
	}
	ack, err := wire.DecodeHandshakeAck(payload)
	if err != nil {
		return nil, err
	}
	if !ack.Accepted {
		return &SendResult{Accepted: false}, fmt.Errorf("peer: handshake rejected: %s", ack.Reason)
	}

	var channel *crypto.Channel
	encrypted := false
	if handshake != nil {
		if len(ack.PublicKey) == 0 {
			return nil, fmt.Errorf("peer: offered encryption but receiver did not negotiate a key")
		}
		var peerPub [32]byte
		copy(peerPub[:], ack.PublicKey)

		if opts.CodePhrase != "" {
			channel, err = handshake.CompleteWithCode(peerPub, opts.CodePhrase)
		} else {
			channel, err = handshake.Complete(peerPub)
		}
		if err != nil {
			return nil, fmt.Errorf("peer: completing encrypted channel: %w", err)
		}
		encrypted = true
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("peer: opening source %s: %w", sourcePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("peer: stat source %s: %w", sourcePath, err)
	}

	var fileChecksum string
	if opts.Verify {
		fileChecksum, err = checksum.File(sourcePath)
		if err != nil {
			return nil, err
		}
	}

	if err := wire.WriteFrame(conn, wire.TypeFileHeader, wire.EncodeFileHeader(wire.FileHeader{
		Filename:  filepath.Base(sourcePath),
		Size:      uint64(info.Size()),
		Checksum:  fileChecksum,
		Encrypted: encrypted,
	})); err != nil {
		return nil, fmt.Errorf("peer: writing file header: %w", err)
	}

	result, err := sendChunks(conn, f, uint64(info.Size()), channel)
	if err != nil {
		return result, err
	}

	conn.SetDeadline(time.Now().Add(CompletionTimeout))
	typ, payload, err = wire.ReadFrame(conn)
	if err != nil {
		return result, nil // best-effort ack; the bytes are already on the wire
	}
	if typ == wire.TypeTransferComplete {
		tc, err := wire.DecodeTransferComplete(payload)
		if err == nil {
			result.ChecksumVerified = tc.ChecksumVerified
		}
	} else if typ == wire.TypeError {
		e, _ := wire.DecodeError(payload)
		return result, fmt.Errorf("peer: receiver reported error: %s", e.Message)
	}

	return result, nil
}

func sendChunks(conn net.Conn, f *os.File, size uint64, channel *crypto.Channel) (*SendResult, error) {
	buf := make([]byte, wire.DefaultChunkSize)
	var offset uint64

	for offset < size {
		conn.SetDeadline(time.Now().Add(TransferTimeout))

		n, readErr := f.Read(buf)
		if n == 0 {
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				return &SendResult{BytesSent: offset}, fmt.Errorf("peer: reading source: %w", readErr)
			}
		}

		data := buf[:n]
		var nonce []byte
		if channel != nil {
			n24, ciphertext, err := channel.Seal(data)
			if err != nil {
				return &SendResult{BytesSent: offset}, err
			}
			nonce = n24[:]
			data = ciphertext
		}

		if err := wire.WriteFrame(conn, wire.TypeDataChunk, wire.EncodeDataChunk(wire.DataChunk{
			Offset: offset,
			Data:   data,
			Nonce:  nonce,
		})); err != nil {
			return &SendResult{BytesSent: offset}, fmt.Errorf("peer: writing data chunk: %w", err)
		}

		offset += uint64(n)
		if readErr == io.EOF {
			break
		}
	}

	return &SendResult{BytesSent: offset, Accepted: true}, nil
}

