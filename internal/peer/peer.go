// Package peer drives the Flux peer-to-peer exchange described in
// spec §4.10/§4.11: a sender pushes one file to a receiver over a framed
// TCP connection, optionally encrypted, with TOFU or code-phrase identity
// binding. The receiver's accept loop — backoff on Accept errors, one
// goroutine per connection, a shared logger threaded through — follows
// the teacher's internal/server/server.go Run loop; the admission
// semaphore generalizes the teacher's per-agent advisory lock into a
// fixed-size concurrency cap, since Flux has no notion of a named agent
// to lock on.
package peer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/flux-transfer/flux/internal/crypto"
	"github.com/flux-transfer/flux/internal/logging"
	"github.com/flux-transfer/flux/internal/state"
	"github.com/flux-transfer/flux/internal/wire"
	"github.com/zeebo/blake3"
)

// Timeouts from spec §4.11/§5.
const (
	HandshakeTimeout  = 30 * time.Second
	TransferTimeout   = 30 * time.Minute
	CompletionTimeout = 5 * time.Minute
	CodePhraseWait    = 5 * time.Minute
)

// DefaultAdmissionParallelism is the default concurrent-transfer cap
// (spec §4.11).
const DefaultAdmissionParallelism = 8

// DefaultMaxReceiveSize is the default oversize-reject threshold
// (spec §4.10): 4 GiB.
const DefaultMaxReceiveSize = 4 * 1024 * 1024 * 1024

var controlChars = regexp.MustCompile(`[[:cntrl:]]`)

// SanitizeDeviceName applies spec §4.11's peer device-name sanitization:
// strip control characters, trim whitespace, cap at 63 bytes, default to
// "unknown-device" when empty.
func SanitizeDeviceName(name string) string {
	s := controlChars.ReplaceAllString(name, "")
	s = strings.TrimSpace(s)
	if len(s) > 63 {
		s = s[:63]
	}
	if s == "" {
		return "unknown-device"
	}
	return s
}

// sanitizeFilename strips directory components and leading dots, and
// blocks Windows reserved stems by prefixing an underscore (spec §4.10
// step 5).
var windowsReserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "unnamed"
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if windowsReserved[strings.ToLower(stem)] {
		name = "_" + name
	}
	return name
}

// uniqueDestPath returns a path guaranteed not to exist yet, generating
// "<stem>_N<ext>" suffixes before falling back to an epoch-seconds suffix
// (shared naming scheme with the copy engine's conflict-rename policy,
// spec §4.5).
func uniqueDestPath(dir, filename string) string {
	candidate := filepath.Join(dir, filename)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 1; n <= 9999; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, time.Now().Unix(), ext))
}

// newTransferID mints a UUID v4 identifying one inbound transfer, used to
// name its dedicated session log file.
func newTransferID() string {
	b := make([]byte, 16)
	rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant RFC 4122
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// TOFUDecision is how the receiver should react to an offered public key,
// surfaced to the caller so it can prompt an operator before Receiver
// proceeds.
type TOFUDecision func(deviceName, fingerprint string) bool

// Receiver accepts incoming peer connections under an admission-control
// semaphore.
type Receiver struct {
	Logger       *slog.Logger
	Identity     *state.DeviceIdentity
	Trust        *state.TrustStore
	DestDir      string
	MaxReceive   uint64
	RequireCode  string // non-empty in code-phrase mode; empty means TOFU mode
	OnTOFUPrompt TOFUDecision

	// SessionLogDir, when non-empty, makes each inbound transfer write its
	// own debug-level log file at {SessionLogDir}/{deviceName}/{transferID}.log
	// in addition to the shared Logger, removed on successful completion
	// (logging.NewSessionLogger/RemoveSessionLog). Empty disables per-transfer
	// log files entirely.
	SessionLogDir string

	// ActiveConns, TrafficIn, and BytesWritten give a stats consumer live
	// connection bookkeeping, mirroring the teacher's
	// Handler.ActiveConns/TrafficIn/DiskWrite atomics.
	ActiveConns  atomic.Int32
	TrafficIn    atomic.Int64
	BytesWritten atomic.Int64

	sem chan struct{}
}

// NewReceiver constructs a Receiver with the given admission parallelism.
func NewReceiver(logger *slog.Logger, parallelism int) *Receiver {
	if parallelism <= 0 {
		parallelism = DefaultAdmissionParallelism
	}
	return &Receiver{
		Logger:     logger,
		MaxReceive: DefaultMaxReceiveSize,
		sem:        make(chan struct{}, parallelism),
	}
}

// Run accepts connections on ln until ctx is cancelled, processing each in
// its own goroutine once the admission semaphore grants a slot.
func (r *Receiver) Run(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				consecutiveErrors++
				r.Logger.Error("accepting peer connection", "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}
		consecutiveErrors = 0

		select {
		case r.sem <- struct{}{}:
			go func() {
				defer func() { <-r.sem }()
				r.handleConnection(ctx, conn)
			}()
		case <-ctx.Done():
			conn.Close()
			return nil
		}
	}
}

func (r *Receiver) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	r.ActiveConns.Add(1)
	defer r.ActiveConns.Add(-1)

	connCtx, cancel := context.WithTimeout(ctx, TransferTimeout)
	defer cancel()

	result, err := r.receiveOne(connCtx, conn)
	if err != nil {
		r.Logger.Error("peer transfer failed", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	r.Logger.Info("peer transfer complete",
		"filename", result.Filename,
		"bytes", result.BytesReceived,
		"remote", conn.RemoteAddr().String(),
	)
}

// ReceiveResult summarizes a completed inbound transfer.
type ReceiveResult struct {
	Filename         string
	BytesReceived    uint64
	ChecksumVerified bool
	DestPath         string
}

func (r *Receiver) receiveOne(ctx context.Context, conn net.Conn) (*ReceiveResult, error) {
	if err := conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("peer: setting handshake deadline: %w", err)
	}

	typ, payload, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("peer: reading handshake: %w", err)
	}
	if typ != wire.TypeHandshake {
		return nil, fmt.Errorf("peer: expected Handshake, got %s", typ)
	}
	hs, err := wire.DecodeHandshake(payload)
	if err != nil {
		return nil, err
	}
	deviceName := SanitizeDeviceName(hs.DeviceName)

	transferID := newTransferID()
	logger, logCloser, _, logErr := logging.NewSessionLogger(r.Logger, r.SessionLogDir, deviceName, transferID)
	if logErr != nil {
		r.Logger.Warn("opening per-transfer session log", "device", deviceName, "transfer_id", transferID, "error", logErr)
		logger = r.Logger
		logCloser = io.NopCloser(nil)
	}
	defer logCloser.Close()
	logger = logger.With("device", deviceName, "transfer_id", transferID)
	succeeded := false
	defer func() {
		if succeeded {
			logging.RemoveSessionLog(r.SessionLogDir, deviceName, transferID)
		}
	}()

	if hs.Version != wire.ProtocolVersion {
		r.sendError(conn, fmt.Sprintf("unsupported protocol version %d", hs.Version))
		writeHandshakeAck(conn, wire.HandshakeAck{Accepted: false, Reason: "version mismatch"})
		return nil, fmt.Errorf("peer: version mismatch from %s", deviceName)
	}

	var channel *crypto.Channel
	var ackPublicKey []byte

	if len(hs.PublicKey) > 0 {
		if r.Identity == nil {
			writeHandshakeAck(conn, wire.HandshakeAck{Accepted: false, Reason: "encryption not supported by this receiver"})
			return nil, fmt.Errorf("peer: sender offered encryption but receiver has no identity configured")
		}

		if r.RequireCode == "" {
			decision, fingerprint := r.checkTOFU(logger, deviceName, hs.PublicKey)
			if !decision {
				writeHandshakeAck(conn, wire.HandshakeAck{Accepted: false, Reason: "key rejected (" + fingerprint + ")"})
				return nil, fmt.Errorf("peer: TOFU check rejected device %s", deviceName)
			}
		}

		var peerPub [32]byte
		copy(peerPub[:], hs.PublicKey)

		handshake, err := r.localHandshake()
		if err != nil {
			return nil, err
		}
		if r.RequireCode != "" {
			channel, err = handshake.CompleteWithCode(peerPub, r.RequireCode)
		} else {
			channel, err = handshake.Complete(peerPub)
		}
		if err != nil {
			return nil, fmt.Errorf("peer: completing encrypted channel: %w", err)
		}
		ackPublicKey = handshake.Public[:]
	}

	writeHandshakeAck(conn, wire.HandshakeAck{Accepted: true, PublicKey: ackPublicKey})

	typ, payload, err = wire.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("peer: reading file header: %w", err)
	}
	if typ != wire.TypeFileHeader {
		return nil, fmt.Errorf("peer: expected FileHeader, got %s", typ)
	}
	fh, err := wire.DecodeFileHeader(payload)
	if err != nil {
		return nil, err
	}

	maxReceive := r.MaxReceive
	if maxReceive == 0 {
		maxReceive = DefaultMaxReceiveSize
	}
	if fh.Size > maxReceive {
		r.sendError(conn, "exceeds maximum")
		return nil, fmt.Errorf("peer: declared size %d exceeds maximum %d", fh.Size, maxReceive)
	}

	filename := sanitizeFilename(fh.Filename)
	destPath := uniqueDestPath(r.DestDir, filename)

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("peer: creating destination %s: %w", destPath, err)
	}

	result, err := r.receiveChunks(ctx, conn, out, fh, channel)
	closeErr := out.Close()
	if err != nil {
		os.Remove(destPath)
		return nil, err
	}
	if closeErr != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("peer: closing destination: %w", closeErr)
	}
	result.DestPath = destPath
	succeeded = true

	if err := conn.SetDeadline(time.Now().Add(CompletionTimeout)); err != nil {
		return result, nil
	}
	completePayload := wire.EncodeTransferComplete(wire.TransferComplete{
		Filename:         filename,
		BytesReceived:    result.BytesReceived,
		HasVerification:  fh.Checksum != "",
		ChecksumVerified: result.ChecksumVerified,
	})
	_ = wire.WriteFrame(conn, wire.TypeTransferComplete, completePayload)

	return result, nil
}

func (r *Receiver) receiveChunks(ctx context.Context, conn net.Conn, out *os.File, fh wire.FileHeader, channel *crypto.Channel) (*ReceiveResult, error) {
	hasher := blake3.New()
	var received uint64

	for received < fh.Size {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("peer: transfer cancelled or timed out")
		default:
		}

		typ, payload, err := wire.ReadFrame(conn)
		if err != nil {
			return nil, fmt.Errorf("peer: reading data chunk: %w", err)
		}
		r.TrafficIn.Add(int64(len(payload)))
		if typ == wire.TypeError {
			e, _ := wire.DecodeError(payload)
			return nil, fmt.Errorf("peer: sender reported error: %s", e.Message)
		}
		if typ != wire.TypeDataChunk {
			return nil, fmt.Errorf("peer: expected DataChunk, got %s", typ)
		}

		chunk, err := wire.DecodeDataChunk(payload)
		if err != nil {
			return nil, err
		}

		if chunk.Offset != received {
			return nil, fmt.Errorf("peer: out-of-order chunk: offset %d, expected %d", chunk.Offset, received)
		}

		plaintext := chunk.Data
		if fh.Encrypted {
			if channel == nil {
				return nil, fmt.Errorf("peer: encrypted chunk received but no channel negotiated")
			}
			if len(chunk.Nonce) != crypto.NonceSize {
				return nil, fmt.Errorf("peer: expected %d-byte nonce, got %d", crypto.NonceSize, len(chunk.Nonce))
			}
			var nonce [crypto.NonceSize]byte
			copy(nonce[:], chunk.Nonce)
			plaintext, err = channel.Open(nonce, chunk.Data)
			if err != nil {
				return nil, err
			}
		}

		if received+uint64(len(plaintext)) > fh.Size {
			return nil, fmt.Errorf("peer: chunk overflows declared size %d", fh.Size)
		}

		if _, err := out.Write(plaintext); err != nil {
			return nil, fmt.Errorf("peer: writing to destination: %w", err)
		}
		r.BytesWritten.Add(int64(len(plaintext)))
		hasher.Write(plaintext)
		received += uint64(len(plaintext))
	}

	result := &ReceiveResult{Filename: fh.Filename, BytesReceived: received}

	if fh.Checksum != "" {
		actual := fmt.Sprintf("%x", hasher.Sum(nil))
		result.ChecksumVerified = actual == fh.Checksum
		if !result.ChecksumVerified {
			return result, fmt.Errorf("peer: checksum mismatch: expected %s, got %s", fh.Checksum, actual)
		}
	}

	return result, nil
}

// localHandshake builds this side's DH keypair: the persisted device
// identity in TOFU mode (so the offered public key stays stable across
// sessions and can be meaningfully pinned), or a fresh one-off key in
// code-phrase mode (where the code itself, not key stability, is the
// authentication anchor).
func (r *Receiver) localHandshake() (*crypto.Handshake, error) {
	if r.RequireCode != "" || r.Identity == nil {
		return crypto.Initiate()
	}
	secret, err := r.Identity.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("peer: reading local identity: %w", err)
	}
	var fixed [32]byte
	copy(fixed[:], secret)
	return crypto.FromIdentitySecret(fixed)
}

func (r *Receiver) checkTOFU(logger *slog.Logger, deviceName string, publicKey []byte) (accept bool, fingerprint string) {
	pubB64 := base64.StdEncoding.EncodeToString(publicKey)
	fp := fingerprintB64(pubB64)

	if r.Trust == nil {
		return true, fp
	}

	switch r.Trust.Check(deviceName, pubB64) {
	case state.Trusted:
		return true, fp
	case state.KeyChanged:
		logger.Warn("peer public key changed — possible MITM", "fingerprint", fp)
		return false, fp
	default: // Unknown
		if r.OnTOFUPrompt == nil {
			return false, fp
		}
		if !r.OnTOFUPrompt(deviceName, fp) {
			return false, fp
		}
		if err := r.Trust.Trust(deviceName, pubB64, deviceName); err != nil {
			logger.Error("persisting trust decision", "error", err)
		}
		return true, fp
	}
}

func fingerprintB64(keyB64 string) string {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return "unknown"
	}
	sum := blake3.Sum256(key)
	return "BLAKE3:" + base64.RawStdEncoding.EncodeToString(sum[:])
}

func (r *Receiver) sendError(conn net.Conn, message string) {
	_ = wire.WriteFrame(conn, wire.TypeError, wire.EncodeError(wire.Error{Message: message}))
}

func writeHandshakeAck(conn net.Conn, ack wire.HandshakeAck) {
	_ = wire.WriteFrame(conn, wire.TypeHandshakeAck, wire.EncodeHandshakeAck(ack))
}
