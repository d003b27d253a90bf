// Package ferrors defines the typed error taxonomy shared by every transfer
// core component, so that CLI and TUI callers (outside this module) can
// branch on error kind without parsing messages.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind identifies the band an error belongs to. See spec §6/§7.
type Kind int

const (
	Unknown Kind = iota
	SourceNotFound
	PermissionDenied
	DestinationNotWritable
	IsDirectory
	InvalidPattern
	DestinationIsSubdirectory
	Io
	Config
	AliasError
	QueueError
	SyncError
	ConnectionFailed
	ProtocolError
	ResumeError
	CompressionError
	ChecksumMismatch
	EncryptionError
	TrustError
	TransferError
	DiscoveryError
)

func (k Kind) String() string {
	switch k {
	case SourceNotFound:
		return "SourceNotFound"
	case PermissionDenied:
		return "PermissionDenied"
	case DestinationNotWritable:
		return "DestinationNotWritable"
	case IsDirectory:
		return "IsDirectory"
	case InvalidPattern:
		return "InvalidPattern"
	case DestinationIsSubdirectory:
		return "DestinationIsSubdirectory"
	case Io:
		return "Io"
	case Config:
		return "Config"
	case AliasError:
		return "AliasError"
	case QueueError:
		return "QueueError"
	case SyncError:
		return "SyncError"
	case ConnectionFailed:
		return "ConnectionFailed"
	case ProtocolError:
		return "ProtocolError"
	case ResumeError:
		return "ResumeError"
	case CompressionError:
		return "CompressionError"
	case ChecksumMismatch:
		return "ChecksumMismatch"
	case EncryptionError:
		return "EncryptionError"
	case TrustError:
		return "TrustError"
	case TransferError:
		return "TransferError"
	case DiscoveryError:
		return "DiscoveryError"
	default:
		return "Unknown"
	}
}

// Error is the typed, user-visible error value every component returns for
// failures that should not be silently swallowed. Hint, when set, is the
// fix-it suggestion surfaced by the CLI as `hint: ...`.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ferrors.ErrSourceNotFound) work by comparing Kind,
// via the sentinel kindMarker values below.
func (e *Error) Is(target error) bool {
	m, ok := target.(kindMarker)
	return ok && e.Kind == Kind(m)
}

type kindMarker Kind

func (kindMarker) Error() string { return "" }

// sentinel values usable with errors.Is, e.g. errors.Is(err, ferrors.ErrSourceNotFound).
var (
	ErrSourceNotFound            = kindMarker(SourceNotFound)
	ErrPermissionDenied          = kindMarker(PermissionDenied)
	ErrDestinationNotWritable    = kindMarker(DestinationNotWritable)
	ErrIsDirectory               = kindMarker(IsDirectory)
	ErrInvalidPattern            = kindMarker(InvalidPattern)
	ErrDestinationIsSubdirectory = kindMarker(DestinationIsSubdirectory)
	ErrIo                        = kindMarker(Io)
	ErrConfig                    = kindMarker(Config)
	ErrAliasError                = kindMarker(AliasError)
	ErrQueueError                = kindMarker(QueueError)
	ErrSyncError                 = kindMarker(SyncError)
	ErrConnectionFailed          = kindMarker(ConnectionFailed)
	ErrProtocolError             = kindMarker(ProtocolError)
	ErrResumeError               = kindMarker(ResumeError)
	ErrCompressionError          = kindMarker(CompressionError)
	ErrChecksumMismatch          = kindMarker(ChecksumMismatch)
	ErrEncryptionError           = kindMarker(EncryptionError)
	ErrTrustError                = kindMarker(TrustError)
	ErrTransferError             = kindMarker(TransferError)
	ErrDiscoveryError            = kindMarker(DiscoveryError)
)

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error wrapping err, formatting message the way the teacher's
// fmt.Errorf("...: %w", err) call sites do throughout the codebase.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithHint attaches a fix-it suggestion and returns the same error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// ConnectionFailure builds the {protocol,host,reason} variant named in spec §6.
func ConnectionFailure(protocol, host string, err error) *Error {
	return &Error{
		Kind:    ConnectionFailed,
		Message: fmt.Sprintf("connection to %s (%s) failed", host, protocol),
		Err:     err,
	}
}

// ChecksumMismatchErr builds the {path,expected,actual} variant named in spec §6.
func ChecksumMismatchErr(path, expected, actual string) *Error {
	return &Error{
		Kind:    ChecksumMismatch,
		Message: fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", path, expected, actual),
	}
}

// As is a thin wrapper so callers don't need to import errors separately
// when they only deal with *ferrors.Error.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
