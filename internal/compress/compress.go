// Package compress wraps per-chunk compression codecs behind one
// interface, chosen by transfer.compression (none, gzip, zstd). The
// gzip/zstd codec split mirrors the teacher's CompressionGzip/CompressionZstd
// wire constants (internal/protocol/frames.go); pgzip replaces stdlib gzip
// so multi-core hosts compress chunks in parallel the way the teacher's
// tar/gzip streaming pipeline does for whole backups.
package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Codec identifies a compression algorithm, matching the wire tag values
// used by internal/wire.
type Codec byte

const (
	None Codec = 0x02 // not transmitted on the wire; local-only "no-op" codec
	Gzip Codec = 0x00
	Zstd Codec = 0x01
)

// String renders codec as the config name it was parsed from.
func (c Codec) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCodec maps a config string ("none", "gzip", "zstd") to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return None, nil
	case "gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("compress: unknown codec %q", name)
	}
}

// NewWriter wraps dest so writes are compressed with the given codec before
// reaching dest. The caller must Close the returned writer to flush
// trailers; Close does not close dest.
func NewWriter(dest io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case None:
		return nopWriteCloser{dest}, nil
	case Gzip:
		return pgzip.NewWriterLevel(dest, pgzip.BestSpeed)
	case Zstd:
		return zstd.NewWriter(dest, zstd.WithEncoderLevel(zstd.SpeedFastest))
	default:
		return nil, fmt.Errorf("compress: unknown codec %d", codec)
	}
}

// NewReader wraps src so reads are decompressed according to codec. The
// caller must Close the returned reader to release codec resources.
func NewReader(src io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case None:
		return io.NopCloser(src), nil
	case Gzip:
		r, err := pgzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("compress: opening gzip stream: %w", err)
		}
		return r, nil
	case Zstd:
		d, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("compress: opening zstd stream: %w", err)
		}
		return zstdReadCloser{d}, nil
	default:
		return nil, fmt.Errorf("compress: unknown codec %d", codec)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// zstdReadCloser adapts *zstd.Decoder (whose Close returns nothing) to
// io.ReadCloser.
type zstdReadCloser struct{ d *zstd.Decoder }

func (z zstdReadCloser) Read(p []byte) (int, error) { return z.d.Read(p) }
func (z zstdReadCloser) Close() error {
	z.d.Close()
	return nil
}
