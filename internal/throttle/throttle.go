// Package throttle rate-limits transfer I/O with a token bucket, generalizing
// the teacher's write-only ThrottledWriter (internal/agent/throttle.go) to
// both io.Reader and io.Writer, since Flux throttles in either direction
// depending on whether the local side is sending or receiving.
package throttle

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstSize caps how many bytes a single Wait reservation can request,
// matching the teacher's bound to avoid pathologically large burst waits.
const maxBurstSize = 256 * 1024

// Writer is an io.Writer rate-limited to bytesPerSec bytes/second.
type Writer struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewWriter wraps w with a token-bucket limiter. If bytesPerSec <= 0, w is
// returned unchanged (no throttling).
func NewWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}
	return &Writer{w: w, limiter: newLimiter(bytesPerSec), ctx: ctx}
}

func (tw *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}
		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}
		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

// Reader is an io.Reader rate-limited to bytesPerSec bytes/second.
type Reader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// NewReader wraps r with a token-bucket limiter. If bytesPerSec <= 0, r is
// returned unchanged (no throttling).
func NewReader(ctx context.Context, r io.Reader, bytesPerSec int64) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}
	return &Reader{r: r, limiter: newLimiter(bytesPerSec), ctx: ctx}
}

func (tr *Reader) Read(p []byte) (int, error) {
	if len(p) > tr.limiter.Burst() {
		p = p[:tr.limiter.Burst()]
	}
	n, err := tr.r.Read(p)
	if n > 0 {
		if werr := tr.limiter.WaitN(tr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func newLimiter(bytesPerSec int64) *rate.Limiter {
	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
