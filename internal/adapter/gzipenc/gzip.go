// Package gzipenc implements the GzipEncoder: a mutex-guarded, reusable
// gzip writer applied opportunistically to request bodies above a size
// threshold (see DESIGN.md for why this stays on the standard library's
// compress/gzip rather than a third-party implementation), mirroring
// original_source/capture/http.c's deflate/deflateReset pairing for the
// "reset before releasing the mutex" discipline in §4.6.
package gzipenc

import (
	"bytes"
	"compress/gzip"
	"sync"
)

// CompressThreshold is the smallest body, in bytes, the encoder will
// attempt to compress. Bodies at or below this size are always sent as-is
// (§4.3, §8 boundary: 860 uncompressed, 861 attempted).
const CompressThreshold = 860

// Encoder is the process-wide GzipEncoder: one gzip.Writer reused across
// calls under a single mutex, exactly as §4.6 specifies.
type Encoder struct {
	mu  sync.Mutex
	buf bytes.Buffer
	zw  *gzip.Writer
}

// New returns a ready-to-use Encoder.
func New() *Encoder {
	e := &Encoder{}
	e.zw = gzip.NewWriter(&e.buf)
	return e
}

// Compress gzips input if it is larger than CompressThreshold, returning
// the compressed bytes and true. Below the threshold, or on any internal
// gzip error, it returns the original input unmodified and false — the
// encoder never fails fatally (§4.6, §7 "gzip internal error: silent
// fallback to uncompressed body").
func (e *Encoder) Compress(input []byte) (output []byte, compressed bool) {
	if len(input) <= CompressThreshold {
		return input, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf.Reset()
	e.zw.Reset(&e.buf)

	if _, err := e.zw.Write(input); err != nil {
		return input, false
	}
	if err := e.zw.Close(); err != nil {
		return input, false
	}

	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, true
}
