// Package corrid generates short, human-readable correlation ids for
// requests passing through the pool: a word-pair-plus-hex scheme themed
// for packet capture.
package corrid

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var actions = []string{
	"sniffing", "capturing", "parsing", "indexing", "tagging",
	"spooling", "draining", "flushing", "rotating", "sampling",
}

var subjects = []string{
	"packet", "session", "stream", "socket", "frame",
	"payload", "flow", "datagram", "segment", "capture",
}

// New returns a correlation id of the form "<subject>_<action>_<hex4>",
// suitable for attaching to a Request and threading through logs.
func New() string {
	subject := subjects[randIntn(len(subjects))]
	action := actions[randIntn(len(actions))]
	suffix := randIntn(65536)
	return fmt.Sprintf("%s_%s_%04x", subject, action, suffix)
}

// randIntn returns a uniform random int in [0, n) using crypto/rand, so
// correlation ids stay well-distributed even under concurrent, bursty
// request submission without a shared math/rand source.
func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
