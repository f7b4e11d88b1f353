package session

import (
	"crypto/rand"
	"sync"
)

// PayloadFunc returns size bytes of chunk data.
type PayloadFunc func(size int) []byte

// RandomPayload fills a fresh buffer with random bytes.
func RandomPayload(size int) []byte {
	buf := make([]byte, size)
	_, _ = rand.Read(buf)
	return buf
}

var (
	zeroOnce sync.Once
	zeroBuf  []byte
)

// ZeroPayload returns a read-only zeroed slice shared by every caller. It
// keeps large simulated runs cheap; consumers must not write to it.
func ZeroPayload(size int) []byte {
	zeroOnce.Do(func() {
		zeroBuf = make([]byte, 1024*1024)
	})
	if size <= len(zeroBuf) {
		return zeroBuf[:size:size]
	}
	return make([]byte, size)
}
