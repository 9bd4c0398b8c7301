package common

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
)

// RandomInt63 returns a uniformly random non-negative int64.
func RandomInt63() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:]) &^ (1 << 63)), nil
}

// NewMediaID allocates a collision-resistant media identifier: a random
// 63-bit token rendered in decimal.
func NewMediaID() (string, error) {
	n, err := RandomInt63()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}
