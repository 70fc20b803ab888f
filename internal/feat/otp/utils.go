package otp

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Fingerprint hashes the given fields with SHA-256 and encodes the result as
// a hexadecimal string. Every field is length-prefixed, so two different
// field lists never hash the same input bytes.
// Do not modify this function without proper preparation: a changed
// fingerprint makes every cached entry look new and re-relays them.
func Fingerprint(fields ...string) string {
	h := sha256.New()
	var size [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(size[:], uint64(len(f)))
		h.Write(size[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
