package session

import (
	"crypto/rand"
	"crypto/sha1"
	"strconv"
	"time"
)

const agentTag = "bitforge"

// NewPeerID derives a 20-byte peer identifier from the current time in
// nanoseconds, a literal agent tag, and 16 bytes of cryptographic
// randomness, hashed with SHA-1.
func NewPeerID() [20]byte {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		panic("session: failed to read cryptographic randomness: " + err.Error())
	}

	h := sha1.New()
	h.Write([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(agentTag))
	h.Write([]byte{'|'})
	h.Write(salt[:])

	var id [20]byte
	copy(id[:], h.Sum(nil))
	return id
}
