package session

import "io"

const (
	protocolString = "BitTorrent protocol"
	handshakeLen   = 1 + len(protocolString) + 8 + 20 + 20
)

// ReadHandshake reads and validates the 68-byte inbound handshake prefix
// from r: 1-byte protocol length (must be 19), the literal protocol
// string, 8 reserved bytes (ignored), a 20-byte infohash, and a 20-byte
// peer-id. The infohash selects a worker; the peer-id is forwarded to it.
func ReadHandshake(r io.Reader) (infoHash, peerID [20]byte, err error) {
	buf := make([]byte, handshakeLen)
	if _, err = io.ReadFull(r, buf); err != nil {
		return infoHash, peerID, wrapError(KindHandshake, err)
	}
	if buf[0] != byte(len(protocolString)) {
		return infoHash, peerID, newError(KindHandshake, "unexpected protocol length %d", buf[0])
	}
	if string(buf[1:1+len(protocolString)]) != protocolString {
		return infoHash, peerID, newError(KindHandshake, "unexpected protocol identifier")
	}
	off := 1 + len(protocolString) + 8
	copy(infoHash[:], buf[off:off+20])
	copy(peerID[:], buf[off+20:off+40])
	return infoHash, peerID, nil
}

// GenerateHandshake builds the 68-byte handshake this session would send
// to a peer, using the same layout ReadHandshake parses.
func GenerateHandshake(infoHash, peerID [20]byte) []byte {
	buf := make([]byte, handshakeLen)
	buf[0] = byte(len(protocolString))
	copy(buf[1:], protocolString)
	off := 1 + len(protocolString) + 8
	copy(buf[off:], infoHash[:])
	copy(buf[off+20:], peerID[:])
	return buf
}
