package tracker

import (
	"encoding/binary"
	"net"
	"strconv"

	"github.com/kjanecek/bitforge/bencode"
)

// Response is the outcome of one tracker announce: either Interval/Peers
// on success, or Failure on a tracker-reported failure.
type Response struct {
	Interval   int64
	Peers      []string // "host:port" addresses
	Complete   int64
	Incomplete int64
	Failure    string
}

// parseResponse walks a decoded tracker response dict, grounded on the
// teacher's prettyTrackerBencode: a failure reason short-circuits
// everything else, otherwise interval and peers are required.
func parseResponse(v bencode.Value) (*Response, error) {
	if v.Kind() != bencode.KindDict {
		return nil, newError(KindMalformedResponse, "tracker response is not a dictionary")
	}

	if failure, ok := v.DictGet("failure reason"); ok {
		return &Response{Failure: string(failure.Bytes())}, nil
	}

	intervalVal, ok := v.DictGet("interval")
	if !ok || intervalVal.Kind() != bencode.KindInt {
		return nil, newError(KindMalformedResponse, "tracker response missing interval")
	}

	peersVal, ok := v.DictGet("peers")
	if !ok {
		return nil, newError(KindMalformedResponse, "tracker response missing peers")
	}

	var peers []string
	switch peersVal.Kind() {
	case bencode.KindBytes:
		var err error
		peers, err = parseCompactPeers(peersVal.Bytes())
		if err != nil {
			return nil, err
		}
	case bencode.KindList:
		peers = parseDictPeers(peersVal.List())
	default:
		return nil, newError(KindMalformedResponse, "peers is neither a byte string nor a list")
	}

	resp := &Response{Interval: intervalVal.Int(), Peers: peers}
	if c, ok := v.DictGet("complete"); ok && c.Kind() == bencode.KindInt {
		resp.Complete = c.Int()
	}
	if ic, ok := v.DictGet("incomplete"); ok && ic.Kind() == bencode.KindInt {
		resp.Incomplete = ic.Int()
	}
	return resp, nil
}

// parseCompactPeers decodes BEP 23 compact peer format: 4-byte IPv4
// address + 2-byte big-endian port, repeated.
func parseCompactPeers(b []byte) ([]string, error) {
	const peerSize = 6
	if len(b)%peerSize != 0 {
		return nil, newError(KindMalformedResponse, "compact peers length %d not divisible by %d", len(b), peerSize)
	}
	peers := make([]string, 0, len(b)/peerSize)
	for i := 0; i < len(b); i += peerSize {
		ip := net.IP(b[i : i+4])
		port := binary.BigEndian.Uint16(b[i+4 : i+peerSize])
		peers = append(peers, net.JoinHostPort(ip.String(), strconv.Itoa(int(port))))
	}
	return peers, nil
}

// parseDictPeers decodes the non-compact peer list form: a list of dicts
// each carrying "ip" and "port". Entries missing either key are skipped.
func parseDictPeers(list []bencode.Value) []string {
	var peers []string
	for _, p := range list {
		ip, ok := p.DictGet("ip")
		if !ok {
			continue
		}
		port, ok := p.DictGet("port")
		if !ok {
			continue
		}
		peers = append(peers, net.JoinHostPort(string(ip.Bytes()), strconv.FormatInt(port.Int(), 10)))
	}
	return peers
}
