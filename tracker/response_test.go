package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kjanecek/bitforge/bencode"
)

func decodeFixture(t *testing.T, s string) bencode.Value {
	t.Helper()
	v, err := bencode.Decode([]byte(s))
	require.NoError(t, err)
	return v
}

func TestParseResponseCompactPeers(t *testing.T) {
	v := decodeFixture(t, "d8:intervali900e5:peers18:ABCDEFGHIJKLMNOPQRe")
	resp, err := parseResponse(v)
	require.NoError(t, err)
	require.Equal(t, int64(900), resp.Interval)
	require.Len(t, resp.Peers, 3)
	require.Empty(t, resp.Failure)
}

func TestParseResponseFailure(t *testing.T) {
	v := decodeFixture(t, "d14:failure reason14:torrent is bade")
	resp, err := parseResponse(v)
	require.NoError(t, err)
	require.Equal(t, "torrent is bad", resp.Failure)
}

func TestParseResponseWithCompleteIncomplete(t *testing.T) {
	v := decodeFixture(t, "d8:intervali900e5:peersle8:completei3e10:incompletei5ee")
	resp, err := parseResponse(v)
	require.NoError(t, err)
	require.Equal(t, int64(3), resp.Complete)
	require.Equal(t, int64(5), resp.Incomplete)
	require.Empty(t, resp.Peers)
}

func TestParseResponseDictPeers(t *testing.T) {
	v := decodeFixture(t, "d8:intervali900e5:peersld2:ip9:127.0.0.14:porti6881eeee")
	resp, err := parseResponse(v)
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:6881"}, resp.Peers)
}

func TestParseResponseNotDict(t *testing.T) {
	v := decodeFixture(t, "i5e")
	_, err := parseResponse(v)
	requireKind(t, err, KindMalformedResponse)
}

func TestParseResponseMissingInterval(t *testing.T) {
	v := decodeFixture(t, "d5:peers0:e")
	_, err := parseResponse(v)
	requireKind(t, err, KindMalformedResponse)
}

func TestParseCompactPeersOddLength(t *testing.T) {
	_, err := parseCompactPeers([]byte("12345"))
	requireKind(t, err, KindMalformedResponse)
}

func TestParseCompactPeersDecodesPortBigEndian(t *testing.T) {
	peers, err := parseCompactPeers([]byte{127, 0, 0, 1, 0x1A, 0xE1})
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:6881"}, peers)
}

func requireKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	te, ok := err.(*Error)
	require.True(t, ok, "expected *tracker.Error, got %T (%v)", err, err)
	require.Equal(t, want, te.Kind)
}
