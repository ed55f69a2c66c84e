package bencode

import (
	"bytes"
	"io"
	"testing"
)

func TestDecodeInt(t *testing.T) {
	v, err := Decode([]byte("i42e"))
	if err != nil || v.Kind() != KindInt || v.Int() != 42 {
		t.Fatalf("got %v, %v", v, err)
	}
}

func TestDecodeString(t *testing.T) {
	v, err := Decode([]byte("4:test"))
	if err != nil || !bytes.Equal(v.Bytes(), []byte("test")) {
		t.Fatalf("got %v, %v", v, err)
	}
}

func TestDecodeList(t *testing.T) {
	v, err := Decode([]byte("li42e4:teste"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := NewList([]Value{NewInt(42), NewString("test")})
	if !v.Equal(want) {
		t.Errorf("got %v, want %v", v, want)
	}
}

func TestDecodeDict(t *testing.T) {
	v, err := Decode([]byte("d4:testi42ee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := v.DictGet("test")
	if !ok || got.Int() != 42 {
		t.Errorf("got %v, %v", got, ok)
	}
}

func TestDecodeNegativeZeroInvalid(t *testing.T) {
	_, err := Decode([]byte("i-0e"))
	assertKind(t, err, KindInvalidSyntax)
}

func TestDecodeLeadingZeroIntInvalid(t *testing.T) {
	_, err := Decode([]byte("i042e"))
	assertKind(t, err, KindInvalidSyntax)
}

func TestDecodeLeadingZeroStringInvalid(t *testing.T) {
	_, err := Decode([]byte("04:test"))
	assertKind(t, err, KindInvalidSyntax)
}

func TestDecodeUnfinishedIntIsUnexpectedEof(t *testing.T) {
	_, err := Decode([]byte("i42"))
	assertKind(t, err, KindUnexpectedEof)
}

func TestDecodeUnfinishedListIsUnexpectedEof(t *testing.T) {
	_, err := Decode([]byte("li42e4:test"))
	assertKind(t, err, KindUnexpectedEof)
}

func TestDecodeTrailingData(t *testing.T) {
	_, err := Decode([]byte("li42e4:teste3:cow"))
	assertKind(t, err, KindTrailingData)
}

func TestDecodePushToDictIntegerKey(t *testing.T) {
	_, err := Decode([]byte("di42e4:teste"))
	assertKind(t, err, KindPushToDict)
}

func TestDecodeOrphanedKey(t *testing.T) {
	_, err := Decode([]byte("d4:teste"))
	assertKind(t, err, KindOrphanedKey)
}

func TestDecodeEmptyInput(t *testing.T) {
	_, err := Decode([]byte{})
	assertKind(t, err, KindUnexpectedEof)
}

func TestDecodeNestedStructure(t *testing.T) {
	v, err := Decode([]byte("d4:listl1:a1:be4:name3:fooe"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, ok := v.DictGet("list")
	if !ok || len(list.List()) != 2 {
		t.Fatalf("expected a 2-element list, got %v, %v", list, ok)
	}
	name, ok := v.DictGet("name")
	if !ok || !bytes.Equal(name.Bytes(), []byte("foo")) {
		t.Fatalf("expected name=foo, got %v, %v", name, ok)
	}
}

// chunkedReader hands back input one byte at a time, exercising the
// StreamDecoder's refill path at the smallest possible granularity.
type chunkedReader struct {
	data []byte
	pos  int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:r.pos+1])
	r.pos += n
	return n, nil
}

func TestStreamDecodeMatchesWholeBufferDecodeUnderByteAtATimeChunking(t *testing.T) {
	inputs := [][]byte{
		[]byte("i42e"),
		[]byte("4:test"),
		[]byte("li42e4:teste"),
		[]byte("d4:listl1:a1:be4:name3:fooe"),
	}
	for _, in := range inputs {
		want, err := Decode(in)
		if err != nil {
			t.Fatalf("Decode(%q): %v", in, err)
		}
		sd := NewStreamDecoder(&chunkedReader{data: in})
		got, err := sd.Decode()
		if err != nil {
			t.Fatalf("StreamDecoder.Decode(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("StreamDecoder result %v != whole-buffer result %v for input %q", got, want, in)
		}
	}
}

func TestStreamDecodeTrailingDataRejected(t *testing.T) {
	sd := NewStreamDecoder(&chunkedReader{data: []byte("i1e3:cow")})
	_, err := sd.Decode()
	assertKind(t, err, KindTrailingData)
}

func TestStreamDecodeExhaustedSourceIsUnexpectedEof(t *testing.T) {
	sd := NewStreamDecoder(&chunkedReader{data: []byte("i42")})
	_, err := sd.Decode()
	assertKind(t, err, KindUnexpectedEof)
}
