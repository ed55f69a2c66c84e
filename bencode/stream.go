package bencode

import "io"

// ByteSource is the minimal refillable input the streaming Decoder needs:
// anything that can produce more bytes on demand. *bufio.Reader,
// *bytes.Reader, a net.Conn, etc. all satisfy it through io.Reader.
type ByteSource interface {
	Read(p []byte) (int, error)
}

const defaultBufferCapacity = 4096

// StreamDecoder drives the tokenizer and structural stack against a
// ByteSource, refilling its internal buffer whenever a token is
// incomplete. Unlike Decode, it cannot guarantee its buffer is stable
// across refills (a grow may reallocate), so every String token it
// produces is copied into an owned Value rather than borrowed.
type StreamDecoder struct {
	src ByteSource
	buf []byte
	pos int // bytes in buf[:pos] have already been consumed by the tokenizer
}

// NewStreamDecoder creates a decoder reading from src with the default
// initial buffer capacity (4096 bytes, per spec).
func NewStreamDecoder(src ByteSource) *StreamDecoder {
	return NewStreamDecoderSize(src, defaultBufferCapacity)
}

// NewStreamDecoderSize is like NewStreamDecoder but with an explicit
// initial buffer capacity.
func NewStreamDecoderSize(src ByteSource, capacity int) *StreamDecoder {
	return &StreamDecoder{src: src, buf: make([]byte, 0, capacity)}
}

// Decode reads exactly one bencode value, refilling from the byte source
// as needed, and fails if unconsumed bytes remain in the buffer once the
// root value completes.
func (d *StreamDecoder) Decode() (Value, error) {
	stack := NewStack()
	for {
		unread := d.buf[d.pos:]
		tok := NewTokenizer(unread)
		t, n, err := tok.PeekToken()
		if err != nil {
			if e, ok := err.(*Error); ok && isIncomplete(e.Kind) {
				grew, rerr := d.refill()
				if rerr != nil {
					return Value{}, rerr
				}
				if !grew {
					return Value{}, newError(KindUnexpectedEof, d.pos, "byte source exhausted mid-value")
				}
				continue
			}
			return Value{}, err
		}
		d.pos += n
		root, done, ferr := feed(stack, t)
		if ferr != nil {
			return Value{}, ferr
		}
		if done {
			if d.pos < len(d.buf) {
				return Value{}, newError(KindTrailingData, d.pos, "trailing data in buffer")
			}
			return copyOwned(root), nil
		}
	}
}

// refill asks the source for however many bytes are available right now
// and appends them to the internal buffer. It reports whether any bytes
// were added; zero bytes with no error means the source is exhausted.
func (d *StreamDecoder) refill() (bool, error) {
	chunk := make([]byte, 4096)
	n, err := d.src.Read(chunk)
	if n > 0 {
		d.buf = append(d.buf, chunk[:n]...)
	}
	if err != nil {
		if err == io.EOF {
			return n > 0, nil
		}
		return false, wrapError(KindIO, err)
	}
	return n > 0, nil
}

// copyOwned deep-copies every Bytes leaf so the returned Value does not
// alias the decoder's internal buffer, which may be reallocated or reused
// by a later Decode call.
func copyOwned(v Value) Value {
	switch v.Kind() {
	case KindBytes:
		return NewBytes(v.Bytes())
	case KindList:
		elems := v.List()
		out := make([]Value, len(elems))
		for i, e := range elems {
			out[i] = copyOwned(e)
		}
		return NewList(out)
	case KindDict:
		n := v.DictLen()
		keys := make([]string, 0, n)
		vals := make([]Value, 0, n)
		for _, p := range dictPairs(v) {
			keys = append(keys, string(p.Key))
			vals = append(vals, copyOwned(p.Val))
		}
		return NewDictFromPairs(keys, vals)
	default:
		return v
	}
}

func dictPairs(v Value) []pair {
	return v.dict
}
