package bencode

import "bytes"

// ValueKind tags the sum type Value.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindBytes
	KindList
	KindDict
)

// pair is one dictionary entry. Dicts are stored as a pair list in
// insertion order rather than a map; the pairs are never sorted, and
// Equal compares dicts without regard to that order.
type pair struct {
	Key []byte
	Val Value
}

// Value is the tagged sum every bencode stream can produce: Int, Bytes,
// List or Dict. The zero Value is an Int(0).
type Value struct {
	kind  ValueKind
	i     int64
	bytes []byte
	list  []Value
	dict  []pair
}

// NewInt builds an Int value.
func NewInt(i int64) Value { return Value{kind: KindInt, i: i} }

// NewBytes builds a Bytes value, copying b so the Value does not alias the
// caller's slice.
func NewBytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytes: cp}
}

// NewString builds a Bytes value from a UTF-8 string.
func NewString(s string) Value {
	return NewBytes([]byte(s))
}

// NewList builds a List value from its elements.
func NewList(vs []Value) Value {
	return Value{kind: KindList, list: vs}
}

// NewDictFromPairs builds a Dict value from (string-key, Value) pairs.
// Duplicate keys are rejected: this constructor is for already-validated
// input, so a duplicate indicates programmer error and panics.
func NewDictFromPairs(keys []string, vals []Value) Value {
	if len(keys) != len(vals) {
		panic("bencode: mismatched key/value slice lengths")
	}
	d := Value{kind: KindDict}
	seen := make(map[string]struct{}, len(keys))
	for i, k := range keys {
		if _, dup := seen[k]; dup {
			panic("bencode: duplicate dictionary key " + k)
		}
		seen[k] = struct{}{}
		d.dict = append(d.dict, pair{Key: []byte(k), Val: vals[i]})
	}
	return d
}

// Kind reports the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

// Int returns the underlying integer; valid only when Kind() == KindInt.
func (v Value) Int() int64 { return v.i }

// Bytes returns the underlying byte sequence; valid only when
// Kind() == KindBytes. The returned slice must not be mutated.
func (v Value) Bytes() []byte { return v.bytes }

// List returns the underlying element slice; valid only when
// Kind() == KindList.
func (v Value) List() []Value { return v.list }

// DictGet looks up key in a Dict value with a linear scan over its pairs
// (dictionaries in practice are small). The bool reports presence.
func (v Value) DictGet(key string) (Value, bool) {
	kb := []byte(key)
	for _, p := range v.dict {
		if bytes.Equal(p.Key, kb) {
			return p.Val, true
		}
	}
	return Value{}, false
}

// DictLen reports the number of entries in a Dict value.
func (v Value) DictLen() int { return len(v.dict) }

// String renders a short type tag, never the content, matching the
// original's terse Display impl.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return "int"
	case KindBytes:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dictionary"
	default:
		return "unknown"
	}
}

// Equal reports structural equality: Int/Bytes compare by value, List
// compares element-wise in order, and Dict compares as a canonicalized
// key-value multiset (insertion order is irrelevant).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == other.i
	case KindBytes:
		return bytes.Equal(v.bytes, other.bytes)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.dict) != len(other.dict) {
			return false
		}
		for _, p := range v.dict {
			ov, ok := other.DictGet(string(p.Key))
			if !ok || !p.Val.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
