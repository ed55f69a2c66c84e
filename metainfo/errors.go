package metainfo

import "fmt"

// BuilderState names a state of the metainfo builder's state machine, used
// in error messages when a token stream violates the expected shape.
type BuilderState int

const (
	StateBegin BuilderState = iota
	StateMetaInfo
	StateInfo
	StateFiles
	StateSingularFile
	StateSingularFilePath
	StateFinished
)

func (s BuilderState) String() string {
	switch s {
	case StateBegin:
		return "Begin"
	case StateMetaInfo:
		return "MetaInfo"
	case StateInfo:
		return "Info"
	case StateFiles:
		return "Files"
	case StateSingularFile:
		return "SingularFile"
	case StateSingularFilePath:
		return "SingularFilePath"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// ErrorKind identifies the category of a metainfo error, independent of any
// wrapped cause or message — mirrors the bencode package's kind-only
// equality semantics.
type ErrorKind int

const (
	// KindDecode wraps an underlying bencode tokenizer error.
	KindDecode ErrorKind = iota
	// KindMissingMetaInfoOpener means the stream didn't open with a dict.
	KindMissingMetaInfoOpener
	// KindExpectedKey means a state expected a String key or EndObject and
	// got something else.
	KindExpectedKey
	// KindMutualExclusiveKeys means both 'length' and 'files' were present.
	KindMutualExclusiveKeys
	// KindUnexpectedTypeForKey means a known key's value had the wrong
	// token kind.
	KindUnexpectedTypeForKey
	// KindUnexpectedObjectClosure means skipValueFrom saw EndObject before any
	// opener, i.e. malformed nesting.
	KindUnexpectedObjectClosure
	// KindUtf8 means a key expecting UTF-8 text held invalid bytes.
	KindUtf8
	// KindMissingRequiredKey means final validation found a required field
	// unset.
	KindMissingRequiredKey
	// KindInvalidPiecesLength means 'pieces' length isn't a multiple of 20.
	KindInvalidPiecesLength
)

func (k ErrorKind) String() string {
	switch k {
	case KindDecode:
		return "decode error"
	case KindMissingMetaInfoOpener:
		return "missing meta info opener"
	case KindExpectedKey:
		return "expected key"
	case KindMutualExclusiveKeys:
		return "'files' and 'length' keys are mutually exclusive"
	case KindUnexpectedTypeForKey:
		return "unexpected type for key"
	case KindUnexpectedObjectClosure:
		return "unexpected object closure"
	case KindUtf8:
		return "invalid utf-8"
	case KindMissingRequiredKey:
		return "missing required key"
	case KindInvalidPiecesLength:
		return "invalid pieces length"
	default:
		return "unknown metainfo error"
	}
}

// Error is the error type returned by this package. Is compares by Kind
// alone, matching the bencode package's kind-only equality contract.
type Error struct {
	Kind ErrorKind

	N int // KindInvalidPiecesLength: the offending length

	msg string
	err error
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, err: err, msg: err.Error()}
}

func (e *Error) Error() string {
	return fmt.Sprintf("metainfo: %s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
