package metainfo

import (
	"crypto/sha1"
	"unicode/utf8"

	"github.com/kjanecek/bitforge/bencode"
)

// Decode walks src token-by-token and reconstructs a Torrent, validating it
// against the required-key rules and computing its infohash from the exact
// byte range of the info dictionary. src must be the whole .torrent buffer;
// positions recorded during the walk are only meaningful against a buffer
// that is never refilled mid-parse.
func Decode(src []byte) (*Torrent, error) {
	b := &builder{tok: bencode.NewTokenizer(src), src: src}
	return b.build()
}

type builder struct {
	state BuilderState
	tok   *bencode.Tokenizer
	src   []byte

	torrent Torrent

	sawLength bool
	sawFiles  bool
	curFile   File
}

func (b *builder) next() (bencode.Token, error) {
	t, err := b.tok.NextToken()
	if err != nil {
		if be, ok := err.(*bencode.Error); ok {
			return bencode.Token{}, wrapError(KindDecode, be)
		}
		return bencode.Token{}, wrapError(KindDecode, err)
	}
	return t, nil
}

func (b *builder) build() (*Torrent, error) {
	for {
		switch b.state {
		case StateBegin:
			t, err := b.next()
			if err != nil {
				return nil, err
			}
			if t.Kind != bencode.TokenBeginDict {
				return nil, newError(KindMissingMetaInfoOpener, "metainfo file must open with a dictionary")
			}
			b.state = StateMetaInfo

		case StateMetaInfo:
			t, err := b.next()
			if err != nil {
				return nil, err
			}
			switch t.Kind {
			case bencode.TokenString:
				if err := b.handleMetaKey(string(t.Str)); err != nil {
					return nil, err
				}
			case bencode.TokenEndObject:
				b.state = StateFinished
			default:
				return nil, newError(KindExpectedKey, "state %s expected a key or end, got %s", b.state, t.Kind)
			}

		case StateInfo:
			t, err := b.next()
			if err != nil {
				return nil, err
			}
			switch t.Kind {
			case bencode.TokenString:
				if err := b.handleInfoKey(string(t.Str)); err != nil {
					return nil, err
				}
			case bencode.TokenEndObject:
				b.torrent.Info.endPos = t.Pos
				if err := b.finalizeInfoHash(); err != nil {
					return nil, err
				}
				b.state = StateMetaInfo
			default:
				return nil, newError(KindExpectedKey, "state %s expected a key or end, got %s", b.state, t.Kind)
			}

		case StateFiles:
			t, err := b.next()
			if err != nil {
				return nil, err
			}
			switch t.Kind {
			case bencode.TokenBeginDict:
				b.curFile = File{}
				b.state = StateSingularFile
			case bencode.TokenEndObject:
				b.state = StateInfo
			default:
				return nil, newError(KindExpectedKey, "state %s expected a file dict or end, got %s", b.state, t.Kind)
			}

		case StateSingularFile:
			t, err := b.next()
			if err != nil {
				return nil, err
			}
			switch t.Kind {
			case bencode.TokenString:
				if err := b.handleFileKey(string(t.Str)); err != nil {
					return nil, err
				}
			case bencode.TokenEndObject:
				b.torrent.Info.Files = append(b.torrent.Info.Files, b.curFile)
				b.state = StateFiles
			default:
				return nil, newError(KindExpectedKey, "state %s expected a key or end, got %s", b.state, t.Kind)
			}

		case StateSingularFilePath:
			t, err := b.next()
			if err != nil {
				return nil, err
			}
			switch t.Kind {
			case bencode.TokenString:
				b.curFile.Path = append(b.curFile.Path, string(t.Str))
			case bencode.TokenEndObject:
				b.state = StateSingularFile
			default:
				return nil, newError(KindExpectedKey, "state %s expected a path segment or end, got %s", b.state, t.Kind)
			}

		case StateFinished:
			if err := b.validate(); err != nil {
				return nil, err
			}
			return &b.torrent, nil
		}
	}
}

func (b *builder) handleMetaKey(key string) error {
	switch key {
	case "announce":
		s, err := b.expectUTF8String("announce")
		if err != nil {
			return err
		}
		b.torrent.Announce = s
		return nil

	case "announce-list":
		return b.handleAnnounceList()

	case "comment":
		s, ok, err := b.expectOptionalUTF8String()
		if err != nil {
			return err
		}
		if ok {
			b.torrent.Comment = s
		}
		return nil

	case "created by":
		s, ok, err := b.expectOptionalUTF8String()
		if err != nil {
			return err
		}
		if ok {
			b.torrent.CreatedBy = s
		}
		return nil

	case "encoding":
		s, ok, err := b.expectOptionalUTF8String()
		if err != nil {
			return err
		}
		if ok {
			b.torrent.Encoding = s
		}
		return nil

	case "creation date":
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind == bencode.TokenInt {
			b.torrent.CreationDate = t.Int
			return nil
		}
		return b.skipValueFrom(t)

	case "info":
		b.state = StateInfo
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind != bencode.TokenBeginDict {
			return newError(KindUnexpectedTypeForKey, "key %q expected a dictionary, got %s", "info", t.Kind)
		}
		b.torrent.Info.beginPos = t.Pos
		return nil

	default:
		return b.skipValue()
	}
}

// handleAnnounceList parses a list of lists of tracker URLs. Malformed
// entries (non-list tiers, non-string URLs) are dropped rather than
// treated as fatal, matching the teacher's tolerant parseAnnounceList.
func (b *builder) handleAnnounceList() error {
	t, err := b.next()
	if err != nil {
		return err
	}
	if t.Kind != bencode.TokenBeginList {
		return b.skipValueFrom(t)
	}
	var tiers [][]string
	for {
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind == bencode.TokenEndObject {
			break
		}
		if t.Kind != bencode.TokenBeginList {
			if err := b.skipValueFrom(t); err != nil {
				return err
			}
			continue
		}
		var tier []string
		for {
			inner, err := b.next()
			if err != nil {
				return err
			}
			if inner.Kind == bencode.TokenEndObject {
				break
			}
			if inner.Kind == bencode.TokenString {
				tier = append(tier, string(inner.Str))
			} else if err := b.skipValueFrom(inner); err != nil {
				return err
			}
		}
		if len(tier) > 0 {
			tiers = append(tiers, tier)
		}
	}
	if len(tiers) > 0 {
		b.torrent.AnnounceList = tiers
	}
	return nil
}

func (b *builder) handleInfoKey(key string) error {
	switch key {
	case "name":
		s, err := b.expectUTF8String("name")
		if err != nil {
			return err
		}
		b.torrent.Info.Name = s
		return nil

	case "piece length":
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind != bencode.TokenInt {
			return newError(KindUnexpectedTypeForKey, "key %q expected an int, got %s", "piece length", t.Kind)
		}
		b.torrent.Info.PieceLength = t.Int
		return nil

	case "pieces":
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind != bencode.TokenString {
			return newError(KindUnexpectedTypeForKey, "key %q expected a byte string, got %s", "pieces", t.Kind)
		}
		b.torrent.Info.Pieces = append([]byte(nil), t.Str...)
		return nil

	case "length":
		if b.sawFiles {
			return newError(KindMutualExclusiveKeys, "'length' seen after 'files'")
		}
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind != bencode.TokenInt {
			return newError(KindUnexpectedTypeForKey, "key %q expected an int, got %s", "length", t.Kind)
		}
		b.torrent.Info.Length = t.Int
		b.sawLength = true
		return nil

	case "files":
		if b.sawLength {
			return newError(KindMutualExclusiveKeys, "'files' seen after 'length'")
		}
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind != bencode.TokenBeginList {
			return newError(KindUnexpectedTypeForKey, "key %q expected a list, got %s", "files", t.Kind)
		}
		b.sawFiles = true
		b.state = StateFiles
		return nil

	default:
		return b.skipValue()
	}
}

func (b *builder) handleFileKey(key string) error {
	switch key {
	case "length":
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind != bencode.TokenInt {
			return newError(KindUnexpectedTypeForKey, "key %q expected an int, got %s", "files.length", t.Kind)
		}
		b.curFile.Length = t.Int
		return nil

	case "path":
		t, err := b.next()
		if err != nil {
			return err
		}
		if t.Kind != bencode.TokenBeginList {
			return newError(KindUnexpectedTypeForKey, "key %q expected a list, got %s", "files.path", t.Kind)
		}
		b.state = StateSingularFilePath
		return nil

	default:
		return b.skipValue()
	}
}

func (b *builder) expectUTF8String(key string) (string, error) {
	t, err := b.next()
	if err != nil {
		return "", err
	}
	if t.Kind != bencode.TokenString {
		return "", newError(KindUnexpectedTypeForKey, "key %q expected a byte string, got %s", key, t.Kind)
	}
	if !utf8.Valid(t.Str) {
		return "", newError(KindUtf8, "key %q is not valid UTF-8", key)
	}
	return string(t.Str), nil
}

// expectOptionalUTF8String reads the next token; if it's a valid UTF-8
// string it's returned with ok=true, otherwise it is skipped and ok=false
// — these keys are optional and mistyped values are tolerated, not fatal.
func (b *builder) expectOptionalUTF8String() (string, bool, error) {
	t, err := b.next()
	if err != nil {
		return "", false, err
	}
	if t.Kind == bencode.TokenString && utf8.Valid(t.Str) {
		return string(t.Str), true, nil
	}
	return "", false, b.skipValueFrom(t)
}

// skipValue reads and discards one complete value — used for unknown keys.
func (b *builder) skipValue() error {
	t, err := b.next()
	if err != nil {
		return err
	}
	return b.skipValueFrom(t)
}

// skipValueFrom discards the value starting with an already-read token t.
func (b *builder) skipValueFrom(t bencode.Token) error {
	switch t.Kind {
	case bencode.TokenInt, bencode.TokenString:
		return nil
	case bencode.TokenEndObject:
		return newError(KindUnexpectedObjectClosure, "unexpected object closure while skipping a value")
	case bencode.TokenBeginList, bencode.TokenBeginDict:
		depth := 1
		for depth != 0 {
			next, err := b.next()
			if err != nil {
				return err
			}
			switch next.Kind {
			case bencode.TokenBeginList, bencode.TokenBeginDict:
				depth++
			case bencode.TokenEndObject:
				depth--
			}
		}
		return nil
	default:
		return nil
	}
}

func (b *builder) finalizeInfoHash() error {
	begin, end := b.torrent.Info.beginPos, b.torrent.Info.endPos
	if begin < 0 || end < begin || end >= len(b.src) {
		return newError(KindUnexpectedTypeForKey, "info dictionary byte range is invalid")
	}
	sum := sha1.Sum(b.src[begin : end+1])
	b.torrent.InfoHash = sum
	return nil
}

func (b *builder) validate() error {
	if b.torrent.Announce == "" {
		return newError(KindMissingRequiredKey, "state %s missing key %q", StateMetaInfo, "announce")
	}
	if b.torrent.Info.Name == "" {
		return newError(KindMissingRequiredKey, "state %s missing key %q", StateInfo, "name")
	}
	if b.torrent.Info.PieceLength <= 0 {
		return newError(KindMissingRequiredKey, "state %s missing key %q", StateInfo, "piece length")
	}
	if len(b.torrent.Info.Pieces) == 0 {
		return newError(KindMissingRequiredKey, "state %s missing key %q", StateInfo, "pieces")
	}
	if len(b.torrent.Info.Pieces)%20 != 0 {
		e := newError(KindInvalidPiecesLength, "pieces length %d is not a multiple of 20", len(b.torrent.Info.Pieces))
		e.N = len(b.torrent.Info.Pieces)
		return e
	}
	if !b.sawLength && !b.sawFiles {
		return newError(KindMissingRequiredKey, "state %s missing one of %q/%q", StateInfo, "length", "files")
	}
	if b.sawLength && b.sawFiles {
		return newError(KindMutualExclusiveKeys, "both 'length' and 'files' were set")
	}
	return nil
}
