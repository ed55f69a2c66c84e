package bencode

// Decode parses exactly one bencode value from the whole of src and fails
// if any bytes remain afterward. This is the whole-buffer entry point used
// by the metainfo state machine, which needs meaningful byte positions
// into a buffer that is guaranteed not to be refilled mid-parse.
func Decode(src []byte) (Value, error) {
	if len(src) == 0 {
		return Value{}, newError(KindUnexpectedEof, 0, "empty input")
	}
	tok := NewTokenizer(src)
	stack := NewStack()
	for {
		t, err := tok.NextToken()
		if err != nil {
			if e, ok := err.(*Error); ok && isIncomplete(e.Kind) {
				return Value{}, newError(KindUnexpectedEof, tok.Pos(), "unexpected end of input")
			}
			return Value{}, err
		}
		root, done, err := feed(stack, t)
		if err != nil {
			return Value{}, err
		}
		if done {
			if tok.Len() > 0 {
				return Value{}, newError(KindTrailingData, tok.Pos(), "trailing data after decoded value")
			}
			return root, nil
		}
	}
}

// feed applies one token to the stack, returning the completed root when
// the stack empties out.
func feed(stack *Stack, t Token) (Value, bool, error) {
	switch t.Kind {
	case TokenInt:
		return stack.PushValue(NewInt(t.Int))
	case TokenString:
		return stack.PushValue(NewBytes(t.Str))
	case TokenBeginList:
		stack.PushList()
		return Value{}, false, nil
	case TokenBeginDict:
		stack.PushDict()
		return Value{}, false, nil
	case TokenEndObject:
		return stack.PopContainer()
	default:
		return Value{}, false, newError(KindInvalidSyntax, t.Pos, "unrecognized token kind")
	}
}

func isIncomplete(k ErrorKind) bool {
	switch k {
	case KindUnfinishedInt, KindUnfinishedString, KindMissingColonInString, KindPosOutOfBounds:
		return true
	default:
		return false
	}
}
