package bencode

// Stack assembles a sequence of primitive values and container boundaries
// into a single nested Value. It holds a vector of in-progress containers;
// a finished child is moved into its parent on pop, so no container ever
// observes an ancestor and no back-references exist.
type Stack struct {
	containers []container
}

// NewStack returns an empty assembly stack.
func NewStack() *Stack {
	return &Stack{}
}

// PushValue either completes the root value (stack empty, returns it) or
// inserts v into the top container. Inserting into a dict with no pending
// key requires v to be Bytes (it becomes the pending key); with a pending
// key, v is stored as that key's value.
func (s *Stack) PushValue(v Value) (Value, bool, error) {
	if len(s.containers) == 0 {
		return v, true, nil
	}
	top := &s.containers[len(s.containers)-1]
	if err := top.insert(v); err != nil {
		return Value{}, false, err
	}
	return Value{}, false, nil
}

// PushList opens a new list container on top of the stack.
func (s *Stack) PushList() {
	s.containers = append(s.containers, newListContainer())
}

// PushDict opens a new dict container on top of the stack.
func (s *Stack) PushDict() {
	s.containers = append(s.containers, newDictContainer())
}

// PopContainer finalizes the top container (failing if a dict has an
// orphaned pending key), then feeds the finalized value back through
// PushValue — returning a completed root if the stack is now empty.
func (s *Stack) PopContainer() (Value, bool, error) {
	if len(s.containers) == 0 {
		return Value{}, false, newError(KindOrphanedKey, -1, "pop with empty stack")
	}
	top := s.containers[len(s.containers)-1]
	s.containers = s.containers[:len(s.containers)-1]
	v, err := top.finish()
	if err != nil {
		return Value{}, false, err
	}
	return s.PushValue(v)
}

// Depth reports how many containers are currently open.
func (s *Stack) Depth() int { return len(s.containers) }

// container is either a growing list or a dict-builder with an optional
// pending key.
type container struct {
	isDict     bool
	list       []Value
	dictKeys   [][]byte
	dictVals   []Value
	pendingKey []byte
	hasPending bool
}

func newListContainer() container {
	return container{}
}

func newDictContainer() container {
	return container{isDict: true}
}

func (c *container) insert(v Value) error {
	if !c.isDict {
		c.list = append(c.list, v)
		return nil
	}
	if !c.hasPending {
		if v.Kind() != KindBytes {
			return newError(KindPushToDict, -1, "dictionary key must be a byte string, got %s", v)
		}
		c.pendingKey = v.Bytes()
		c.hasPending = true
		return nil
	}
	c.dictKeys = append(c.dictKeys, c.pendingKey)
	c.dictVals = append(c.dictVals, v)
	c.hasPending = false
	c.pendingKey = nil
	return nil
}

func (c container) finish() (Value, error) {
	if c.isDict {
		if c.hasPending {
			return Value{}, newError(KindOrphanedKey, -1, "dictionary finalized with pending key %q", c.pendingKey)
		}
		keys := make([]string, len(c.dictKeys))
		seen := make(map[string]struct{}, len(c.dictKeys))
		for i, k := range c.dictKeys {
			keys[i] = string(k)
			if _, dup := seen[keys[i]]; dup {
				return Value{}, newError(KindDuplicateKey, -1, "duplicate key %q", keys[i])
			}
			seen[keys[i]] = struct{}{}
		}
		return NewDictFromPairs(keys, c.dictVals), nil
	}
	return NewList(c.list), nil
}
