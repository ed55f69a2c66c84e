package bencode

import "testing"

func TestStackPushValueRoot(t *testing.T) {
	s := NewStack()
	v, done, err := s.PushValue(NewInt(7))
	if err != nil || !done || v.Int() != 7 {
		t.Fatalf("got %v, %v, %v", v, done, err)
	}
}

func TestStackListAssembly(t *testing.T) {
	s := NewStack()
	s.PushList()
	if _, done, err := s.PushValue(NewInt(1)); err != nil || done {
		t.Fatalf("unexpected: %v, %v", done, err)
	}
	if _, done, err := s.PushValue(NewString("a")); err != nil || done {
		t.Fatalf("unexpected: %v, %v", done, err)
	}
	v, done, err := s.PopContainer()
	if err != nil || !done {
		t.Fatalf("pop: %v, %v, %v", v, done, err)
	}
	want := NewList([]Value{NewInt(1), NewString("a")})
	if !v.Equal(want) {
		t.Errorf("got %v, want %v", v, want)
	}
}

func TestStackDictAssembly(t *testing.T) {
	s := NewStack()
	s.PushDict()
	if _, _, err := s.PushValue(NewString("key")); err != nil {
		t.Fatalf("push key: %v", err)
	}
	if _, _, err := s.PushValue(NewInt(42)); err != nil {
		t.Fatalf("push value: %v", err)
	}
	v, done, err := s.PopContainer()
	if err != nil || !done {
		t.Fatalf("pop: %v, %v, %v", v, done, err)
	}
	got, ok := v.DictGet("key")
	if !ok || got.Int() != 42 {
		t.Errorf("expected key->42, got %v, %v", got, ok)
	}
}

func TestStackPushToDictNonStringKey(t *testing.T) {
	s := NewStack()
	s.PushDict()
	_, _, err := s.PushValue(NewInt(1))
	assertKind(t, err, KindPushToDict)
}

func TestStackOrphanedKey(t *testing.T) {
	s := NewStack()
	s.PushDict()
	if _, _, err := s.PushValue(NewString("key")); err != nil {
		t.Fatalf("push key: %v", err)
	}
	_, _, err := s.PopContainer()
	assertKind(t, err, KindOrphanedKey)
}

func TestStackDuplicateKey(t *testing.T) {
	s := NewStack()
	s.PushDict()
	s.PushValue(NewString("key"))
	s.PushValue(NewInt(1))
	s.PushValue(NewString("key"))
	s.PushValue(NewInt(2))
	_, _, err := s.PopContainer()
	assertKind(t, err, KindDuplicateKey)
}

func TestStackNestedContainers(t *testing.T) {
	s := NewStack()
	s.PushList()
	s.PushDict()
	s.PushValue(NewString("a"))
	s.PushValue(NewInt(1))
	if _, done, err := s.PopContainer(); err != nil || done {
		t.Fatalf("inner pop: %v, %v", done, err)
	}
	v, done, err := s.PopContainer()
	if err != nil || !done {
		t.Fatalf("outer pop: %v, %v, %v", v, done, err)
	}
	if v.Kind() != KindList || len(v.List()) != 1 {
		t.Errorf("expected a one-element list, got %v", v)
	}
}
