package refmap

import (
	"errors"
	"testing"

	"github.com/Voskan/refmap/internal/count"
	"github.com/Voskan/refmap/internal/structmap"
)

func newTestCounter() count.Counter { return count.NewIntCounter(0) }

func TestCountedMapDuplicateInsertRejected(t *testing.T) {
	m := newCountedMap[string, int](newHasher[string]().hash)
	ch, err := m.insertWith("dup", func() int { return 1 }, newTestCounter)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = m.insertWith("dup", func() int { return 2 }, newTestCounter)
	var dup *structmap.ErrDuplicateKey
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	m.put(ch)
}

func TestCountedMapInsertWithIsLazy(t *testing.T) {
	m := newCountedMap[string, int](newHasher[string]().hash)
	calls := 0
	ch, err := m.insertWith("k", func() int { calls++; return 7 }, newTestCounter)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	res := m.put(ch)
	if !res.removed || res.key != "k" || res.value != 7 {
		t.Fatalf("put = %+v", res)
	}
}

func TestCountedMapGetMintsTokenAndPutRemovesAtZero(t *testing.T) {
	m := newCountedMap[string, int](newHasher[string]().hash)
	ch1, err := m.insertWith("a", func() int { return 1 }, newTestCounter)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	ch2 := m.get(ch1)

	res1 := m.put(ch1)
	if res1.removed {
		t.Fatal("should not be removed with one token still outstanding")
	}
	if !m.ContainsKey("a") {
		t.Fatal("entry should remain live")
	}

	res2 := m.put(ch2)
	if !res2.removed || res2.key != "a" || res2.value != 1 {
		t.Fatalf("put(ch2) = %+v, want removed=true key=a value=1", res2)
	}
	if m.ContainsKey("a") {
		t.Fatal("entry should be gone after last token returned")
	}
}

func TestCountedMapFindMintsNewToken(t *testing.T) {
	m := newCountedMap[string, int](newHasher[string]().hash)
	ch1, _ := m.insertWith("a", func() int { return 1 }, newTestCounter)
	ch2, ok := m.find("a", newTestCounter)
	if !ok {
		t.Fatal("find should succeed")
	}

	m.put(ch1)
	if !m.ContainsKey("a") {
		t.Fatal("entry should remain live after releasing first token")
	}
	m.put(ch2)
	if m.ContainsKey("a") {
		t.Fatal("entry should be removed after releasing last token")
	}
}

func TestCountedMapValuePtrMutationPersists(t *testing.T) {
	m := newCountedMap[string, int](newHasher[string]().hash)
	ch, _ := m.insertWith("k", func() int { return 10 }, newTestCounter)
	*m.valuePtr(ch.handle) += 5
	if v := *m.valuePtr(ch.handle); v != 15 {
		t.Fatalf("value = %d, want 15", v)
	}
	m.put(ch)
}

func TestCountedMapIterRawRequiresPutAndKeepsEntriesLive(t *testing.T) {
	m := newCountedMap[string, int](newHasher[string]().hash)
	h1, _ := m.insertWith("a", func() int { return 1 }, newTestCounter)
	h2, _ := m.insertWith("b", func() int { return 2 }, newTestCounter)

	var raw []countedHandle
	m.iterRaw(func(ch countedHandle, k string, v *int) bool {
		raw = append(raw, ch)
		return true
	})

	m.put(h1)
	m.put(h2)
	if !m.ContainsKey("a") || !m.ContainsKey("b") {
		t.Fatal("entries must remain live while iterRaw handles are outstanding")
	}

	for _, ch := range raw {
		m.put(ch)
	}
	if m.ContainsKey("a") || m.ContainsKey("b") {
		t.Fatal("entries should be removed once raw handles are returned")
	}
}

func TestCountedMapPutOnDeadEntryPanics(t *testing.T) {
	m := newCountedMap[string, int](newHasher[string]().hash)
	ch, _ := m.insertWith("k", func() int { return 1 }, newTestCounter)
	m.put(ch)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic putting a handle for a removed entry")
		}
	}()
	m.put(ch)
}
