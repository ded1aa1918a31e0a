package asset

import (
	"bytes"
	"testing"
)

func TestComputeDeterministic(t *testing.T) {
	data := []byte("the same bytes")

	if Compute(data) != Compute(data) {
		t.Error("Compute() not deterministic for identical input")
	}
	if Compute(data) == Compute([]byte("different bytes")) {
		t.Error("Compute() collided for different input")
	}
}

func TestParseID(t *testing.T) {
	id := Compute([]byte("payload"))

	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseID(%q) = %v, want %v", id.String(), parsed, id)
	}

	bad := []string{"", "xyz", "deadbeef", id.String() + "00"}
	for _, s := range bad {
		if _, err := ParseID(s); err == nil {
			t.Errorf("ParseID(%q) expected error, got nil", s)
		}
	}
}

func TestIsZero(t *testing.T) {
	var zero ID
	if !zero.IsZero() {
		t.Error("zero ID reported not zero")
	}
	if Compute([]byte("x")).IsZero() {
		t.Error("computed ID reported zero")
	}
}

func TestStorePutGet(t *testing.T) {
	s := NewStore()
	data := []byte("map background")

	id := s.Put(data, "bg.png")
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	a, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if a.Name != "bg.png" {
		t.Errorf("Name = %q, want %q", a.Name, "bg.png")
	}
	if !bytes.Equal(a.Bytes, data) {
		t.Error("Get() returned different bytes")
	}
}

func TestStoreDedup(t *testing.T) {
	s := NewStore()
	data := []byte("shared texture")

	id1 := s.Put(data, "first.png")
	id2 := s.Put(data, "second.png")

	if id1 != id2 {
		t.Errorf("Put() same bytes produced different IDs: %v vs %v", id1, id2)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after duplicate Put", s.Len())
	}

	// First writer wins; the duplicate must not overwrite the name.
	a, _ := s.Get(id1)
	if a.Name != "first.png" {
		t.Errorf("Name = %q, want %q", a.Name, "first.png")
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(Compute([]byte("absent"))); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStoreRemove(t *testing.T) {
	s := NewStore()
	id := s.Put([]byte("transient"), "tmp")

	s.Remove(id)
	if s.Contains(id) {
		t.Error("Contains() true after Remove")
	}
}

func TestDiskCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cache, err := NewDiskCache(dir)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}

	a := New([]byte("persisted bytes"), "dungeon.png")
	if err := cache.Store(a); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	data, name, err := cache.Load(a.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if name != a.Name {
		t.Errorf("name = %q, want %q", name, a.Name)
	}
	if !bytes.Equal(data, a.Bytes) {
		t.Error("Load() returned different bytes")
	}
}

func TestDiskCacheMiss(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}

	if _, _, err := cache.Load(Compute([]byte("never stored"))); err == nil {
		t.Error("Load() expected error for missing asset, got nil")
	}
}

func TestStoreWithCacheFallback(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewDiskCache(dir)
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}

	// First store writes through to disk.
	s1 := NewStoreWithCache(cache)
	data := []byte("survives restarts")
	id := s1.Put(data, "keep.png")

	// A fresh store over the same cache finds the asset on miss.
	s2 := NewStoreWithCache(cache)
	if s2.Contains(id) {
		t.Fatal("fresh store should not hold the asset in memory yet")
	}
	a, err := s2.Get(id)
	if err != nil {
		t.Fatalf("Get() via cache error = %v", err)
	}
	if !bytes.Equal(a.Bytes, data) {
		t.Error("cache round trip returned different bytes")
	}
	if !s2.Contains(id) {
		t.Error("asset not promoted to memory after cache hit")
	}
}
