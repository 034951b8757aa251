package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	info, err := s.Put(ctx, "projects/p/f/a.txt", strings.NewReader("hello"), 5, "text/plain")
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if info.Size != 5 {
		t.Fatalf("expected size 5, got %d", info.Size)
	}

	body, got, err := s.Get(ctx, "projects/p/f/a.txt")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "hello" || got.ContentType != "text/plain" {
		t.Fatalf("unexpected object %q %+v", data, got)
	}

	if err := s.Delete(ctx, "projects/p/f/a.txt"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Stat(ctx, "projects/p/f/a.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
}
