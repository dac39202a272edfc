package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage("https://cdn.example.com/photos/")
	ctx := context.Background()

	data := []byte("jpeg")
	u, err := s.Upload(ctx, "sku-1/0.jpg", "image/jpeg", data)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if u != "https://cdn.example.com/photos/sku-1%2F0.jpg" {
		t.Fatalf("Upload() url = %s", u)
	}

	data[0] = 'X'
	got, mediaType, err := s.Download(ctx, "sku-1/0.jpg")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(got) != "jpeg" || mediaType != "image/jpeg" {
		t.Fatalf("Download() = %q %q", got, mediaType)
	}

	key, ok := s.KeyFromURL(u)
	if !ok || key != "sku-1/0.jpg" {
		t.Fatalf("KeyFromURL() = %q, %v", key, ok)
	}
}

func TestMemoryStoragePresign(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage("")
	s.now = func() time.Time { return time.Unix(1000, 0) }
	ctx := context.Background()

	if _, err := s.Presign(ctx, "missing", time.Minute); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Presign() error = %v, want ErrObjectNotFound", err)
	}
	if _, err := s.Upload(ctx, "a.png", "image/png", []byte{1}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	u, err := s.Presign(ctx, "a.png", time.Minute)
	if err != nil {
		t.Fatalf("Presign() error = %v", err)
	}
	if !strings.HasSuffix(u, "?expires=1060") {
		t.Fatalf("Presign() = %s", u)
	}
	if key, ok := s.KeyFromURL(u); !ok || key != "a.png" {
		t.Fatalf("KeyFromURL(presigned) = %q, %v", key, ok)
	}
}

func TestMemoryStorageRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	s := NewMemoryStorage("")
	if _, err := s.Upload(context.Background(), " / ", "image/png", nil); err == nil {
		t.Fatal("Upload() with empty key must fail")
	}
}
