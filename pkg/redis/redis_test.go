package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewClientPings(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr(), PoolSize: 2})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Fatalf("stored value = %q, want v", got)
	}
}

func TestNewClientRejectsUnreachableAddr(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewClient(context.Background(), Config{Addr: addr}); err == nil {
		t.Fatal("NewClient() error = nil, want ping failure")
	}
	if _, err := NewClient(context.Background(), Config{Addr: " "}); err == nil {
		t.Fatal("NewClient() error = nil, want missing addr")
	}
}
