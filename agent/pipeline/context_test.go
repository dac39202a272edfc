package pipeline

import (
	"errors"
	"testing"
	"time"
)

func TestContextWriteOnce(t *testing.T) {
	t.Parallel()

	pc := NewContext()
	if err := pc.publish("vision", "draft"); err != nil {
		t.Fatalf("publish() error = %v", err)
	}
	if err := pc.publish("vision", "other"); !errors.Is(err, ErrKeyWritten) {
		t.Fatalf("second publish() error = %v, want ErrKeyWritten", err)
	}
	if v, _ := Value[string](pc, "vision"); v != "draft" {
		t.Fatalf("value = %q, want first write kept", v)
	}
}

func TestValueTypeMismatch(t *testing.T) {
	t.Parallel()

	pc := NewContext()
	_ = pc.publish("n", 42)
	if _, ok := Value[string](pc, "n"); ok {
		t.Fatal("Value[string] on int must report false")
	}
	if _, ok := Value[int](pc, "missing"); ok {
		t.Fatal("missing key must report false")
	}
	var nilCtx *Context
	if nilCtx.Len() != 0 || nilCtx.Keys() != nil {
		t.Fatal("nil context must read as empty")
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
	if NoRetry().Backoff(1) != 0 {
		t.Fatal("NoRetry backoff must be zero")
	}
}
