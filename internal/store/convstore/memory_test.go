package convstore

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStore_AppendAndGet(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, "session-1", Message{Role: "user", Content: "turn"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, err := s.Get(ctx, "session-1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
}

func TestMemoryStore_GetRespectsLimit(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = s.Append(ctx, "session-1", Message{Role: "user", Content: "turn"})
	}
	msgs, err := s.Get(ctx, "session-1", 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected limit to cap at 2 messages, got %d", len(msgs))
	}
}

func TestMemoryStore_SessionsAreIndependent(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.Append(ctx, "a", Message{Role: "user", Content: "hello a"})
	_ = s.Append(ctx, "b", Message{Role: "user", Content: "hello b"})

	a, _ := s.Get(ctx, "a", 0)
	b, _ := s.Get(ctx, "b", 0)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected one message per session, got a=%d b=%d", len(a), len(b))
	}
	if a[0].Content == b[0].Content {
		t.Fatalf("expected distinct content per session")
	}
}

func TestMemoryStore_ConcurrentAppendsToSameSession(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(ctx, "concurrent", Message{Role: "user", Content: "x"})
		}()
	}
	wg.Wait()
	msgs, err := s.Get(ctx, "concurrent", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(msgs) != 50 {
		t.Fatalf("expected 50 messages after concurrent appends, got %d", len(msgs))
	}
}
