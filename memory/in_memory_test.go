package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/agentloom/core"
)

// Interface compliance (compile-time assertions)
var _ core.MemoryStore = (*InMemoryStore)(nil)

func sessionWith(id string, texts ...string) *core.Session {
	sess := core.NewSession("app", "u1", id)
	for i, text := range texts {
		author := core.AuthorUser
		if i%2 == 1 {
			author = "assistant"
		}
		ev := core.NewEvent("inv", author)
		ev.Content = core.NewTextContent(core.RoleUser, text)
		_ = sess.Append(ev)
	}
	return sess
}

func TestInMemoryMemoryStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	if err := svc.AddSession(ctx, sessionWith("s1", "I like green tea", "Noted: Green Tea.")); err != nil {
		t.Fatalf("add session: %v", err)
	}

	res, err := svc.Search(ctx, "app", "u1", "TEA")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res))
	}
	none, _ := svc.Search(ctx, "app", "u1", "coffee")
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %#v", none)
	}
	empty, _ := svc.Search(ctx, "app", "u1", "")
	if len(empty) != 0 {
		t.Fatalf("empty query should match nothing")
	}
}

func TestInMemoryMemoryStore_UserIsolation(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	_ = svc.AddSession(ctx, sessionWith("s1", "secret project apollo"))

	other, _ := svc.Search(ctx, "app", "u2", "apollo")
	if len(other) != 0 {
		t.Fatalf("memory leaked across users: %#v", other)
	}
}

func TestInMemoryMemoryStore_ReAddReplaces(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	sess := sessionWith("s1", "alpha")
	_ = svc.AddSession(ctx, sess)
	ev := core.NewEvent("inv", "assistant")
	ev.Content = core.NewTextContent(core.RoleModel, "alpha beta")
	_ = sess.Append(ev)
	_ = svc.AddSession(ctx, sess)

	res, _ := svc.Search(ctx, "app", "u1", "alpha")
	if len(res) != 2 {
		t.Fatalf("expected 2 entries after re-ingest, got %d", len(res))
	}
}

func TestInMemoryMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryStore()
	wg := sync.WaitGroup{}
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := svc.AddSession(ctx, sessionWith(string(rune('a'+i)), "shared word")); err != nil {
				t.Errorf("add error: %v", err)
			}
			if _, err := svc.Search(ctx, "app", "u1", "word"); err != nil {
				t.Errorf("search error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	res, _ := svc.Search(ctx, "app", "u1", "shared")
	if len(res) != 25 {
		t.Fatalf("expected 25 entries, got %d", len(res))
	}
}
