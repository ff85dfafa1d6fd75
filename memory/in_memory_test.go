package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryStore_LoadMissingKey(t *testing.T) {
	svc := NewInMemoryStore()
	blob, err := svc.Load(context.Background(), "rare_memory")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blob != nil {
		t.Fatalf("expected nil blob, got %q", blob)
	}
}

func TestInMemoryStore_SaveAndLoadCopies(t *testing.T) {
	svc := NewInMemoryStore()
	ctx := context.Background()
	in := []byte(`{"history":[]}`)
	if err := svc.Save(ctx, "k", in); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	in[0] = 'X' // caller mutation must not leak into the store

	out, err := svc.Load(ctx, "k")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if string(out) != `{"history":[]}` {
		t.Fatalf("unexpected blob %q", out)
	}
	out[0] = 'Y'
	again, _ := svc.Load(ctx, "k")
	if again[0] != '{' {
		t.Fatalf("expected copy isolation, got %q", again)
	}
	if svc.Saves() != 1 {
		t.Fatalf("expected 1 save, got %d", svc.Saves())
	}
}

func TestInMemoryStore_DeleteAndKeys(t *testing.T) {
	svc := NewInMemoryStore()
	ctx := context.Background()
	_ = svc.Save(ctx, "b", []byte("2"))
	_ = svc.Save(ctx, "a", []byte("1"))
	if got := svc.Keys(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected keys %v", got)
	}
	_ = svc.Delete(ctx, "a")
	_ = svc.Delete(ctx, "missing")
	if got := svc.Keys(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("unexpected keys after delete %v", got)
	}
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	svc := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Save(ctx, "k", []byte("v")); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if _, err := svc.Load(ctx, "k"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	svc := NewInMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			_ = svc.Save(ctx, key, []byte(key))
			_, _ = svc.Load(ctx, key)
		}(i)
	}
	wg.Wait()
	if len(svc.Keys()) != 4 {
		t.Fatalf("expected 4 keys, got %v", svc.Keys())
	}
}
