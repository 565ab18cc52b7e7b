package useragent

import (
	"sync"
	"testing"
)

func TestNext_RoundRobin(t *testing.T) {
	p := NewPool([]string{"a", "b", "c"})

	got := []string{p.Next(), p.Next(), p.Next(), p.Next()}
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestNewPool_DefaultsWhenEmpty(t *testing.T) {
	p := NewPool(nil)
	if len(p.All()) == 0 {
		t.Fatal("expected built-in agents for empty input")
	}
	if p.Next() == "" {
		t.Error("expected non-empty agent")
	}
}

func TestNewPool_CopiesInput(t *testing.T) {
	src := []string{"a", "b"}
	p := NewPool(src)
	src[0] = "mutated"

	if p.Next() != "a" {
		t.Error("pool must not alias the caller's slice")
	}
}

func TestRandom_StaysInPool(t *testing.T) {
	p := NewPool([]string{"a", "b"})
	for i := 0; i < 20; i++ {
		got := p.Random()
		if got != "a" && got != "b" {
			t.Fatalf("unexpected agent %q", got)
		}
	}
}

func TestNext_Concurrent(t *testing.T) {
	p := NewPool([]string{"a", "b", "c"})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Next()
		}()
	}
	wg.Wait()
}
