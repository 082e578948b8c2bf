package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves append order", func(t *testing.T) {
		s := NewSlidingStore(10, 0)
		s.Append(ctx, "u1", UserTurn("hello"), AssistantTurn("hi"))
		s.Append(ctx, "u1", UserTurn("how are you"))

		got := s.History(ctx, "u1")
		if len(got) != 3 {
			t.Fatalf("History() returned %d turns, want 3", len(got))
		}
		want := []string{"hello", "hi", "how are you"}
		for i, turn := range got {
			if turn.Content != want[i] {
				t.Errorf("turn %d = %q, want %q", i, turn.Content, want[i])
			}
		}
	})

	t.Run("evicts oldest beyond turn limit", func(t *testing.T) {
		s := NewSlidingStore(4, 0)
		for i := 0; i < 6; i++ {
			s.Append(ctx, "u1", UserTurn(fmt.Sprintf("turn-%d", i)))
		}

		got := s.History(ctx, "u1")
		if len(got) != 4 {
			t.Fatalf("History() returned %d turns, want 4", len(got))
		}
		for i, turn := range got {
			want := fmt.Sprintf("turn-%d", i+2)
			if turn.Content != want {
				t.Errorf("turn %d = %q, want %q", i, turn.Content, want)
			}
		}
	})

	t.Run("evicts oldest beyond char budget", func(t *testing.T) {
		s := NewSlidingStore(10, 100)
		s.Append(ctx, "u1", UserTurn(strings.Repeat("a", 60)))
		s.Append(ctx, "u1", UserTurn(strings.Repeat("b", 60)))

		got := s.History(ctx, "u1")
		if len(got) != 1 {
			t.Fatalf("History() returned %d turns, want 1", len(got))
		}
		if got[0].Content[0] != 'b' {
			t.Errorf("surviving turn = %q..., want the newer one", got[0].Content[:1])
		}
	})

	t.Run("keeps at least one turn even over budget", func(t *testing.T) {
		s := NewSlidingStore(10, 10)
		s.Append(ctx, "u1", UserTurn(strings.Repeat("x", 50)))

		if got := s.History(ctx, "u1"); len(got) != 1 {
			t.Errorf("History() returned %d turns, want 1", len(got))
		}
	})

	t.Run("users are isolated", func(t *testing.T) {
		s := NewSlidingStore(10, 0)
		s.Append(ctx, "u1", UserTurn("for u1"))
		s.Append(ctx, "u2", UserTurn("for u2"))

		if got := s.History(ctx, "u1"); len(got) != 1 || got[0].Content != "for u1" {
			t.Errorf("u1 history = %v, want single turn %q", got, "for u1")
		}
	})
}

func TestHistoryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewSlidingStore(10, 0)
	s.Append(ctx, "u1", UserTurn("original"))

	got := s.History(ctx, "u1")
	got[0].Content = "mutated"

	if fresh := s.History(ctx, "u1"); fresh[0].Content != "original" {
		t.Errorf("store content = %q after caller mutation, want %q", fresh[0].Content, "original")
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := NewSlidingStore(10, 0)
	s.Append(ctx, "u1", UserTurn("hello"))
	s.SetPreference(ctx, "u1", "gemini")
	s.AddUsage(ctx, "u1", Usage{Chars: 5, Tokens: 2})

	s.Reset(ctx, "u1")

	if got := s.History(ctx, "u1"); len(got) != 0 {
		t.Errorf("History() after Reset returned %d turns, want 0", len(got))
	}
	if pref := s.Preference(ctx, "u1"); pref != "gemini" {
		t.Errorf("Preference() after Reset = %q, want %q (reset clears history only)", pref, "gemini")
	}
	if u := s.UsageFor(ctx, "u1"); u.Chars != 5 || u.Tokens != 2 {
		t.Errorf("UsageFor() after Reset = %+v, want {Chars:5 Tokens:2}", u)
	}

	// Idempotent, including for unknown users.
	s.Reset(ctx, "u1")
	s.Reset(ctx, "never-seen")
}

func TestPreference(t *testing.T) {
	ctx := context.Background()
	s := NewSlidingStore(10, 0)

	if pref := s.Preference(ctx, "u1"); pref != "" {
		t.Errorf("Preference() for new user = %q, want empty", pref)
	}

	s.SetPreference(ctx, "u1", "openai")
	if pref := s.Preference(ctx, "u1"); pref != "openai" {
		t.Errorf("Preference() = %q, want %q", pref, "openai")
	}

	s.SetPreference(ctx, "u1", "")
	if pref := s.Preference(ctx, "u1"); pref != "" {
		t.Errorf("Preference() after clearing = %q, want empty", pref)
	}
}

func TestAddUsage(t *testing.T) {
	ctx := context.Background()
	s := NewSlidingStore(10, 0)

	s.AddUsage(ctx, "u1", Usage{Chars: 100, Tokens: 25})
	s.AddUsage(ctx, "u1", Usage{Chars: 50, Tokens: 10})

	got := s.UsageFor(ctx, "u1")
	if got.Chars != 150 || got.Tokens != 35 {
		t.Errorf("UsageFor() = %+v, want {Chars:150 Tokens:35}", got)
	}
}

func TestLen(t *testing.T) {
	ctx := context.Background()
	s := NewSlidingStore(10, 0)

	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
	s.Append(ctx, "u1", UserTurn("a"))
	s.Append(ctx, "u2", UserTurn("b"))
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestAppendConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewSlidingStore(1000, 0)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", g%2)
			for i := 0; i < 50; i++ {
				s.Append(ctx, user, UserTurn("m"))
				s.History(ctx, user)
			}
		}(g)
	}
	wg.Wait()

	total := len(s.History(ctx, "u0")) + len(s.History(ctx, "u1"))
	if total != 400 {
		t.Errorf("total turns = %d, want 400", total)
	}
}
