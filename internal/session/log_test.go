package session

import (
	"sync"
	"testing"

	"github.com/apexion-ai/reactagent/internal/provider"
)

func TestMessageLog_AppendAndSnapshot(t *testing.T) {
	log := NewMessageLog(nil)
	log.Append(userText("hi"))
	log.Append(modelText("hello"))

	snap := log.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap))
	}
	if snap[0].Text() != "hi" || snap[1].Role() != provider.RoleModel {
		t.Errorf("unexpected snapshot: %v", snap)
	}

	// Later appends must not show up in an earlier snapshot.
	log.Append(userText("again"))
	if len(snap) != 2 {
		t.Errorf("snapshot changed after append: %d", len(snap))
	}
	if log.Len() != 3 {
		t.Errorf("Len = %d, want 3", log.Len())
	}
}

func TestMessageLog_SnapshotIsIndependent(t *testing.T) {
	log := NewMessageLog([]provider.Message{userText("a")})
	snap := log.Snapshot()
	snap[0] = userText("mutated")

	if got := log.Snapshot()[0].Text(); got != "a" {
		t.Errorf("log observed caller mutation: %q", got)
	}
}

func TestMessageLog_ReplaceCopiesInput(t *testing.T) {
	log := NewMessageLog([]provider.Message{userText("a"), modelText("b"), userText("c")})
	next := []provider.Message{userText("summary"), modelText("ok")}
	log.Replace(next)
	next[0] = userText("mutated")

	snap := log.Snapshot()
	if len(snap) != 2 || snap[0].Text() != "summary" {
		t.Errorf("unexpected log after replace: %v", snap)
	}

	log.Replace(nil)
	if log.Len() != 0 {
		t.Errorf("expected empty log, got %d", log.Len())
	}
}

func TestMessageLog_SeedIsCopied(t *testing.T) {
	seed := []provider.Message{userText("a")}
	log := NewMessageLog(seed)
	seed[0] = userText("b")
	if got := log.Snapshot()[0].Text(); got != "a" {
		t.Errorf("seed mutation leaked into log: %q", got)
	}
}

func TestMessageLog_ConcurrentAppend(t *testing.T) {
	log := NewMessageLog(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Append(userText("x"))
			_ = log.Snapshot()
		}()
	}
	wg.Wait()
	if log.Len() != 50 {
		t.Errorf("Len = %d, want 50", log.Len())
	}
}
