package git

import (
	"context"
	"testing"
	"time"
)

func TestReadHead(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	head, err := h.readHead()
	if err != nil {
		t.Fatalf("read head: %v", err)
	}
	branch, _ := h.Branch(ctx)
	rev, _ := h.Revision(ctx, "")
	if head.Branch != branch || head.Hash != rev {
		t.Errorf("readHead = %+v, want %s@%s", head, branch, rev)
	}

	// Packed refs resolve too.
	gitCmd(t, h.Path(), "pack-refs", "--all")
	head, _ = h.readHead()
	if head.Hash != rev {
		t.Errorf("expected packed ref %s, got %q", rev, head.Hash)
	}

	if err := h.Checkout(ctx, rev); err != nil {
		t.Fatal(err)
	}
	head, _ = h.readHead()
	if head.Branch != "" || head.Hash != rev {
		t.Errorf("expected detached head at %s, got %+v", rev, head)
	}
}

func waitForBranchEvent(ch <-chan Event, timeout time.Duration) (Event, bool) {
	select {
	case ev := <-ch:
		return ev, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

func TestBranchWatcherExternalChange(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()

	ch := make(chan Event, 8)
	h.Subscribe(func(ev Event) {
		if ev.Kind == EventBranchChanged {
			ch <- ev
		}
	})

	w := NewBranchWatcher(h.Repository, 20*time.Millisecond)
	w.Start()
	defer w.Stop()

	// The first observation is the baseline.
	if _, ok := waitForBranchEvent(ch, 100*time.Millisecond); ok {
		t.Fatal("unexpected event before any change")
	}

	gitCmd(t, h.Path(), "checkout", "-q", "-b", "elsewhere")

	ev, ok := waitForBranchEvent(ch, 2*time.Second)
	if !ok {
		t.Fatal("expected branchChanged after external checkout")
	}
	if ev.Branch != "elsewhere" {
		t.Errorf("expected branch elsewhere, got %q", ev.Branch)
	}
}

func TestBranchWatcherIgnoresOwnCommands(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()
	ctx := context.Background()

	ch := make(chan Event, 8)
	h.Subscribe(func(ev Event) {
		if ev.Kind == EventBranchChanged {
			ch <- ev
		}
	})

	w := NewBranchWatcher(h.Repository, 10*time.Millisecond)
	w.Start()
	defer w.Stop()

	if err := h.SetTask(ctx, "internal"); err != nil {
		t.Fatal(err)
	}
	createFile(t, h.Path(), "f.txt", "x")
	if _, err := h.Commit(ctx, "internal commit", true); err != nil {
		t.Fatal(err)
	}

	if ev, ok := waitForBranchEvent(ch, 200*time.Millisecond); ok {
		t.Errorf("unexpected branchChanged for engine command: %+v", ev)
	}
}

func TestBranchWatcherStartStop(t *testing.T) {
	h, cleanup := initRepo(t)
	defer cleanup()

	w := NewBranchWatcher(h.Repository, 0)
	if w.interval != 2*time.Second {
		t.Errorf("expected default interval, got %v", w.interval)
	}

	w.Start()
	w.Start()
	w.Stop()
	w.Stop()

	// Restartable.
	w.Start()
	w.Stop()
}
