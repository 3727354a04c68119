package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type counter struct {
	mu      sync.Mutex
	calls   map[int64]int
	changes []string
}

func newCounter() *counter { return &counter{calls: map[int64]int{}} }

func (c *counter) refresh(_ context.Context, vaultID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[vaultID]++
	return nil
}

func (c *counter) change(_ int64, rel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, rel)
}

func (c *counter) count(vaultID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[vaultID]
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func start(t *testing.T, c *counter, roots ...Root) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(c.refresh,
		WithDebounce(100*time.Millisecond),
		WithOnChange(c.change),
		WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx, roots); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_BurstIsDebounced(t *testing.T) {
	dir := t.TempDir()
	c := newCounter()
	start(t, c, Root{VaultID: 1, Path: dir})

	for i := 0; i < 5; i++ {
		write(t, dir, "a.md", "# A "+string(rune('0'+i)))
		time.Sleep(10 * time.Millisecond)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return c.count(1) >= 1
	}, "vault not refreshed after changes")
	time.Sleep(300 * time.Millisecond)
	if n := c.count(1); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestWatcher_IgnoresIneligibleFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".vaultlens"), 0o755); err != nil {
		t.Fatal(err)
	}
	c := newCounter()
	start(t, c, Root{VaultID: 1, Path: dir})

	write(t, dir, "image.png", "png")
	write(t, dir, ".vaultlens/scan.lock", "")
	write(t, dir, ".hidden.md", "x")

	time.Sleep(400 * time.Millisecond)
	if n := c.count(1); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	dir := t.TempDir()
	c := newCounter()
	start(t, c, Root{VaultID: 1, Path: dir})

	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return c.count(1) == 1
	}, "new directory did not trigger a refresh")

	write(t, dir, "sub/deep.md", "# Deep")
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return c.count(1) == 2
	}, "file in new subdirectory did not trigger a refresh")

	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	for _, ch := range c.changes {
		if ch == "sub/deep.md" {
			found = true
		}
	}
	if !found {
		t.Errorf("changes = %v, want sub/deep.md", c.changes)
	}
}

func TestWatcher_DeleteTriggersRefresh(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "gone.md", "bye")
	c := newCounter()
	start(t, c, Root{VaultID: 7, Path: dir})

	if err := os.Remove(filepath.Join(dir, "gone.md")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return c.count(7) == 1
	}, "delete did not trigger a refresh")
}

func TestWatcher_VaultsAreIndependent(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	c := newCounter()
	start(t, c, Root{VaultID: 1, Path: a}, Root{VaultID: 2, Path: b})

	write(t, b, "only-b.md", "b")
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return c.count(2) == 1
	}, "vault 2 not refreshed")
	if n := c.count(1); n != 0 {
		t.Errorf("vault 1 refresh calls = %d, want 0", n)
	}
}

func TestWatcher_NoRootsBlocksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := New(newCounter().refresh).Run(ctx, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
