package invitations

import (
	"context"
	"sync"
	"time"
)

// Counter tracks how many invitations a key has issued inside a fixed
// window. Increment returns the count after the bump and the time at which
// the window resets; Peek returns the current count without bumping it.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
	Peek(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
	Reset(ctx context.Context, key string) error
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryCounter is a fixed-window Counter for tests and single-process runs.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*memoryWindow), now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (c *MemoryCounter) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.window(key, window)
	w.count++
	return w.count, w.resetAt, nil
}

func (c *MemoryCounter) Peek(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.window(key, window)
	return w.count, w.resetAt, nil
}

func (c *MemoryCounter) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
	return nil
}

// window returns the live window for key, rolling over an elapsed one.
// Caller holds the lock.
func (c *MemoryCounter) window(key string, window time.Duration) *memoryWindow {
	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		c.windows[key] = w
	}
	return w
}
