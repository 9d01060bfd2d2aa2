package locks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnrirwin/localtv/internal/logging"
)

type fakeBackend struct {
	mu         sync.Mutex
	held       map[string]string
	renewals   int
	releaseErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{held: make(map[string]string)}
}

func (b *fakeBackend) acquire(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.held[key]; ok {
		return false, nil
	}
	b.held[key] = token
	return true, nil
}

func (b *fakeBackend) renew(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held[key] != token {
		return false, nil
	}
	b.renewals++
	return true, nil
}

func (b *fakeBackend) release(_ context.Context, key, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.releaseErr != nil {
		return false, b.releaseErr
	}
	if b.held[key] != token {
		return false, nil
	}
	delete(b.held, key)
	return true, nil
}

func (b *fakeBackend) expire(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.held, key)
}

func (b *fakeBackend) renewCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renewals
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestRedisLockRenewsWhileHeld(t *testing.T) {
	b := newFakeBackend()
	l := newRedis(b, "test:", 30*time.Millisecond, nil)
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "import:source:1")
	if err != nil || !ok {
		t.Fatalf("TryLock() = ok %v, err %v; want ok", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, "import:source:1"); ok {
		t.Error("second TryLock() on held key = ok, want busy")
	}

	time.Sleep(100 * time.Millisecond)
	if got := b.renewCount(); got < 2 {
		t.Errorf("renewals after 100ms with 30ms ttl = %d, want at least 2", got)
	}

	unlock()
	renewals := b.renewCount()
	time.Sleep(50 * time.Millisecond)
	if got := b.renewCount(); got != renewals {
		t.Errorf("renewals after unlock went from %d to %d", renewals, got)
	}

	u, ok, _ := l.TryLock(ctx, "import:source:1")
	if !ok {
		t.Fatal("TryLock() after unlock = busy, want ok")
	}
	u()
}

func TestRedisLockLogsFailedRelease(t *testing.T) {
	b := newFakeBackend()
	var out syncBuffer
	l := newRedis(b, "test:", time.Minute, logging.NewWithWriter(logging.LevelDebug, &out))

	unlock, ok, _ := l.TryLock(context.Background(), "k")
	if !ok {
		t.Fatal("TryLock() = busy, want ok")
	}
	b.releaseErr = errors.New("connection refused")
	unlock()

	if got := out.String(); !strings.Contains(got, "Failed to release lock") || !strings.Contains(got, "connection refused") {
		t.Errorf("log = %q, want release failure with cause", got)
	}
}

func TestRedisLockLogsExpiredLock(t *testing.T) {
	b := newFakeBackend()
	var out syncBuffer
	l := newRedis(b, "test:", time.Minute, logging.NewWithWriter(logging.LevelDebug, &out))

	unlock, ok, _ := l.TryLock(context.Background(), "k")
	if !ok {
		t.Fatal("TryLock() = busy, want ok")
	}
	b.expire("test:k")
	unlock()

	if got := out.String(); !strings.Contains(got, "Lock expired before release") {
		t.Errorf("log = %q, want expiry warning", got)
	}
}

func TestRedisLockAgainstServer(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	prefix := "localtv:test:" + time.Now().Format("150405.000000") + ":"
	l := NewRedis(client, prefix, 300*time.Millisecond, nil)
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("TryLock() = ok %v, err %v; want ok", ok, err)
	}

	time.Sleep(time.Second)
	if _, ok, _ := l.TryLock(ctx, "k"); ok {
		t.Fatal("TryLock() after ttl elapsed = ok, want busy while renewed")
	}

	unlock()
	if n, _ := client.Exists(ctx, prefix+"k").Result(); n != 0 {
		t.Errorf("key still present after unlock")
	}
}
