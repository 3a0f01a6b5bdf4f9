package locker

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestAcquireRelease 基本取鎖/釋放循環
func TestAcquireRelease(t *testing.T) {
	m := NewManager(time.Second)

	h, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h.Release()

	// 釋放後可以再次取得
	h2, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	h2.Release()
}

// TestSameKeyTimesOut 同一 key 已被持有時，等待超過上限回傳 ErrWaitTimeout
func TestSameKeyTimesOut(t *testing.T) {
	m := NewManager(50 * time.Millisecond)

	h, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()

	if _, err := m.Acquire(context.Background(), 1); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("want ErrWaitTimeout, got %v", err)
	}
}

// TestDistinctKeysDoNotContend 不同 key 完全不互相阻塞
func TestDistinctKeysDoNotContend(t *testing.T) {
	m := NewManager(50 * time.Millisecond)

	h1, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire key 1: %v", err)
	}
	defer h1.Release()

	// key 1 被持有期間，key 2 必須立即可取
	start := time.Now()
	h2, err := m.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatalf("acquire key 2: %v", err)
	}
	h2.Release()
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("acquiring a distinct key blocked for %v", elapsed)
	}
}

// TestBlockedAcquirerProceedsAfterRelease 等待中的請求在釋放後接手鎖
func TestBlockedAcquirerProceedsAfterRelease(t *testing.T) {
	m := NewManager(time.Second)

	h, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		h2, err := m.Acquire(context.Background(), 1)
		if err == nil {
			h2.Release()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	h.Release()

	if err := <-done; err != nil {
		t.Fatalf("blocked acquirer should succeed after release, got %v", err)
	}
}

// TestContextCancelAbortsWait ctx 取消時立即放棄等待
func TestContextCancelAbortsWait(t *testing.T) {
	m := NewManager(time.Second)

	h, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := m.Acquire(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

// TestReleaseIdempotent 同一個 Handle 重複 Release 不會把鎖放掉兩次
func TestReleaseIdempotent(t *testing.T) {
	m := NewManager(50 * time.Millisecond)

	h, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h.Release()
	h.Release()

	// 若重複釋放真的放了兩次，這裡連續兩次取鎖都會成功
	h2, err := m.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h2.Release()

	if _, err := m.Acquire(context.Background(), 1); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("double release leaked a slot: %v", err)
	}
}
