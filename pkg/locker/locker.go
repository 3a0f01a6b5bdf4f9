// Package locker 提供以 key 為粒度的互斥鎖管理。
// 不同 key 之間完全不互相阻塞；同一 key 的取鎖請求會排隊，
// 並在等待超過上限時回傳 ErrWaitTimeout，避免呼叫端無限期卡住。
package locker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitTimeout 等待鎖超過 Manager 設定的上限
var ErrWaitTimeout = errors.New("locker: wait timeout")

// DefaultWait 預設的最長等待時間
const DefaultWait = 5 * time.Second

// Manager 管理一組以 int64 key 識別的互斥鎖。
// 每個 key 對應一個容量為 1 的 channel：
// 寫入成功 = 取得鎖 (Locked)，讀出 = 釋放鎖 (Unlocked)。
type Manager struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
	wait  time.Duration
}

// NewManager 建立鎖管理器
//
// 參數:
//
//	wait: 單次取鎖的最長等待時間；<= 0 時使用 DefaultWait
func NewManager(wait time.Duration) *Manager {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Manager{
		locks: make(map[int64]chan struct{}),
		wait:  wait,
	}
}

// slot 取得 key 對應的 channel，不存在時建立
// locks map 本身的讀寫由 m.mu 保護，臨界區極短
func (m *Manager) slot(key int64) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	return ch
}

// Acquire 取得 key 的互斥鎖，若已被持有則阻塞等待
//
// 參數:
//
//	ctx: 上下文，取消時立即放棄等待
//	key: 鎖定對象的識別碼
//
// 回傳:
//
//	*Handle: 鎖的持有憑證，必須在所有離開路徑上 Release
//	error: 等待逾時回傳 ErrWaitTimeout；ctx 取消回傳 ctx.Err()
func (m *Manager) Acquire(ctx context.Context, key int64) (*Handle, error) {
	ch := m.slot(key)

	// Fast path: 鎖空閒時不需要啟動 timer
	select {
	case ch <- struct{}{}:
		return &Handle{ch: ch}, nil
	default:
	}

	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return &Handle{ch: ch}, nil
	case <-timer.C:
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Handle 鎖的持有憑證
type Handle struct {
	ch   chan struct{}
	once sync.Once
}

// Release 釋放鎖。同一個 Handle 重複呼叫是安全的 (只會釋放一次)，
// 方便在 defer 與提前返回的路徑上都呼叫。
func (h *Handle) Release() {
	h.once.Do(func() {
		<-h.ch
	})
}
