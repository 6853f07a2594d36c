// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 按会话分配互斥锁，保证同一会话的事件串行执行
type LockManager struct {
	locks      map[string]*LockInfo
	globalLock sync.Mutex
	lockTTL    time.Duration
	maxLocks   int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    sync.Mutex
	LastUsed time.Time
	refs     int // 正在使用或等待此锁的协程数，大于 0 时不会被清理
}

// NewLockManager 创建锁管理器，cleanupInterval 为 0 时不启动后台清理
func NewLockManager(cleanupInterval time.Duration) *LockManager {
	lm := &LockManager{
		locks:    make(map[string]*LockInfo),
		lockTTL:  30 * time.Minute,
		maxLocks: 200,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go lm.cleanupLoop(cleanupInterval)
	} else {
		close(lm.done)
	}
	return lm
}

func (lm *LockManager) acquire(sessionID string) *LockInfo {
	lm.globalLock.Lock()
	info, exists := lm.locks[sessionID]
	if !exists {
		info = &LockInfo{}
		lm.locks[sessionID] = info
	}
	info.refs++
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	info.refs--
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
}

// ExecuteWithSessionLock 在会话锁保护下执行操作
func (lm *LockManager) ExecuteWithSessionLock(sessionID string, fn func() error) error {
	info := lm.acquire(sessionID)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()

	return fn()
}

// Forget 会话销毁后移除其锁
func (lm *LockManager) Forget(sessionID string) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if info, exists := lm.locks[sessionID]; exists && info.refs == 0 {
		delete(lm.locks, sessionID)
	}
}

// Len 当前持有的锁数量
func (lm *LockManager) Len() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}

// Close 停止后台清理
func (lm *LockManager) Close() {
	lm.stopOnce.Do(func() { close(lm.stop) })
	<-lm.done
}

func (lm *LockManager) cleanupLoop(interval time.Duration) {
	defer close(lm.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lm.cleanupUnusedLocks(time.Now())
		case <-lm.stop:
			return
		}
	}
}

// cleanupUnusedLocks 锁数量过多时清理长时间未使用的锁
func (lm *LockManager) cleanupUnusedLocks(now time.Time) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if len(lm.locks) <= lm.maxLocks {
		return 0
	}

	removed := 0
	for sessionID, info := range lm.locks {
		if info.refs == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.locks, sessionID)
			removed++
		}
	}
	return removed
}
