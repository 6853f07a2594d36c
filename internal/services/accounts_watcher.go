// internal/services/accounts_watcher.go
package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Corphon/StoryWriter/internal/config"
)

// defaultReloadDebounce 编辑器保存时往往连续触发多次写事件
const defaultReloadDebounce = 300 * time.Millisecond

// AccountsWatcher 账号文件变化时重新加载到 AuthService
type AccountsWatcher struct {
	path     string
	auth     *AuthService
	logger   *zap.Logger
	debounce time.Duration
	reloaded func()
}

// NewAccountsWatcher 创建账号文件监听器
func NewAccountsWatcher(path string, auth *AuthService, logger *zap.Logger) *AccountsWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountsWatcher{
		path:     filepath.Clean(path),
		auth:     auth,
		logger:   logger.Named("accounts"),
		debounce: defaultReloadDebounce,
	}
}

// Run 阻塞直到 ctx 结束；解析失败时保留旧账号表
func (w *AccountsWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating accounts watcher: %w", err)
	}
	defer watcher.Close()

	// 监听目录而不是文件，原子替换后文件 inode 会变
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.logger.Info("watching accounts file", zap.String("path", w.path))

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			trigger = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("accounts watcher error", zap.Error(err))

		case <-trigger:
			trigger = nil
			w.reload()
		}
	}
}

func (w *AccountsWatcher) reload() {
	accounts, err := config.LoadAccounts(w.path)
	if err != nil {
		w.logger.Error("reload accounts failed, keeping previous accounts", zap.Error(err))
		return
	}
	w.auth.Replace(accounts)
	if w.reloaded != nil {
		w.reloaded()
	}
}
