package configwatcher

import (
	"path/filepath"
	"sync"
	"time"

	"elearn_quiz_backend/internal/config"
	"elearn_quiz_backend/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDelay 编辑器保存往往触发多个写事件，合并为一次重载
const debounceDelay = time.Second

// WatchConfig 监听配置文件变化并热重载。重载成功后回调 apply；
// 解析失败只记日志，继续用旧配置运行。阻塞调用，应在独立 goroutine 中运行
func WatchConfig(configPath string, apply func(*config.Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	// 监听所在目录而非文件本身：部分编辑器以重命名方式落盘，
	// 只盯文件会在第一次保存后失去监听
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	var mu sync.Mutex
	var pending *time.Timer
	reload := func() {
		cfg, err := config.LoadConfig(filepath.Dir(configPath))
		if err != nil {
			logger.Log.Error("config reload failed, keeping previous config", zap.Error(err))
			return
		}
		apply(cfg)
		logger.Log.Info("config reloaded", zap.String("path", configPath))
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != filepath.Base(absPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounceDelay, reload)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("config watcher error", zap.Error(err))
		}
	}
}
