package store

import (
	"context"

	"elearn_quiz_backend/pkg/logger"

	"go.uber.org/zap"
)

// LayeredKV 读优先走缓存层，未命中回源持久层并回填；写同步更新两层。
// 缓存层故障只记日志不阻断，持久层是唯一权威
type LayeredKV struct {
	cache   KV
	durable KV
}

func NewLayeredKV(cache, durable KV) *LayeredKV {
	return &LayeredKV{cache: cache, durable: durable}
}

func (l *LayeredKV) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		return v, true, nil
	} else if err != nil {
		logger.Log.Warn("kv cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, ok, err := l.durable.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}

	if err := l.cache.Set(ctx, key, v); err != nil {
		logger.Log.Warn("kv cache backfill failed", zap.String("key", key), zap.Error(err))
	}
	return v, true, nil
}

func (l *LayeredKV) Set(ctx context.Context, key, value string) error {
	if err := l.durable.Set(ctx, key, value); err != nil {
		return err
	}
	if err := l.cache.Set(ctx, key, value); err != nil {
		logger.Log.Warn("kv cache write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (l *LayeredKV) Remove(ctx context.Context, key string) error {
	if err := l.durable.Remove(ctx, key); err != nil {
		return err
	}
	if err := l.cache.Remove(ctx, key); err != nil {
		logger.Log.Warn("kv cache remove failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (l *LayeredKV) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	// 前缀扫描只信持久层，缓存层可能不完整
	return l.durable.KeysWithPrefix(ctx, prefix)
}
