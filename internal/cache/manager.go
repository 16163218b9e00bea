package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"thai-lotto-bot/internal/database"
	"thai-lotto-bot/internal/logger"
	"thai-lotto-bot/internal/metrics"

	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const latestKey = "draw:latest"

// DrawStore 被缓存的开奖记录读取接口
type DrawStore interface {
	QueryDraws(ctx context.Context, field database.DigitType, filter database.DrawFilter) ([]database.DrawRecord, error)
	LatestDraw(ctx context.Context) (*database.DrawRecord, error)
}

// CacheManager 开奖查询的内存缓存；新开奖写入后整体失效
type CacheManager struct {
	cache  *gocache.Cache
	store  DrawStore
	hits   atomic.Uint64
	misses atomic.Uint64
	log    *logrus.Entry
}

// NewCacheManager 创建新的缓存管理器
func NewCacheManager(store DrawStore, defaultTTL time.Duration) *CacheManager {
	cm := &CacheManager{
		cache: gocache.New(defaultTTL, defaultTTL*2),
		store: store,
		log:   logger.WithComponent("cache"),
	}
	cm.log.WithField("ttl", defaultTTL).Info("Draw cache initialized")
	return cm
}

// QueryDraws 带缓存的开奖记录查询，返回结果的副本
func (cm *CacheManager) QueryDraws(ctx context.Context, field database.DigitType, filter database.DrawFilter) ([]database.DrawRecord, error) {
	key, err := queryKey(field, filter)
	if err != nil {
		return nil, err
	}

	if cached, found := cm.cache.Get(key); found {
		cm.hits.Add(1)
		return copyDraws(cached.([]database.DrawRecord)), nil
	}
	cm.misses.Add(1)

	records, err := cm.store.QueryDraws(ctx, field, filter)
	if err != nil {
		return nil, err
	}

	cm.cache.SetDefault(key, copyDraws(records))
	metrics.SetCacheEntries(cm.cache.ItemCount())
	return records, nil
}

// LatestDraw 最新一期开奖，没有记录时返回 nil
func (cm *CacheManager) LatestDraw(ctx context.Context) (*database.DrawRecord, error) {
	if cached, found := cm.cache.Get(latestKey); found {
		cm.hits.Add(1)
		record := cached.(database.DrawRecord)
		return &record, nil
	}
	cm.misses.Add(1)

	record, err := cm.store.LatestDraw(ctx)
	if err != nil || record == nil {
		return record, err
	}

	cm.cache.SetDefault(latestKey, *record)
	metrics.SetCacheEntries(cm.cache.ItemCount())
	return record, nil
}

// OnNewDraw 新开奖数据事件处理
func (cm *CacheManager) OnNewDraw(record *database.DrawRecord) {
	cm.cache.Flush()
	if record != nil {
		cm.cache.SetDefault(latestKey, *record)
		cm.log.WithField("draw_date", database.FormatDate(record.DrawDate)).Info("Draw cache refreshed")
	}
	metrics.SetCacheEntries(cm.cache.ItemCount())
}

// Clear 清空缓存
func (cm *CacheManager) Clear() {
	cm.cache.Flush()
	cm.hits.Store(0)
	cm.misses.Store(0)
	metrics.SetCacheEntries(0)
}

// GetStats 获取缓存统计信息
func (cm *CacheManager) GetStats() map[string]interface{} {
	hits, misses := cm.hits.Load(), cm.misses.Load()
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return map[string]interface{}{
		"entries":   cm.cache.ItemCount(),
		"hits":      hits,
		"misses":    misses,
		"hit_ratio": ratio,
	}
}

func queryKey(field database.DigitType, filter database.DrawFilter) (string, error) {
	encoded, err := json.MarshalToString(filter)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	return "draws:" + string(field) + ":" + encoded, nil
}

func copyDraws(records []database.DrawRecord) []database.DrawRecord {
	if records == nil {
		return nil
	}
	out := make([]database.DrawRecord, len(records))
	copy(out, records)
	return out
}
