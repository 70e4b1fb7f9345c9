// file: internal/adapter/cachestore/sqlite.go
package cachestore

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	_ "modernc.org/sqlite"
)

var _ port.CacheBackend = (*SQLiteStore)(nil)

// SQLiteStore 把缓存条目持久化到 SQLite 的 cache_entries 表中，进程重启后仍可命中。
// 读路径前面挂一个小容量的过期 LRU，避免热点 key 每次都落到磁盘。
// 表结构由 service.InitPlatformTables 负责创建。
type SQLiteStore struct {
	db        *sql.DB
	front     *lru.LRU[string, domain.CacheEntry]
	retention time.Duration
	now       func() time.Time
}

// SQLiteOptions SQLite 后端的可选参数
type SQLiteOptions struct {
	// FrontSize 前置 LRU 的容量，<=0 时使用 512
	FrontSize int
	// FrontTTL 前置 LRU 条目的存活时间，<=0 时使用 1 分钟
	FrontTTL time.Duration
	// Retention 条目过期后在表中继续保留的时长
	Retention time.Duration
	// Now 时钟，测试时替换
	Now func() time.Time
}

// NewSQLiteStore 基于一个已初始化表结构的连接创建后端
func NewSQLiteStore(db *sql.DB, opts SQLiteOptions) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("SQLiteStore 初始化失败: db 实例不能为 nil")
	}
	if opts.FrontSize <= 0 {
		opts.FrontSize = 512
	}
	if opts.FrontTTL <= 0 {
		opts.FrontTTL = time.Minute
	}
	if opts.Retention < 0 {
		opts.Retention = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SQLiteStore{
		db:        db,
		front:     lru.NewLRU[string, domain.CacheEntry](opts.FrontSize, nil, opts.FrontTTL),
		retention: opts.Retention,
		now:       opts.Now,
	}, nil
}

// Name 实现 port.CacheBackend
func (s *SQLiteStore) Name() string { return "sqlite" }

// Load 先查前置 LRU，未命中再查表
func (s *SQLiteStore) Load(kind domain.CacheKind, key string) (domain.CacheEntry, bool, error) {
	ck := compositeKey(kind, key)
	if entry, ok := s.front.Get(ck); ok {
		entry.Value = bytes.Clone(entry.Value)
		return entry, true, nil
	}

	var (
		payload  []byte
		storedAt int64
		ttl      int64
	)
	err := s.db.QueryRow(
		"SELECT payload, stored_at, ttl_seconds FROM cache_entries WHERE kind = ? AND cache_key = ?",
		string(kind), key).Scan(&payload, &storedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("读取缓存条目 '%s/%s' 失败: %w", kind, key, err)
	}

	entry := domain.CacheEntry{
		Key:        key,
		Kind:       kind,
		Value:      payload,
		StoredAt:   time.Unix(0, storedAt),
		TTLSeconds: ttl,
	}
	s.front.Add(ck, entry)
	entry.Value = bytes.Clone(payload)
	return entry, true, nil
}

// Store UPSERT 一条记录，并同步刷新前置 LRU
func (s *SQLiteStore) Store(entry domain.CacheEntry) error {
	_, err := s.db.Exec(`
        INSERT INTO cache_entries (kind, cache_key, payload, stored_at, ttl_seconds)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(kind, cache_key) DO UPDATE SET
            payload = excluded.payload,
            stored_at = excluded.stored_at,
            ttl_seconds = excluded.ttl_seconds`,
		string(entry.Kind), entry.Key, entry.Value, entry.StoredAt.UnixNano(), entry.TTLSeconds)
	if err != nil {
		return fmt.Errorf("写入缓存条目 '%s/%s' 失败: %w", entry.Kind, entry.Key, err)
	}
	entry.Value = bytes.Clone(entry.Value)
	s.front.Add(compositeKey(entry.Kind, entry.Key), entry)
	return nil
}

// Delete 按类别和前缀删除；前置 LRU 整体清空
func (s *SQLiteStore) Delete(sel domain.CacheSelector) (int, error) {
	defer s.front.Purge()

	res, err := s.db.Exec(
		`DELETE FROM cache_entries WHERE (? = '' OR kind = ?) AND cache_key LIKE ? ESCAPE '\'`,
		string(sel.Kind), string(sel.Kind), escapeLike(sel.Prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("删除缓存条目失败 (kind='%s', prefix='%s'): %w", sel.Kind, sel.Prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取删除行数失败: %w", err)
	}
	return int(n), nil
}

// Prune 删除超过保留期的条目，返回删除数量
func (s *SQLiteStore) Prune(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention).UnixNano()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE stored_at + ttl_seconds * 1000000000 <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("清理过期缓存条目失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取清理行数失败: %w", err)
	}
	return int(n), nil
}

// StartJanitor 在后台周期性执行 Prune，ctx 取消后退出
func (s *SQLiteStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Prune(ctx)
				if err != nil {
					slog.Warn("[CacheJanitor] 清理失败", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("[CacheJanitor] 已清理过期缓存", "removed", n)
				}
			}
		}
	}()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
