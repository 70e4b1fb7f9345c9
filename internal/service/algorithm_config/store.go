// Package algorithm_config 持有进程内唯一的评分配置，并负责校验、持久化与版本号。
// internal/service/algorithm_config/store.go
package algorithm_config

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"PluginLens/internal/observe"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store 是 port.AlgorithmConfigStore 的实现。
// 读路径无锁：当前配置保存在 atomic.Pointer 中，读取方拿到的是深拷贝。
// 写路径由互斥锁串行化，每次成功替换 Revision 加 1。
type Store struct {
	mu       sync.Mutex
	current  atomic.Pointer[domain.AlgorithmConfig]
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

var _ port.AlgorithmConfigStore = (*Store)(nil)

// NewStore 以 initial 作为初始配置创建 Store。repo 为 nil 时只在内存中保存。
func NewStore(repo Repository, initial domain.AlgorithmConfig) (*Store, error) {
	s := &Store{
		repo:     repo,
		validate: newValidator(),
		now:      time.Now,
		logger:   observe.Component("algorithm_config"),
	}
	if err := s.Validate(initial); err != nil {
		return nil, fmt.Errorf("初始评分配置无效: %w", err)
	}
	cfg := initial.Clone()
	s.current.Store(&cfg)
	observe.ConfigRevision.Set(float64(cfg.Revision))
	return s, nil
}

// Validate 校验一份完整配置，返回 *port.ValidationError
func (s *Store) Validate(cfg domain.AlgorithmConfig) error {
	return toValidationError(s.validate.Struct(cfg))
}

// Load 从仓储恢复上次保存的配置。
// 保存的配置无法通过当前校验规则时保留初始配置并记录警告。
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	persisted, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if persisted == nil {
		s.logger.Info("没有已保存的评分配置，使用初始配置")
		return nil
	}
	if err := s.Validate(*persisted); err != nil {
		s.logger.Warn("已保存的评分配置未通过校验，已忽略", "revision", persisted.Revision, "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := persisted.Clone()
	s.current.Store(&cfg)
	observe.ConfigRevision.Set(float64(cfg.Revision))
	s.logger.Info("评分配置已从数据库恢复", "revision", cfg.Revision)
	return nil
}

// Snapshot 返回当前配置的独立拷贝
func (s *Store) Snapshot() domain.AlgorithmConfig {
	return s.current.Load().Clone()
}

// Revision 当前配置版本
func (s *Store) Revision() uint64 {
	return s.current.Load().Revision
}

// TTL 当前配置下某类缓存的有效期
func (s *Store) TTL(kind domain.CacheKind) time.Duration {
	return s.current.Load().TTL(kind)
}

// Replace 校验并整体替换配置。失败时原配置保持不变。
func (s *Store) Replace(ctx context.Context, cfg domain.AlgorithmConfig) error {
	if err := s.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, cfg)
}

// UpdateWeights 只替换权重，其余字段沿用当前配置。
// 两组权重各自独立校验，任一组失败则整个更新被拒绝。
func (s *Store) UpdateWeights(ctx context.Context, update domain.WeightsUpdate) error {
	if update.Usability == nil && update.Health == nil {
		return port.NewValidationError("weights", "至少需要提供一组权重")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().Clone()
	if update.Usability != nil {
		next.UsabilityWeights = update.Usability.Clone()
	}
	if update.Health != nil {
		next.HealthWeights = update.Health.Clone()
	}
	if err := s.Validate(next); err != nil {
		return err
	}
	return s.commitLocked(ctx, next)
}

// commitLocked 分配新版本号、持久化并发布。调用方必须持有 mu。
func (s *Store) commitLocked(ctx context.Context, cfg domain.AlgorithmConfig) error {
	prev := s.current.Load()
	next := cfg.Clone()
	next.Revision = prev.Revision + 1
	next.UpdatedAt = s.now()

	if s.repo != nil {
		if err := s.repo.Save(ctx, next); err != nil {
			return fmt.Errorf("保存评分配置失败: %w", err)
		}
	}
	s.current.Store(&next)
	observe.ConfigRevision.Set(float64(next.Revision))
	s.logger.Info("评分配置已更新", "revision", next.Revision)
	return nil
}
