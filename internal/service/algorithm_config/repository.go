// Package algorithm_config internal/service/algorithm_config/repository.go
package algorithm_config

import (
	"PluginLens/internal/core/domain"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/araddon/dateparse"
)

// Repository 评分配置的持久化
type Repository interface {
	// Load 读取已保存的配置；从未保存过时返回 (nil, nil)
	Load(ctx context.Context) (*domain.AlgorithmConfig, error)
	Save(ctx context.Context, cfg domain.AlgorithmConfig) error
}

// SQLiteRepository 把配置以 JSON 形式保存在 algorithm_config 表的唯一一行中
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository 创建仓储。表结构由 service.InitPlatformTables 创建。
func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("SQLiteRepository 初始化失败: db 实例不能为 nil")
	}
	return &SQLiteRepository{db: db}, nil
}

// Load 实现 Repository
func (r *SQLiteRepository) Load(ctx context.Context) (*domain.AlgorithmConfig, error) {
	var (
		revision  int64
		payload   string
		updatedAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT revision, payload, updated_at FROM algorithm_config WHERE id = 1").
		Scan(&revision, &payload, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // 非错误，仅未保存过
	}
	if err != nil {
		return nil, fmt.Errorf("读取评分配置失败: %w", err)
	}

	var cfg domain.AlgorithmConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("解析已保存的评分配置失败: %w", err)
	}
	cfg.Revision = uint64(revision)
	if updatedAt.Valid && updatedAt.String != "" {
		// 旧数据可能是 CURRENT_TIMESTAMP 写入的 "2006-01-02 15:04:05"
		if ts, perr := dateparse.ParseIn(updatedAt.String, time.UTC); perr == nil {
			cfg.UpdatedAt = ts
		} else {
			slog.Warn("无法解析评分配置的更新时间", "value", updatedAt.String, "error", perr)
		}
	}
	return &cfg, nil
}

// Save 在事务中整体覆盖保存
func (r *SQLiteRepository) Save(ctx context.Context, cfg domain.AlgorithmConfig) (err error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("编码评分配置失败: %w", err)
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	// 管理事务回滚/提交逻辑
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			slog.Error("保存评分配置触发 panic，事务已回滚", "revision", cfg.Revision, "panic", p)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
			slog.Warn("保存评分配置失败，事务已回滚", "revision", cfg.Revision, "error", err)
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("提交事务失败: %w", commitErr)
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO algorithm_config (id, revision, payload, updated_at)
        VALUES (1, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            revision = excluded.revision,
            payload = excluded.payload,
            updated_at = excluded.updated_at`,
		int64(cfg.Revision), string(payload), cfg.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("写入评分配置失败 (revision %d): %w", cfg.Revision, err)
	}
	return nil
}
