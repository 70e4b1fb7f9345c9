// file: cmd/pluginlens/app.go

package main

import (
	"PluginLens/internal/adapter/cachestore"
	"PluginLens/internal/adapter/directory"
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"PluginLens/internal/service"
	"PluginLens/internal/service/algorithm_config"
	"PluginLens/internal/service/metacache"
	"PluginLens/internal/service/plugin_query"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// app 持有一次进程生命周期内的全部组件
type app struct {
	cfg     Config
	db      *sql.DB
	store   *algorithm_config.Store
	backend port.CacheBackend
	sqlite  *cachestore.SQLiteStore
	service *plugin_query.Service
	// fileAlgorithm 启动时配置文件 algorithm 段的解析结果，作为热加载的比较基准
	fileAlgorithm domain.AlgorithmConfig
}

// buildApp 按配置装配各层：数据库 → 配置存储 → 缓存 → 目录客户端 → 查询服务
func buildApp(ctx context.Context, v *viper.Viper, cfg Config) (*app, error) {
	a := &app{cfg: cfg}

	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录 '%s' 失败: %w", dir, err)
		}
	}
	db, err := service.OpenDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := service.InitPlatformTables(db); err != nil {
		a.Close()
		return nil, fmt.Errorf("初始化平台系统表失败: %w", err)
	}

	initial, err := algorithmConfig(v)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.fileAlgorithm = initial
	repo, err := algorithm_config.NewSQLiteRepository(db)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store, err = algorithm_config.NewStore(repo, initial)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.store.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("恢复评分配置失败: %w", err)
	}

	retention := time.Duration(cfg.Cache.RetentionHours) * time.Hour
	switch cfg.Cache.Backend {
	case "memory":
		a.backend = cachestore.NewMemoryStore(retention, 10*time.Minute)
	default:
		a.sqlite, err = cachestore.NewSQLiteStore(db, cachestore.SQLiteOptions{
			FrontSize: cfg.Cache.FrontSize,
			Retention: retention,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.backend = a.sqlite
	}
	cache := metacache.New(a.backend, metacache.WithTTL(a.store.TTL))

	client, err := directory.NewClient(directory.Options{
		BaseURL:           cfg.Directory.BaseURL,
		Timeout:           time.Duration(cfg.Directory.TimeoutSeconds) * time.Second,
		MaxRetries:        cfg.Directory.MaxRetries,
		RequestsPerSecond: cfg.Directory.RequestsPerSecond,
		Burst:             cfg.Directory.Burst,
		UserAgent:         cfg.Directory.UserAgent,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service, err = plugin_query.New(plugin_query.Dependencies{
		Directory:         client,
		Cache:             cache,
		Config:            a.store,
		DetailConcurrency: cfg.Directory.DetailConcurrency,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	slog.Info("组件装配完成",
		"cache_backend", a.backend.Name(),
		"database", cfg.Database.Path,
		"config_revision", a.store.Revision(),
	)
	return a, nil
}

// startJanitor 只有 sqlite 后端需要定期清理
func (a *app) startJanitor(ctx context.Context) {
	if a.sqlite == nil {
		return
	}
	a.sqlite.StartJanitor(ctx, time.Duration(a.cfg.Cache.JanitorMinutes)*time.Minute)
}

func (a *app) Close() {
	if a.db == nil {
		return
	}
	slog.Info("正在关闭数据库连接...")
	if err := a.db.Close(); err != nil {
		slog.Error("关闭数据库时发生错误", "error", err)
	}
	a.db = nil
}
