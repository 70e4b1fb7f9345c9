// file: cmd/pluginlens/serve.go

package main

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/observe"
	"PluginLens/internal/service/admin_token"
	"PluginLens/internal/transport/http/middleware"
	"PluginLens/internal/transport/http/router"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func buildServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), v, cfg, opts.configPath)
		},
	}
}

func serve(ctx context.Context, v *viper.Viper, cfg Config, configPath string) error {
	observe.InitLogger(cfg.Server.LogLevel)
	slog.Info("PluginLens starting up", "version", version)
	gin.SetMode(gin.ReleaseMode)

	a, err := buildApp(ctx, v, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.startJanitor(bgCtx)
	slog.Info("后台任务: 缓存清理已启动。")

	if configPath != "" {
		watchAlgorithmConfig(bgCtx, v, a)
	}

	observe.Register()
	if pprofServer := observe.EnablePprof(cfg.Server.PprofAddr); pprofServer != nil {
		defer pprofServer.Close()
	}
	slog.Info("监控: metrics 已注册。")

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.PerIP > 0 {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.PerIP, cfg.RateLimit.Burst, cfg.RateLimit.Global, cfg.RateLimit.GlobalBurst)
	}
	var verifier middleware.TokenVerifier
	if cfg.Server.AdminKey != "" {
		issuer, err := admin_token.NewIssuer(cfg.Server.AdminKey)
		if err != nil {
			return err
		}
		verifier = issuer
	} else {
		slog.Warn("未配置 server.admin_key，缓存清除与权重更新接口不鉴权")
	}
	httpRouter := router.New(router.Dependencies{
		Service:      a.service,
		Limiter:      limiter,
		AllowOrigins: cfg.Server.AllowOrigins,
		AccessLog:    cfg.Server.AccessLog,
		Admin:        verifier,
	})
	slog.Info("传输层: HTTP 路由器创建完成。")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("开始监听HTTP请求...", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP服务启动失败: %w", err)
	case <-quit:
		slog.Info("收到停机信号，准备优雅关闭...")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP服务优雅关闭失败: %w", err)
	}
	slog.Info("HTTP服务已成功关闭。")
	return nil
}

// watchAlgorithmConfig 配置文件变化时重新解析 algorithm 段。
// 只有 algorithm 段本身改动才替换运行中的配置；新配置未通过校验时保留旧配置。
func watchAlgorithmConfig(ctx context.Context, v *viper.Viper, a *app) {
	r := newAlgorithmReloader(a.fileAlgorithm, a.store.Snapshot, a.service.ReplaceAlgorithmConfig)
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if _, err := r.reload(ctx, v); err != nil {
			slog.Warn("配置文件中的评分配置无效，保留当前配置", "file", e.Name, "error", err)
		}
	})
	v.WatchConfig()
	slog.Info("后台任务: 配置文件监听已启动。")
}

// algorithmReloader 记住上一次从文件得到的 algorithm 段，
// 与它比较来判断文件里的评分配置是否真的变了。
type algorithmReloader struct {
	mu    sync.Mutex
	last  domain.AlgorithmConfig
	live  func() domain.AlgorithmConfig
	apply func(context.Context, domain.AlgorithmConfig) error
}

func newAlgorithmReloader(fromFile domain.AlgorithmConfig, live func() domain.AlgorithmConfig,
	apply func(context.Context, domain.AlgorithmConfig) error) *algorithmReloader {
	return &algorithmReloader{last: contentOf(fromFile), live: live, apply: apply}
}

// reload 返回是否替换了运行中的配置
func (r *algorithmReloader) reload(ctx context.Context, v *viper.Viper) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := algorithmConfig(v)
	if err != nil {
		return false, err
	}
	next = contentOf(next)
	if equalAlgorithm(r.last, next) {
		// 文件的其它段有改动，algorithm 段没变：不覆盖运行期通过 API / CLI 做的修改
		return false, nil
	}

	current := contentOf(r.live())
	if equalAlgorithm(current, next) {
		r.last = next
		return false, nil
	}
	if !equalAlgorithm(current, r.last) {
		slog.Warn("配置文件的 algorithm 段已修改，将覆盖运行期修改过的评分配置")
	}
	if err := r.apply(ctx, next); err != nil {
		return false, err
	}
	r.last = next
	slog.Info("评分配置已热加载", "revision", r.live().Revision)
	return true, nil
}

// contentOf 去掉版本号与更新时间，只保留可比较的配置内容
func contentOf(cfg domain.AlgorithmConfig) domain.AlgorithmConfig {
	out := cfg.Clone()
	out.Revision = 0
	out.UpdatedAt = time.Time{}
	return out
}
