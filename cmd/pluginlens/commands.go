// file: cmd/pluginlens/commands.go

package main

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/observe"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

// withApp 为一次性命令装配组件。日志只输出到 stderr，stdout 留给命令结果。
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	v, cfg, err := opts.load()
	if err != nil {
		return err
	}
	level := cfg.Server.LogLevel
	if opts.logLevel == "" {
		level = "WARN"
	}
	slog.SetDefault(observe.NewLogger(cmd.ErrOrStderr(), level))

	a, err := buildApp(cmd.Context(), v, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type queryFlags struct {
	page          int
	pageSize      int
	sort          string
	order         string
	minInstalls   int64
	maxInstalls   int64
	updatedWithin string
	minUsability  float64
	minHealth     int
	minRating     float64
	unrated       bool
	details       bool
	asJSON        bool
}

// toRequest 只有显式设置过的 flag 才会成为过滤条件
func (f *queryFlags) toRequest(cmd *cobra.Command, search string) domain.QueryRequest {
	req := domain.QueryRequest{
		Search:      search,
		Page:        f.page,
		PageSize:    f.pageSize,
		Sort:        domain.SortSpec{Field: domain.SortField(f.sort), Direction: domain.SortDirection(f.order)},
		WithDetails: f.details,
	}
	flags := cmd.Flags()
	if flags.Changed("min-installs") {
		req.Filter.MinInstalls = &f.minInstalls
	}
	if flags.Changed("max-installs") {
		req.Filter.MaxInstalls = &f.maxInstalls
	}
	if flags.Changed("min-usability") {
		req.Filter.MinUsability = &f.minUsability
	}
	if flags.Changed("min-health") {
		req.Filter.MinHealth = &f.minHealth
	}
	if flags.Changed("min-rating") {
		req.Filter.MinRating = &f.minRating
	}
	req.Filter.UpdatedWithin = domain.RecencyBucket(f.updatedWithin)
	req.Filter.Unrated = f.unrated
	return req
}

func buildQueryCmd(opts *rootOptions) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query [search terms...]",
		Short: "搜索插件并按评分过滤、排序",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := f.toRequest(cmd, strings.Join(args, " "))
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.service.QueryPlugins(ctx, req)
				if res == nil {
					return err
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "警告: %v\n", err)
				}
				if f.asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderQueryResult(res))
				return nil
			})
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.page, "page", 1, "页码")
	fl.IntVar(&f.pageSize, "per-page", 24, "每页条数 (1-250)")
	fl.StringVar(&f.sort, "sort", "", "排序字段: relevance|installs|rating|updated|usability|health|name")
	fl.StringVar(&f.order, "order", "", "排序方向: asc|desc")
	fl.Int64Var(&f.minInstalls, "min-installs", 0, "最少活跃安装量")
	fl.Int64Var(&f.maxInstalls, "max-installs", 0, "最多活跃安装量")
	fl.StringVar(&f.updatedWithin, "updated-within", "", "最近更新: week|month|quarter|half-year|year")
	fl.Float64Var(&f.minUsability, "min-usability", 0, "最低易用性评分 (1-5)")
	fl.IntVar(&f.minHealth, "min-health", 0, "最低健康分 (0-100)")
	fl.Float64Var(&f.minRating, "min-rating", 0, "最低用户评分 (0-5)")
	fl.BoolVar(&f.unrated, "unrated", false, "只显示没有评分的插件")
	fl.BoolVar(&f.details, "details", false, "为缺少支持论坛数据的插件拉取详情")
	fl.BoolVar(&f.asJSON, "json", false, "以 JSON 输出")
	return cmd
}

func buildCacheCmd(opts *rootOptions) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "缓存管理",
	}

	var kind, prefix string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "清除缓存，不带参数时清空全部",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var n int
				if prefix != "" {
					n = a.service.InvalidateCachePrefix(prefix)
				} else {
					var err error
					if n, err = a.service.InvalidateCache(kind); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "已清除 %d 条缓存\n", n)
				return nil
			})
		},
	}
	clearCmd.Flags().StringVar(&kind, "kind", "", "缓存类别: plugin-metadata|calculated-scores|search-results")
	clearCmd.Flags().StringVar(&prefix, "prefix", "", "按 key 前缀清除")
	clearCmd.MarkFlagsMutuallyExclusive("kind", "prefix")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "显示当前进程的缓存命中统计",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				fmt.Fprintln(cmd.OutOrStdout(), renderCacheStats(a.service.CacheStats()))
				return nil
			})
		},
	}

	cacheCmd.AddCommand(clearCmd, statsCmd)
	return cacheCmd
}

func buildConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "评分配置",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "显示当前生效的评分配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				cfg := a.service.AlgorithmConfig()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), cfg)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderAlgorithmConfig(cfg))
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")

	var usability, health map[string]int
	setCmd := &cobra.Command{
		Use:     "set-weights",
		Short:   "替换一组权重并持久化，例如 --usability user_rating=40,rating_count=20,installs=25,support=15",
		Example: "pluginlens config set-weights --health update_frequency=20,compatibility=20,support=20,recency=30,issues=10",
		RunE: func(cmd *cobra.Command, args []string) error {
			update := domain.WeightsUpdate{}
			if cmd.Flags().Changed("usability") {
				update.Usability = domain.WeightMap(usability)
			}
			if cmd.Flags().Changed("health") {
				update.Health = domain.WeightMap(health)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.service.UpdateAlgorithmConfig(ctx, update); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderAlgorithmConfig(a.service.AlgorithmConfig()))
				return nil
			})
		},
	}
	setCmd.Flags().StringToIntVar(&usability, "usability", nil, "易用性权重 name=weight,...")
	setCmd.Flags().StringToIntVar(&health, "health", nil, "健康分权重 name=weight,...")

	configCmd.AddCommand(showCmd, setCmd)
	return configCmd
}
