// file: cmd/pluginlens/main.go

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "v0.3.0"

// rootOptions 全部子命令共享的参数
type rootOptions struct {
	configPath string
	logLevel   string
}

// load 读取配置。命令行 --log-level 优先于配置文件。
func (o *rootOptions) load() (*viper.Viper, Config, error) {
	v, err := newViper(o.configPath)
	if err != nil {
		return nil, Config{}, err
	}
	if o.logLevel != "" {
		v.Set("server.log_level", o.logLevel)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, Config{}, err
	}
	return v, cfg, nil
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "pluginlens",
		Short:        "WordPress 插件目录的评分与筛选服务",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "配置文件路径，留空则只使用默认值与 PLUGINLENS_ 环境变量")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别 (DEBUG/INFO/WARN/ERROR)")

	rootCmd.AddCommand(
		buildServeCmd(opts),
		buildQueryCmd(opts),
		buildCacheCmd(opts),
		buildConfigCmd(opts),
		buildTokenCmd(opts),
	)
	return rootCmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	err := buildRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
