package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"relaybus-core/internal/app/server"
	"relaybus-core/internal/config/loader"
	"relaybus-core/internal/config/schema"
	"relaybus-core/internal/config/source"
	corelog "relaybus-core/internal/core/log"
)

// serveFlags serve 命令的覆盖参数，只有显式设置的参数才会覆盖配置
type serveFlags struct {
	listen   string
	nodeID   string
	engine   string
	logLevel string
	noBanner bool
}

func newServeCommand(configFile *string) *cobra.Command {
	flags := &serveFlags{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relaybus server",
		Long: `Start the relaybus server.

Configuration is layered: defaults, then the YAML file, then RELAYBUS_*
environment variables, then command-line flags.

Example:
  relaybus serve --listen :9000 --engine redis`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.NewServerBuilder(cfg).
				WithDefaults().
				WithConfigPath(source.FindConfigFile(*configFile)).
				Build(ctx)
			if err != nil {
				return err
			}

			if err := srv.Start(); err != nil {
				_ = srv.Stop()
				return err
			}

			// 显示启动信息横幅（服务启动之后，才有实际监听地址）
			if !flags.noBanner && isatty.IsTerminal(os.Stdout.Fd()) {
				srv.DisplayStartupBanner(cmd.OutOrStdout())
			}

			if err := srv.Run(ctx); err != nil {
				return err
			}
			corelog.Info("relaybus server exited gracefully")
			return nil
		},
	}

	flags.bind(serveCmd)
	return serveCmd
}

func (f *serveFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.listen, "listen", "l", "", "HTTP listen address (overrides server.listen)")
	fs.StringVar(&f.nodeID, "node-id", "", "Node ID (overrides node.id)")
	fs.StringVarP(&f.engine, "engine", "e", "", "Engine type: memory/redis/none (overrides engine.type)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug/info/warn/error (overrides log.level)")
	fs.BoolVar(&f.noBanner, "no-banner", false, "Do not print the startup banner")
}

// loadConfig 按优先级加载配置，命令行参数优先级最高
func loadConfig(cmd *cobra.Command, configFile string, flags *serveFlags) (*schema.Root, error) {
	l, err := loader.NewLoaderBuilder().
		WithConfigFile(configFile).
		WithOverrides(flags.overrides(cmd)).
		Build()
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// overrides 返回只作用于已设置参数的覆盖函数
func (f *serveFlags) overrides(cmd *cobra.Command) func(cfg *schema.Root) {
	if f == nil {
		return nil
	}
	changed := cmd.Flags().Changed
	return func(cfg *schema.Root) {
		if changed("listen") {
			cfg.Server.Listen = f.listen
		}
		if changed("node-id") {
			cfg.Node.ID = f.nodeID
		}
		if changed("engine") {
			cfg.Engine.Type = f.engine
		}
		if changed("log-level") {
			cfg.Log.Level = f.logLevel
		}
	}
}
