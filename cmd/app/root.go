package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shorturl-go/internal/app"
	"shorturl-go/internal/config"
	"shorturl-go/pkg/logging"
)

// cli 子命令共享的运行时状态，在 PersistentPreRunE 中初始化
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	level      zap.AtomicLevel
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "shorturl",
		Short:        "URL shortener service",
		Long:         "Shortens URLs with optional aliases, expiration, entry codes, QR codes and click analytics.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default ./configs/config.yaml or ./config.yaml)")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newCreateCmd(c),
		newStatsCmd(c),
		newListCmd(c),
		newCleanupCmd(c),
	)
	return root
}

func (c *cli) init() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.cfg, c.logger, c.level = cfg, logger, level
	return nil
}

// withApp 组装应用、执行 fn 并在结束后释放资源
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) (err error) {
	a, err := app.New(ctx, c.cfg, c.logger, c.level)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
