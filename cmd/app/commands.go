package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shorturl-go/internal/app"
	"shorturl-go/internal/dto"
	"shorturl-go/internal/repository"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 等待中断信号以优雅关闭
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.withApp(ctx, func(a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := repository.OpenDB(c.cfg.DB, c.logger, c.level.Level())
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := repository.Migrate(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s database\n", c.cfg.DB.Driver)
			return nil
		},
	}
}

func newCreateCmd(c *cli) *cobra.Command {
	var (
		req     dto.ShortenRequest
		noQR    bool
		expires string
	)
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Shorten a URL",
		Example: `  shorturl create --url "https://example.com/docs" --alias docs --expires 2026-12-31T00:00:00Z`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if expires != "" {
				req.ExpiresAt = expires
			}
			if noQR {
				generate := false
				req.GenerateQR = &generate
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				resp, err := a.Service.Shorten(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&req.URL, "url", "", "the long URL to shorten")
	cmd.Flags().StringVar(&req.CustomAlias, "alias", "", "custom alias")
	cmd.Flags().StringVar(&expires, "expires", "", "expiration time (RFC3339 or epoch milliseconds)")
	cmd.Flags().StringVar(&req.EntryCode, "entry-code", "", "entry code required to follow the link")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "skip QR code rendering")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <code-or-alias>",
		Short: "Show click statistics for a short URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				stats, err := a.Service.GetStats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	var q dto.ListQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active short URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				page, err := a.Service.List(cmd.Context(), q)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), page)
			})
		},
	}
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "page size (max 100)")
	cmd.Flags().StringVar(&q.SortBy, "sort-by", "created_at", "created_at, click_count or last_accessed_at")
	cmd.Flags().StringVar(&q.Order, "order", "desc", "asc or desc")
	return cmd
}

func newCleanupCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Deactivate expired short URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Service.CleanupExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %d expired short URLs\n", n)
				return nil
			})
		},
	}
}
