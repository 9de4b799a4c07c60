package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront/backend/internal/config"
	"storefront/backend/internal/domain"
	"storefront/backend/internal/logging"
	"storefront/backend/internal/report"
	"storefront/backend/internal/service"
)

func newReportCmd() *cobra.Command {
	var format, from, to string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the financial report of the configured repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger, err := logging.New(cfg.Env)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			repo, closers, err := openRepository(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				for _, closeFn := range closers {
					if err := closeFn(); err != nil {
						logger.Warn("close error", zap.Error(err))
					}
				}
			}()

			svc := service.New(repo, nil, logger)
			actor := domain.Actor{Username: "cli", Role: domain.RoleAdmin}
			fin, err := svc.FinancialReport(service.WithActor(ctx, actor), from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "csv":
				body, err := report.CSV(fin)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(out, body)
				return err
			case "json", "":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(fin)
			default:
				return fmt.Errorf("unsupported format %q (want json or csv)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	cmd.Flags().StringVar(&from, "from", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day to include (YYYY-MM-DD)")
	return cmd
}
