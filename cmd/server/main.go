// cmd/server/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Corphon/StoryWriter/internal/app"
	"github.com/Corphon/StoryWriter/internal/auth"
	"github.com/Corphon/StoryWriter/internal/config"
	"github.com/Corphon/StoryWriter/internal/utils"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:     "storywriter",
		Short:   "StoryWriter - guided creative writing server",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(checkConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}

			logger, closeLog, err := utils.InitLogger(cfg.LogDir, cfg.DebugMode)
			if err != nil {
				return err
			}
			defer closeLog()

			application, err := app.New(cfg, logger)
			if err != nil {
				logger.Error("初始化失败", zap.Error(err))
				return err
			}
			defer application.Close()

			return serve(cmd.Context(), application)
		},
	}
}

// serve 运行 HTTP 服务，收到信号后在超时内优雅关闭
func serve(parent context.Context, application *app.App) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := application.Logger
	srv := &http.Server{
		Addr:              ":" + application.Config.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// 监听失败只影响热加载
		if err := application.Accounts.Run(gctx); err != nil {
			logger.Warn("accounts hot reload disabled", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("服务器强制关闭: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for the accounts file",
		Long: `Print a bcrypt hash suitable for the password_hash field of the accounts file.
Without an argument the password is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate environment and accounts file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			accounts, err := config.LoadAccounts(cfg.AccountsFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := [][2]string{
				{"port", cfg.Port},
				{"data dir", cfg.DataDir},
				{"dify base url", cfg.DifyBaseURL},
				{"dify timeout", cfg.DifyTimeout.String()},
				{"dify credential", credentialKind(cfg)},
				{"accounts", fmt.Sprint(len(accounts.Accounts))},
			}
			for _, row := range rows {
				fmt.Fprintf(out, "%-16s %s\n", row[0]+":", row[1])
			}
			return nil
		},
	}
}

func credentialKind(cfg *config.Config) string {
	switch {
	case cfg.DifyAPIKey != "":
		return "api key"
	case cfg.DifyFallbackAppID != "":
		return "fallback app id"
	default:
		return "missing"
	}
}
