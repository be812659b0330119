package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"supportdesk/internal/auth"
	"supportdesk/internal/config"
	"supportdesk/internal/middleware"
	"supportdesk/internal/server"
	"supportdesk/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := telemetry.Setup("supportdesk")
	defer func() { _ = shutdown(context.Background()) }()

	st, err := openServerStore(ctx, cfg.StorageConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	tokens := auth.DefaultTokenConfig(cfg.JWTSecret)
	tokens.Expiry = cfg.TokenExpiry

	limiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, time.Minute)
	defer limiter.Stop()

	router := server.NewRouter(server.Deps{
		Store:        st,
		Auth:         auth.NewService(st, tokens),
		LoginLimiter: limiter,
	})
	return server.Run(ctx, cfg, router)
}
