package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/dinear/service-api/internal/auth"
	"github.com/ovaphlow/dinear/service-api/internal/config"
	"github.com/ovaphlow/dinear/service-api/internal/dish"
	dishrepo "github.com/ovaphlow/dinear/service-api/internal/dish/repo"
	"github.com/ovaphlow/dinear/service-api/internal/httpx"
	"github.com/ovaphlow/dinear/service-api/internal/qr"
	"github.com/ovaphlow/dinear/service-api/internal/ratelimit"
	"github.com/ovaphlow/dinear/service-api/internal/router"
	"github.com/ovaphlow/dinear/service-api/internal/upload"
	"github.com/ovaphlow/dinear/service-api/internal/user"
	userrepo "github.com/ovaphlow/dinear/service-api/internal/user/repo"
	"github.com/ovaphlow/dinear/service-api/pkg/database"
	"github.com/ovaphlow/dinear/service-api/pkg/utilities"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

// newStorage picks the asset backend. The returned directory is non-empty only
// for local storage, which the router then serves under /uploads/.
func newStorage(ctx context.Context, cfg *config.Config) (upload.Storage, string, error) {
	if cfg.StorageDriver == config.StorageS3 {
		st, err := upload.NewS3Storage(ctx, upload.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
		return st, "", err
	}
	st, err := upload.NewLocalStorage(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return st, st.Root(), nil
}

func newLimiters(cfg *config.Config, store ratelimit.Store, re *httpx.Responder, sugar *zap.SugaredLogger) router.Limiters {
	opts := func(msg string) []ratelimit.Option {
		return []ratelimit.Option{ratelimit.WithMessage(msg), ratelimit.WithResponder(re), ratelimit.WithLogger(sugar)}
	}
	return router.Limiters{
		Global: ratelimit.New("global", store, cfg.RateLimitWindow, cfg.RateLimitMax, opts(ratelimit.MsgGlobal)...),
		Auth:   ratelimit.New("auth", store, cfg.RateLimitWindow, cfg.AuthRateLimit, opts(ratelimit.MsgAuth)...),
		Dish:   ratelimit.New("dish", store, cfg.RateLimitWindow, cfg.DishRateLimit, opts(ratelimit.MsgDish)...),
	}
}

func serve(ctx context.Context) error {
	sugar := logger.Sugar()
	sugar.Infow("starting dinear api", "env", cfg.Env, "storage", cfg.StorageDriver)
	if cfg.GeneratedSecret {
		sugar.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}

	db, err := database.Connect(cfg.Database())
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		return fmt.Errorf("id generator: %w", err)
	}
	storage, uploadDir, err := newStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	re := httpx.NewResponder(sugar, cfg.IsDevelopment())
	tokens := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.JWTExpiresIn)

	userSvc := user.NewService(userrepo.NewUserRepo(db), user.BcryptHasher{Cost: user.DefaultBcryptCost}, ids, sugar)
	uploader := upload.NewUploader(storage, cfg.MaxFileSize, sugar)
	dishSvc := dish.NewService(dishrepo.NewDishRepo(db), uploader, qr.NewGenerator(), ids, cfg.ClientURL, sugar)

	store := ratelimit.NewMemoryStore(time.Minute)
	defer store.Close()

	handler := router.RegisterRoutes(router.Options{
		Logger:         sugar,
		Responder:      re,
		Auth:           auth.NewAuthenticator(tokens, userSvc, re, sugar),
		Users:          user.NewHandler(userSvc, tokens, re, sugar),
		Dishes:         dish.NewHandler(dishSvc, uploader, re, sugar),
		Limiters:       newLimiters(cfg, store, re, sugar),
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.AllowedOrigins,
		AllowAnyOrigin: cfg.IsDevelopment(),
		TrustProxy:     cfg.TrustProxy,
		UploadDir:      uploadDir,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", srv.Addr, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	sugar.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
	return nil
}
