package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MarcoPoloResearchLab/lantern/internal/auth"
	"github.com/MarcoPoloResearchLab/lantern/internal/codes"
	"github.com/MarcoPoloResearchLab/lantern/internal/config"
	"github.com/MarcoPoloResearchLab/lantern/internal/database"
	"github.com/MarcoPoloResearchLab/lantern/internal/logging"
	"github.com/MarcoPoloResearchLab/lantern/internal/lookup"
	"github.com/MarcoPoloResearchLab/lantern/internal/metrics"
	"github.com/MarcoPoloResearchLab/lantern/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/lantern/internal/server"
	"github.com/MarcoPoloResearchLab/lantern/internal/stories"
)

var (
	cfgFile string
)

func main() {
	_ = godotenv.Load(".env")

	rootCmd := &cobra.Command{
		Use:   "lantern-api",
		Short: "Lantern anonymous story service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newHashPasswordCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("ratelimit-backend", defaults.GetString("ratelimit.backend"), "Rate limit backend (memory, redis)")
	cmd.PersistentFlags().String("redis-address", "", "Redis address for the redis rate limit backend")
	cmd.PersistentFlags().Bool("secure-cookies", true, "Mark admin session cookies as Secure")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "ratelimit.backend", "ratelimit-backend")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "http.secure_cookies", "secure-cookies")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newHashPasswordCommand prints the Argon2id digest to place in
// admin.password_hash. The password is read from stdin so it stays out of
// shell history.
func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an admin password read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := viper.GetViper()
			hasher, err := codes.NewHasher(codes.HashParams{
				MemoryKiB:   settings.GetUint32("hash.memory_kib"),
				Iterations:  settings.GetUint32("hash.iterations"),
				Parallelism: uint8(settings.GetUint("hash.parallelism")),
			})
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			digest, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), digest)
			return err
		},
	}
}

func readPassword(input io.Reader) (string, error) {
	line, err := bufio.NewReader(input).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var (
		recorder       *metrics.Recorder
		metricsHandler http.Handler
	)
	if appConfig.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewRecorder(registry)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	hasher, err := codes.NewHasher(appConfig.Hash)
	if err != nil {
		return err
	}

	resolver, err := lookup.NewResolver(lookup.Config{
		Source:        stories.NewCandidateStore(db),
		Hasher:        hasher,
		Throttle:      rate.NewLimiter(rate.Limit(appConfig.LookupGlobalRPS), appConfig.LookupGlobalBurst),
		Observer:      recorder,
		Logger:        logger,
		MaxCandidates: appConfig.LookupMaxCandidates,
	})
	if err != nil {
		return err
	}

	storiesService, err := stories.NewService(stories.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: stories.NewUUIDProvider(),
		Logger:     logger,
		Hasher:     hasher,
		Resolver:   resolver,
		Recorder:   recorder,
		Pool: stories.PoolPolicy{
			MaxApprovedNotes: appConfig.PoolMaxApprovedNotes,
			CandidateWindow:  appConfig.PoolCandidateWindow,
		},
		AutoApproveStories: appConfig.AutoApproveStories,
		AutoApproveNotes:   appConfig.AutoApproveNotes,
	})
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := newLimiter(appConfig)
	if err != nil {
		return err
	}
	defer closeLimiter()

	sessionIssuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.AdminSigningSecret),
		TTL:           appConfig.AdminSessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.AdminSigningSecret),
		CookieName:    appConfig.AdminCookieName,
	})
	if err != nil {
		return err
	}
	if appConfig.AdminPasswordHash == "" {
		logger.Warn("admin.password_hash is empty; admin login is disabled")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Stories:           storiesService,
		Limiter:           limiter,
		Policies:          appConfig.Policies,
		SessionIssuer:     sessionIssuer,
		SessionValidator:  sessionValidator,
		PasswordVerifier:  hasher,
		AdminPasswordHash: appConfig.AdminPasswordHash,
		AllowedOrigins:    appConfig.AllowedOrigins,
		SecureCookies:     appConfig.SecureCookies,
		Metrics:           recorder,
		MetricsHandler:    metricsHandler,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("ratelimit_backend", appConfig.RateLimitBackend),
			zap.Bool("metrics", appConfig.MetricsEnabled))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newLimiter(appConfig config.AppConfig) (ratelimit.Limiter, func(), error) {
	if appConfig.RateLimitBackend != config.BackendRedis {
		return ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{}), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     appConfig.RedisAddress,
		Password: appConfig.RedisPassword,
	})
	limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
		Client:    client,
		KeyPrefix: appConfig.RedisKeyPrefix,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return limiter, func() { _ = client.Close() }, nil
}
