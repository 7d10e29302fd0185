package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/auth"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/comments"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/config"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/database"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/logging"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/server"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/users"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	config.LoadEnvFiles(os.Getenv("STAGETRACK_ENV"))

	rootCmd := &cobra.Command{
		Use:   "stagetrack-api",
		Short: "Production order tracking portal",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newAccountsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to call the API with credentials")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Portal cookie signing secret (overrides env)")
	cmd.PersistentFlags().Bool("secure-cookie", defaults.GetBool("portal.secure_cookie"), "Mark the portal cookie Secure")
	cmd.PersistentFlags().String("host-signing-secret", "", "Host session signing secret; enables host sessions")
	cmd.PersistentFlags().String("comments-backend", defaults.GetString("comments.backend"), "Comment store (database, redis)")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the redis comment store")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "portal.signing_secret", "signing-secret")
	bindFlag(cmd, "portal.secure_cookie", "secure-cookie")
	bindFlag(cmd, "host.signing_secret", "host-signing-secret")
	bindFlag(cmd, "comments.backend", "comments-backend")
	bindFlag(cmd, "redis.address", "redis-address")
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
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func newCommentStore(ctx context.Context, appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (comments.Store, func(), error) {
	if appConfig.CommentsBackend != config.CommentsBackendRedis {
		store, err := comments.NewOptionStore(db)
		return store, func() {}, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     appConfig.RedisAddress,
		Password: appConfig.RedisPassword,
		DB:       appConfig.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logger.Info("redis comment store connected", zap.String("address", appConfig.RedisAddress))
	store, err := comments.NewRedisStore(client)
	return store, func() { _ = client.Close() }, err
}

func newGate(appConfig config.AppConfig, accounts *users.Service, logger *zap.Logger) (*auth.Gate, error) {
	portalCookie, err := auth.NewPortalCookie(auth.PortalCookieConfig{
		SigningSecret: []byte(appConfig.PortalSigningSecret),
		CookieName:    appConfig.PortalCookieName,
		TTL:           appConfig.SessionTTL,
		RememberTTL:   appConfig.RememberTTL,
		Secure:        appConfig.PortalSecureCookie,
	})
	if err != nil {
		return nil, err
	}

	var hostSessions *auth.HostSessionValidator
	if appConfig.HostSessionEnabled() {
		hostSessions, err = auth.NewHostSessionValidator(auth.HostSessionConfig{
			SigningSecret: []byte(appConfig.HostSigningSecret),
			Issuer:        appConfig.HostIssuer,
			CookieName:    appConfig.HostCookieName,
		})
		if err != nil {
			return nil, err
		}
	}

	return auth.NewGate(auth.GateConfig{
		Accounts:     accounts,
		PortalCookie: portalCookie,
		HostSessions: hostSessions,
		Logger:       logger,
	})
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	accounts, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	gate, err := newGate(appConfig, accounts, logger)
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.ServiceConfig{
		Database:       db,
		Clock:          time.Now,
		Logger:         logger,
		AdminListLimit: appConfig.AdminListLimit,
		SearchLimit:    appConfig.SearchLimit,
	})
	if err != nil {
		return err
	}

	store, closeStore, err := newCommentStore(ctx, appConfig, db, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	commentService, err := comments.NewService(comments.ServiceConfig{
		Store:    store,
		Orders:   orderService,
		Accounts: accounts,
		Clock:    time.Now,
		Logger:   logger,
		Cap:      appConfig.CommentsCap,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Gate:           gate,
		Orders:         orderService,
		Comments:       commentService,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
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
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
