package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phrasalgame/backend/internal/auth"
	"github.com/phrasalgame/backend/internal/config"
	"github.com/phrasalgame/backend/internal/contribution"
	"github.com/phrasalgame/backend/internal/database"
	"github.com/phrasalgame/backend/internal/events"
	"github.com/phrasalgame/backend/internal/game"
	"github.com/phrasalgame/backend/internal/ids"
	"github.com/phrasalgame/backend/internal/jobs"
	"github.com/phrasalgame/backend/internal/leaderboard"
	"github.com/phrasalgame/backend/internal/logging"
	"github.com/phrasalgame/backend/internal/phrases"
	"github.com/phrasalgame/backend/internal/players"
	"github.com/phrasalgame/backend/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "phrasal-api",
		Short: "Phrasal word game backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

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
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the leaderboard cache (empty disables)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("contribution-base-url", defaults.GetString("contribution.base_url"), "Base URL for shareable contribution links")
	cmd.PersistentFlags().String("sweep-schedule", defaults.GetString("jobs.sweep_schedule"), "Cron schedule for maintenance sweeps")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "contribution.base_url", "contribution-base-url")
	bindFlag(cmd, "jobs.sweep_schedule", "sweep-schedule")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var redisClient *redis.Client
	if appConfig.RedisAddress != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
		defer redisClient.Close()
	}

	idProvider := ids.NewUUIDProvider()
	sink := events.NewLogSink(logger)

	sessionManager := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})

	playerService, err := players.NewService(players.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	phraseService, err := phrases.NewService(phrases.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	leaderboardService, err := leaderboard.NewService(leaderboard.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
		Cache:      leaderboard.NewCache(redisClient),
	})
	if err != nil {
		return err
	}

	gameService, err := game.NewService(game.ServiceConfig{
		Database:    db,
		IDProvider:  idProvider,
		Logger:      logger,
		Leaderboard: leaderboardService,
		Sink:        sink,
	})
	if err != nil {
		return err
	}

	contributionService, err := contribution.NewService(contribution.ServiceConfig{
		Database:       db,
		IDProvider:     idProvider,
		Logger:         logger,
		PhraseService:  phraseService,
		Sink:           sink,
		DefaultTTL:     time.Duration(appConfig.ContributionTTLHours) * time.Hour,
		DefaultMaxUses: appConfig.ContributionMaxUses,
	})
	if err != nil {
		return err
	}

	sweeper, err := jobs.NewSweeper(jobs.SweeperConfig{
		Schedule:    appConfig.SweepSchedule,
		Links:       contributionService,
		Leaderboard: leaderboardService,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:            sessionManager,
		Players:             playerService,
		Phrases:             phraseService,
		Game:                gameService,
		Leaderboard:         leaderboardService,
		Contribution:        contributionService,
		Database:            db,
		Logger:              logger,
		ContributionBaseURL: appConfig.ContributionBaseURL,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
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
