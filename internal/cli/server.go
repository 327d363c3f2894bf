package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quizastrous-server/internal/app"
	"quizastrous-server/internal/config"
	"quizastrous-server/internal/infra/memory"
	natsresults "quizastrous-server/internal/infra/nats"
	pgloader "quizastrous-server/internal/infra/postgres"
	redisstore "quizastrous-server/internal/infra/redis"
	"quizastrous-server/internal/round"
	transport "quizastrous-server/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	bank, err := app.LoadBank(ctx, bankLoader(cfg, pool, redisClient, redisTTL))
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	roundCfg, err := cfg.Game.RoundConfig(clock.Now(), len(bank))
	if err != nil {
		return err
	}
	engine, err := round.NewEngine(roundCfg)
	if err != nil {
		return err
	}
	opts, err := cfg.Game.Options()
	if err != nil {
		return err
	}

	hubCfg := transport.DefaultHubConfig()
	hubCfg.WriteTimeout = config.Duration(cfg.Server.WriteTimeout, hubCfg.WriteTimeout)
	hub := transport.NewHub(hubCfg)
	defer hub.Close()

	game, err := app.NewGame(engine, bank, clock, opts, hub)
	if err != nil {
		return err
	}

	heartbeat := app.NewHeartbeat(game, clock, hub, cfg.Game.Heartbeat())
	if redisClient != nil {
		heartbeat.WithSnapshotSink(redisstore.NewSnapshotMirror(redisClient, redisTTL))
	}
	if cfg.NATS.URL != "" {
		nc, err := natsresults.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Drain()
		heartbeat.WithResultSink(natsresults.NewResultPublisher(nc, cfg.NATS.Subject))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go heartbeat.Run(runCtx)

	api := transport.NewAPI(game, hub)
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(api.Routes())

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", finalPort).
			Time("epoch", roundCfg.Epoch).
			Int("questions", len(bank)).
			Msg("starting trivia server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-runCtx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// bankLoader picks the question source: Postgres when configured, otherwise config questions, then
// the built-in bank. An empty Postgres table falls back to the same static bank. Redis fronts
// whichever source is chosen.
func bankLoader(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client, ttl time.Duration) app.BankLoader {
	static := memory.NewStaticBankLoader(memory.DefaultBank())
	if len(cfg.Questions) > 0 {
		static = memory.NewStaticBankLoader(cfg.Questions)
	}
	var loader app.BankLoader = static
	if pool != nil {
		loader = app.FallbackLoader{Primary: pgloader.NewBankLoader(pool), Fallback: static}
	}
	if redisClient != nil {
		loader = redisstore.NewBankCache(redisClient, loader, ttl)
	}
	return loader
}
