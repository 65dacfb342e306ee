package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carbon-quiz/internal/app"
	"carbon-quiz/internal/catalog"
	"carbon-quiz/internal/client"
	"carbon-quiz/internal/config"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/infra/memory"
	pgloader "carbon-quiz/internal/infra/postgres"
	redisstore "carbon-quiz/internal/infra/redis"
	"carbon-quiz/internal/scoring"
	"carbon-quiz/internal/session"
	transport "carbon-quiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Serve questions, scoring, the context mirror and websocket sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runServer(cmd.Context(), cfg, *port, log)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := RunMigrations(ctx, cfg, log); err != nil {
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	bank := catalog.Default()
	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(map[string][]domain.Question{
		catalog.DefaultBankID: bank.Questions,
	})
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionRepository
	if redisClient != nil {
		questions = redisstore.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, questionTTL)
	}

	var snapshots app.SnapshotStore
	if redisClient != nil {
		snapshots = redisstore.NewSnapshotStore(redisClient, redisTTL)
	} else {
		snapshots = memory.NewSnapshotStore(redisTTL)
	}

	service := app.NewQuizService(questions, snapshots, scoring.NewCalculator(bank), log,
		app.WithShuffle(cfg.ShuffleQuestions()))
	assistant := client.NewAssistant(cfg.Assistant.URL, config.TTLDuration(cfg.Assistant.Timeout, 30*time.Second))
	autoAdvance := config.TTLDuration(cfg.Client.AutoAdvance, session.DefaultAutoAdvance)
	wsHandler := transport.NewWSHandler(service, assistant, autoAdvance, log)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, wsHandler, transport.RouterConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Logger:         log,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", zap.String("addr", server.Addr),
			zap.Bool("redis", redisClient != nil), zap.Bool("postgres", pool != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	service.Wait()
	return err
}
