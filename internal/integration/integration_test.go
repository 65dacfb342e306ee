package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"carbon-quiz/internal/app"
	"carbon-quiz/internal/catalog"
	"carbon-quiz/internal/domain"
	pgloader "carbon-quiz/internal/infra/postgres"
	pgmigrations "carbon-quiz/internal/infra/postgres/migrations"
	infraredis "carbon-quiz/internal/infra/redis"
	"carbon-quiz/internal/scoring"
	"carbon-quiz/internal/session"
)

func TestQuizSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuestionLoader(pool)
	bank := catalog.Default()

	stored, err := loader.LoadQuestions(ctx, catalog.DefaultBankID)
	if err != nil {
		t.Fatalf("load seeded bank: %v", err)
	}
	if len(stored) != len(bank.Questions) || stored[0].ID != bank.Questions[0].ID {
		t.Fatalf("seeded bank out of order: got %d questions", len(stored))
	}
	if _, err := loader.LoadQuestions(ctx, "missing"); !errors.Is(err, domain.ErrBankNotFound) {
		t.Fatalf("expected bank not found, got %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	questions := infraredis.NewQuestionRepository(redisClient, loader, 5*time.Minute)
	snapshots := infraredis.NewSnapshotStore(redisClient, 5*time.Minute)
	service := app.NewQuizService(questions, snapshots, scoring.NewCalculator(bank), nil, app.WithShuffle(false))

	sess := service.NewSession(session.WithAutoAdvance(0))
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := range bank.Questions {
		if err := sess.Select(0); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if err := sess.Next(ctx); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if sess.Screen() != domain.ScreenResults {
		t.Fatalf("expected results screen, got %s", sess.Screen())
	}
	id := sess.Identity()
	sess.Close()
	service.Wait()

	snap, err := service.Context(ctx, id)
	if err != nil {
		t.Fatalf("mirrored context: %v", err)
	}
	if snap.Screen != domain.ScreenResults || snap.Results == nil || len(snap.Results.Categories) != len(domain.Categories) {
		t.Fatalf("unexpected mirrored snapshot %+v", snap)
	}

	if n, err := redisClient.Exists(ctx, "quiz:bank:"+catalog.DefaultBankID).Result(); err != nil || n != 1 {
		t.Fatalf("expected cached bank in redis, n=%d err=%v", n, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "carbon", "POSTGRES_PASSWORD": "carbonpass", "POSTGRES_DB": "carbon"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://carbon:carbonpass@%s:%s/carbon?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a second run must be a no-op
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	if !group.IsZero() {
		t.Fatalf("expected no pending migrations, got %s", group)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
