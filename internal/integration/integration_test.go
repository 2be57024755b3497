package integration

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"sync"
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

	"theory-battle/internal/app"
	"theory-battle/internal/domain"
	pginfra "theory-battle/internal/infra/postgres"
	pgmigrations "theory-battle/internal/infra/postgres/migrations"
	infraredis "theory-battle/internal/infra/redis"
	"theory-battle/internal/logging"
)

// Two players on separate relay instances share one Redis, draw questions
// from Postgres and both end up in the battle history.
func TestBattleAcrossInstancesEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pginfra.NewQuestionLoader(pool)
	if err := loader.SaveQuestions(ctx, sampleQuestions(6)); err != nil {
		t.Fatalf("seed questions: %v", err)
	}
	store := pginfra.NewMatchStore(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()
	questions := infraredis.NewQuestionRepository(redisClient, loader, 5*time.Minute)

	cfg := app.Config{
		QuestionCount: 5,
		FallbackWait:  20 * time.Second,
		RoundDelay:    50 * time.Millisecond,
		StartTimeout:  10 * time.Second,
		PoolRetry:     100 * time.Millisecond,
	}
	log := logging.Discard()
	newCoordinator := func(seed int64) *app.Coordinator {
		hub := infraredis.NewHub(redisClient, 3*time.Second, log)
		bot := app.NewBot(app.BotConfig{}, rand.New(rand.NewSource(seed)))
		return app.NewCoordinator(hub, questions, bot, cfg, log, app.WithRecorder(store))
	}

	players := []domain.Player{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}}
	coordinators := []*app.Coordinator{newCoordinator(1), newCoordinator(2)}
	results := make([]domain.BattleResult, 2)
	errs := make([]error, 2)

	playCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	var wg sync.WaitGroup
	for i := range players {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// u1 always answers with the first option, u2 with the second.
			answer := app.AnswerFunc(func(context.Context, app.BattleState) (int, error) { return i, nil })
			results[i], errs[i] = coordinators[i].Play(playCtx, players[i], answer)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("player %s: %v", players[i].ID, err)
		}
	}
	if results[0].BattleID != "battle_u1_u2" || results[1].BattleID != results[0].BattleID {
		t.Fatalf("unexpected battle ids %q %q", results[0].BattleID, results[1].BattleID)
	}
	if results[0].PlayerScore != results[1].OpponentScore || results[0].OpponentScore != results[1].PlayerScore {
		t.Fatalf("scores disagree: %+v vs %+v", results[0], results[1])
	}
	if results[0].TotalQuestions != 5 || results[0].PlayerScore+results[0].OpponentScore != 5 {
		t.Fatalf("every question has exactly one correct player, got %+v", results[0])
	}

	for _, p := range players {
		records, err := store.ListBattles(ctx, p.ID, 10)
		if err != nil {
			t.Fatalf("list battles: %v", err)
		}
		if len(records) != 1 || records[0].BattleID != "battle_u1_u2" {
			t.Fatalf("expected one recorded battle for %s, got %+v", p.ID, records)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "battle", "POSTGRES_PASSWORD": "battlepass", "POSTGRES_DB": "battledb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://battle:battlepass@%s:%s/battledb?sslmode=disable", host, port.Port())
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

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
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
}

// sampleQuestions builds two-option questions; option 0 is always right.
func sampleQuestions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:            fmt.Sprintf("it-%02d", i),
			Text:          fmt.Sprintf("Integration question %d", i),
			Options:       []domain.Option{{Text: "right"}, {Text: "wrong"}},
			CorrectAnswer: 0,
			Category:      "Rules of the road",
		}
	}
	return qs
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
