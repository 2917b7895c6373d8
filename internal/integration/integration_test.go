package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/game"
	pgloader "trivia-room-service/internal/infra/postgres"
	pgmigrations "trivia-room-service/internal/infra/postgres/migrations"
	infraredis "trivia-room-service/internal/infra/redis"
)

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(any) {}

type fakeConn struct {
	id   string
	role game.Role
}

func (c fakeConn) ID() string      { return c.id }
func (c fakeConn) Role() game.Role { return c.role }
func (fakeConn) Send(any) error    { return nil }

func TestRoomRoundTripEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestionSet(t, ctx, pgURL, sampleSet())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuestionLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	questionRepo := infraredis.NewQuestionRepository(redisClient, loader, 5*time.Minute)
	roomStore := infraredis.NewRoomStore(redisClient, 5*time.Minute)
	service := app.NewRoomService(roomStore, questionRepo, game.Config{}, zerolog.Nop())

	room, err := service.Room(ctx, "game-night", nopBroadcaster{})
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	defer room.Close()

	if exists, err := redisClient.Exists(ctx, "room:live:game-night").Result(); err != nil || exists != 1 {
		t.Fatalf("expected liveness marker, exists=%d err=%v", exists, err)
	}

	admin := fakeConn{id: "conn-admin", role: game.RoleAdmin}
	player := fakeConn{id: "conn-player", role: game.RolePlayer}
	room.HandleConnect(player)

	room.HandleMessage([]byte(`{"type":"join","playerId":"u1","name":"Alice"}`), player)
	room.HandleMessage([]byte(`{"type":"admin_start"}`), admin)

	snap := room.Snapshot()
	if snap.Status != domain.StatusQuestion || snap.Question == nil || snap.Question.ID != "q1" {
		t.Fatalf("expected q1 live, got %+v", snap)
	}
	if snap.Question.Answers != nil {
		t.Fatalf("answers leaked into the live broadcast")
	}

	room.HandleMessage([]byte(`{"type":"submit_answer","answer":["4"]}`), player)
	room.HandleMessage([]byte(`{"type":"admin_finish_round"}`), admin)

	snap = room.Snapshot()
	if snap.Status != domain.StatusReview {
		t.Fatalf("expected review, got %v", snap.Status)
	}
	if got := snap.Players["u1"].Score; got != 10 {
		t.Fatalf("expected 10 points, got %d", got)
	}

	// The second resolve is served from the Redis question cache.
	if _, err := service.Room(ctx, "game-night", nopBroadcaster{}); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if exists, err := redisClient.Exists(ctx, "questions:game-night").Result(); err != nil || exists != 1 {
		t.Fatalf("expected cached question set, exists=%d err=%v", exists, err)
	}

	room.HandleMessage([]byte(`{"type":"admin_remove_all"}`), admin)
	service.Release("game-night")
	if exists, err := redisClient.Exists(ctx, "room:live:game-night").Result(); err != nil || exists != 0 {
		t.Fatalf("expected liveness marker cleared, exists=%d err=%v", exists, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
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
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
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

func seedQuestionSet(t *testing.T, ctx context.Context, dsn string, set domain.QuestionSet) {
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

	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal set: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO question_sets (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, set.ID, string(data)); err != nil {
		t.Fatalf("insert set: %v", err)
	}
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID: "game-night",
		Questions: []domain.Question{
			{
				ID:      "q1",
				Type:    domain.TypeChoice,
				Prompt:  "What is 2 + 2?",
				Options: []string{"3", "4", "5"},
				Answers: []string{"4"},
				Time:    30,
			},
			{
				ID:     "m1",
				Type:   domain.TypeMedia,
				Prompt: "Halftime",
				Media:  []domain.MediaItem{{Kind: "image", Src: "media/halftime.png"}},
			},
		},
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
