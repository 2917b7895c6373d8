package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/config"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/game"
	"trivia-room-service/internal/infra/memory"
	pgloader "trivia-room-service/internal/infra/postgres"
	redisinfra "trivia-room-service/internal/infra/redis"
	transport "trivia-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestionSets())
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	questionTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	var questionRepo app.QuestionRepository
	if redisClient != nil {
		questionRepo = redisinfra.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		questionRepo = memory.NewQuestionRepository(loader, questionTTL)
	}

	var rooms app.RoomRepository
	if redisClient != nil {
		rooms = redisinfra.NewRoomStore(redisClient, redisTTL)
	} else {
		rooms = memory.NewRoomStore()
	}

	gameCfg := game.Config{
		RoundSeconds:    cfg.Game.RoundSeconds,
		PresenceTimeout: config.Duration(cfg.Game.PresenceTimeout, 25*time.Second),
		SweepInterval:   config.Duration(cfg.Game.SweepInterval, 5*time.Second),
		VibrateThrottle: config.Duration(cfg.Game.VibrateThrottle, 800*time.Millisecond),
	}

	service := app.NewRoomService(rooms, questionRepo, gameCfg, log)
	wsHandler := transport.NewWSHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia room service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestionSets provides demo content so a room can run without a
// database; production wires the Postgres loader instead.
func sampleQuestionSets() map[string]domain.QuestionSet {
	ten := 10.0
	return map[string]domain.QuestionSet{
		"demo": {
			ID: "demo",
			Questions: []domain.Question{
				{
					ID:      "q1",
					Type:    domain.TypeChoice,
					Prompt:  "Which planets have rings?",
					Options: []string{"Saturn", "Mars", "Uranus", "Venus"},
					Answers: []string{"Saturn", "Uranus"},
				},
				{
					ID:     "q2",
					Type:   domain.TypeEstimate,
					Prompt: "When was the first email sent?",
					Answers: []string{
						"1971",
					},
					Estimate: &domain.EstimateConfig{
						Unit:    domain.UnitYear,
						Scoring: &domain.EstimateScoring{Decay: domain.DecayLinear, ZeroAt: &ten},
					},
				},
				{
					ID:     "m1",
					Type:   domain.TypeMedia,
					Prompt: "Intermission",
					Media: []domain.MediaItem{
						{Kind: "video", Src: "media/intermission.mp4", Autoplay: true},
					},
				},
				{
					ID:     "q3",
					Type:   domain.TypeTapCount,
					Prompt: "Tap as many targets as you can!",
					Time:   15,
				},
			},
		},
	}
}
