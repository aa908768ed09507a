package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	redisinfra "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logger"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			return runServer(cmd.Context(), cfg, log, *port)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, log *logger.Logger, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
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

	conns, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer conns.Close()

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if conns.pool != nil {
		loader = postgres.NewQuizLoader(conns.pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if conns.redis != nil {
		quizzes = redisinfra.NewQuizCache(conns.redis, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}

	attempts, err := conns.attemptRepository(cfg)
	if err != nil {
		return err
	}
	if cfg.AttemptStore() == config.StoreMemory {
		log.Warn("attempts are kept in memory and lost on restart")
	}

	service := app.NewAttemptService(attempts, quizzes, log)
	coordinator := app.NewCoordinator(service, log)
	wsHandler := transport.NewWSHandler(coordinator, log, transport.WSOptions{
		Autosave:       config.Duration(cfg.Session.Autosave, 30*time.Second),
		AbandonTimeout: config.Duration(cfg.Session.AbandonTimeout, 5*time.Second),
	})

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ws", wsHandler.ServeWS)
	transport.NewRESTHandler(service, log).Register(router)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting quiz attempt service", "port", finalPort, "attempt_store", cfg.AttemptStore())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		log.Error("server stopped", "error", err)
		return fmt.Errorf("listen on :%s: %w", finalPort, err)
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes serves demo content when no Postgres content store is configured.
func sampleQuizzes() map[string]domain.QuizDefinition {
	limit := 10
	return map[string]domain.QuizDefinition{
		"quiz-1": {
			ID:                  "quiz-1",
			Title:               "Arithmetic warm-up",
			TimeLimitMinutes:    &limit,
			PassingScorePercent: 50,
			Status:              domain.QuizPublished,
			Questions: []domain.Question{
				{
					ID:         "q1",
					Text:       "What is 2 + 2?",
					PointValue: 1,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", IsCorrect: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:         "q2",
					Text:       "What is 3 x 3?",
					PointValue: 2,
					Options: []domain.Option{
						{ID: "o1", Text: "9", IsCorrect: true},
						{ID: "o2", Text: "6"},
					},
				},
			},
		},
	}
}
