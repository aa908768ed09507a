package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/postgres"
	infraredis "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logger"
)

func TestAttemptLifecycleOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizzes := infraredis.NewQuizCache(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)
	service := app.NewAttemptService(postgres.NewAttemptStore(pool), quizzes, logger.Nop())

	ids := concurrentStarts(t, ctx, service, "s1", 6)
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected one shared attempt, got %v", ids)
		}
	}
	attemptID := ids[0]

	saved, err := service.SaveProgress(ctx, attemptID, "s1", map[string]any{"q1": "2"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Answers["q1"].SelectedOptionID != "2" {
		t.Fatalf("expected saved answer, got %+v", saved.Answers)
	}

	results := make([]error, 5)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = service.Submit(ctx, attemptID, "s1", map[string]any{"q2": map[string]any{"selectedOptionId": 1}})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAlreadyCompleted):
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one submit to win, got %d", succeeded)
	}

	final, err := service.Get(ctx, attemptID, "s1", domain.RoleStudent)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Score == nil || *final.Score != 3 || final.Passed == nil || !*final.Passed {
		t.Fatalf("expected full marks and pass, got %+v", final)
	}

	if _, err := service.Start(ctx, "s1", "quiz-1"); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected already completed on restart, got %v", err)
	}

	removed, err := service.ResetAttempts(ctx, domain.RoleAdmin, "s1", "quiz-1")
	if err != nil || removed != 1 {
		t.Fatalf("reset: removed=%d err=%v", removed, err)
	}
	fresh, err := service.Start(ctx, "s1", "quiz-1")
	if err != nil {
		t.Fatalf("start after reset: %v", err)
	}
	if fresh.ID == attemptID {
		t.Fatalf("expected new attempt after reset")
	}
}

func TestRedisAttemptStoreSharesOneActiveAttempt(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizzes := infraredis.NewQuizCache(redisClient, staticLoader{quiz: sampleQuiz()}, time.Minute)
	service := app.NewAttemptService(infraredis.NewAttemptStore(redisClient), quizzes, logger.Nop())

	ids := concurrentStarts(t, ctx, service, "s2", 6)
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected one shared attempt, got %v", ids)
		}
	}

	res, err := service.Submit(ctx, ids[0], "s2", map[string]any{"q1": "1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 0 || res.IsPassing {
		t.Fatalf("expected wrong answer to score zero, got %+v", res)
	}
	_, err = service.Submit(ctx, ids[0], "s2", nil)
	if id, ok := domain.ExistingAttemptID(err); !ok || id != ids[0] {
		t.Fatalf("expected already completed for %s, got %v", ids[0], err)
	}
}

func TestPostgresStoreReportsCompletedAttemptOfPair(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewAttemptStore(pool)

	started := time.Now().UTC()
	if err := store.Insert(ctx, domain.Attempt{ID: "a1", StudentID: "s3", QuizID: "quiz-1", StartedAt: started}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.UpdateIfActive(ctx, "a1", app.AttemptPatch{
		Completion: &domain.Completion{CompletedAt: started, Score: 1, TotalPossibleScore: 3},
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	err = store.Insert(ctx, domain.Attempt{ID: "a2", StudentID: "s3", QuizID: "quiz-1", StartedAt: started})
	if !errors.Is(err, domain.ErrActiveAttemptExists) {
		t.Fatalf("expected insert after completion refused, got %v", err)
	}

	// A row written outside the store must not be able to complete twice.
	if _, err := pool.Exec(ctx, `INSERT INTO attempts (id, student_id, quiz_id, started_at) VALUES ('late', 's3', 'quiz-1', now())`); err != nil {
		t.Fatalf("insert late row: %v", err)
	}
	_, err = store.UpdateIfActive(ctx, "late", app.AttemptPatch{
		Completion: &domain.Completion{CompletedAt: time.Now().UTC(), Score: 3, TotalPossibleScore: 3},
	})
	if id, ok := domain.ExistingAttemptID(err); !ok || id != "a1" {
		t.Fatalf("expected already completed for a1, got %v", err)
	}
}

func concurrentStarts(t *testing.T, ctx context.Context, service *app.AttemptService, studentID string, n int) []string {
	t.Helper()
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := service.Start(ctx, studentID, "quiz-1")
			ids[i], errs[i] = a.ID, err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	return ids
}

type staticLoader struct {
	quiz domain.QuizDefinition
}

func (l staticLoader) LoadQuiz(_ context.Context, quizID string) (domain.QuizDefinition, error) {
	if quizID != l.quiz.ID {
		return domain.QuizDefinition{}, domain.ErrQuizNotFound
	}
	return l.quiz, nil
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.QuizDefinition) {
	t.Helper()
	db := postgres.OpenBun(dsn)
	defer db.Close()

	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.NewQuizWriter(db).Save(ctx, quiz); err != nil {
		t.Fatalf("save quiz: %v", err)
	}
}

func sampleQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		ID:                  "quiz-1",
		Title:               "Arithmetic",
		PassingScorePercent: 60,
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
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
