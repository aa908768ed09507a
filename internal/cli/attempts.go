package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

// NewAttemptsCmd groups administrative attempt commands.
func NewAttemptsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Administer quiz attempts",
	}
	cmd.AddCommand(newAttemptsResetCmd(configPath))
	return cmd
}

func newAttemptsResetCmd(configPath *string) *cobra.Command {
	var studentID, quizID string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove a student's attempts on a quiz so it can be retaken",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if store := cfg.AttemptStore(); store == config.StoreMemory {
				return fmt.Errorf("attempt store %q keeps nothing between runs; configure redis or postgres", store)
			}

			conns, err := openBackends(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conns.Close()
			attempts, err := conns.attemptRepository(cfg)
			if err != nil {
				return err
			}

			// Reset never reads quiz content.
			quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(nil), 0)
			service := app.NewAttemptService(attempts, quizzes, log)
			removed, err := service.ResetAttempts(cmd.Context(), domain.RoleAdmin, studentID, quizID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d attempt(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&studentID, "student", "", "student id")
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}
