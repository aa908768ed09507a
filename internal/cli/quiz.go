package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/postgres"
)

// NewQuizCmd groups quiz content commands.
func NewQuizCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Manage quiz definitions",
	}
	cmd.AddCommand(newQuizImportCmd(configPath))
	return cmd
}

func newQuizImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Validate and upsert quiz definitions from YAML or JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()
			writer := postgres.NewQuizWriter(db)

			for _, path := range args {
				quiz, err := readQuizFile(path)
				if err != nil {
					return err
				}
				if err := writer.Save(cmd.Context(), quiz); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				log.Info("quiz imported", "quiz_id", quiz.ID, "questions", len(quiz.Questions), "file", path)
			}
			return nil
		},
	}
}

// readQuizFile decodes a quiz definition; .json files are JSON, anything else YAML.
func readQuizFile(path string) (domain.QuizDefinition, error) {
	var quiz domain.QuizDefinition
	data, err := os.ReadFile(path)
	if err != nil {
		return quiz, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &quiz)
	} else {
		err = yaml.Unmarshal(data, &quiz)
	}
	if err != nil {
		return quiz, fmt.Errorf("decode %s: %w", path, err)
	}
	return quiz, nil
}
