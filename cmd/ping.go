package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/logger"
	"github.com/spigell/claim-evaluator/internal/sanitize"
	"github.com/spigell/claim-evaluator/internal/utils"
)

const (
	pingSystem  = "You are a health check endpoint. Respond with JSON only."
	pingMessage = `Say 'Hello, I am working!' in JSON format: {"status": "working", "message": "Hello, I am working!"}`
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the configured Gemini model answers",
	Run: func(cmd *cobra.Command, _ []string) {
		logger := newLogger()
		defer logger.Sync()

		config, err := getConfig()
		if err != nil {
			logger.Fatal("getting config", zap.Error(err))
		}

		if err := ping(cmd, config, logger); err != nil {
			logger.Fatal("ping failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func ping(cmd *cobra.Command, config *Config, log *zap.Logger) error {
	ctx := context.Background()

	client, err := newGeminiClient(ctx, config)
	if err != nil {
		return err
	}

	generator, err := newGenerator(client, config, config.AI.Decision, logger.Component(log, "ping"))
	if err != nil {
		return err
	}

	raw, err := generator.GenerateContent(ctx, pingSystem, pingMessage)
	if err != nil {
		return err
	}

	result := sanitize.Sanitize(raw)
	if !result.Parsed() {
		return fmt.Errorf("model %s answered with non-JSON output: %s", generator.Model(), utils.TruncateForLog(raw, config.AI.Gemini.MaxLogLength))
	}

	log.Info("model is reachable", zap.String(logger.FieldModel, generator.Model()), zap.Any("response", result.Object))
	return printJSON(cmd.OutOrStdout(), result.Object)
}
