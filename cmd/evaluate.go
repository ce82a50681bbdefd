package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/document"
	"github.com/spigell/claim-evaluator/internal/domain"
	"github.com/spigell/claim-evaluator/internal/evaluation"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var confirmPrompt = promptui.Select{
	Label: "Evaluate the claim?",
	Items: []string{PromptYes, PromptNo},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a single claim against a policy document",
	Run: func(cmd *cobra.Command, _ []string) {
		logger := newLogger()
		defer logger.Sync()

		config, err := getConfig()
		if err != nil {
			logger.Fatal("getting config", zap.Error(err))
		}

		if err := evaluate(cmd, config, logger); err != nil {
			logger.Fatal("evaluating claim", zap.Error(err))
		}
	},
}

func init() {
	evaluateCmd.Flags().StringP("query", "q", "", "free-text claim description")
	evaluateCmd.Flags().StringP("file-url", "f", "", "URL of the policy document (.pdf, .docx or .txt)")
	evaluateCmd.Flags().BoolP("verbose", "v", false, "print extracted attributes and retrieved clauses as well")
	evaluateCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(evaluateCmd)
}

type verboseOutput struct {
	Decision   domain.Decision        `json:"decision"`
	Attributes domain.ClaimAttributes `json:"attributes"`
	Evidence   []evidenceOutput       `json:"evidence"`
	Steps      map[string]string      `json:"steps"`
}

type evidenceOutput struct {
	Text string `json:"text"`
	domain.ChunkMetadata
}

func evaluate(cmd *cobra.Command, config *Config, log *zap.Logger) error {
	query, _ := cmd.Flags().GetString("query")
	fileURL, _ := cmd.Flags().GetString("file-url")
	verbose, _ := cmd.Flags().GetBool("verbose")
	yes, _ := cmd.Flags().GetBool("yes")

	var err error
	if query, err = askIfEmpty(query, "Claim"); err != nil {
		return err
	}
	if fileURL, err = askIfEmpty(fileURL, "Policy document URL"); err != nil {
		return err
	}

	if !yes {
		_, answer, err := confirmPrompt.Run()
		if err != nil {
			return err
		}
		if answer == PromptNo {
			log.Info("evaluation cancelled")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	evaluator, err := buildEvaluator(ctx, config, log)
	if err != nil {
		return err
	}

	result, err := evaluator.Evaluate(ctx, evaluation.Request{Query: query, FileURL: fileURL})
	if err != nil {
		return err
	}

	if !verbose {
		return printJSON(cmd.OutOrStdout(), result.Decision)
	}

	return printJSON(cmd.OutOrStdout(), verboseResult(result, log))
}

func askIfEmpty(value, label string) (string, error) {
	if strings.TrimSpace(value) != "" {
		return value, nil
	}

	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("value must not be empty")
			}
			return nil
		},
	}

	answer, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return answer, nil
}

func verboseResult(result *evaluation.Result, log *zap.Logger) verboseOutput {
	out := verboseOutput{
		Decision:   result.Decision,
		Attributes: result.Attributes,
		Evidence:   make([]evidenceOutput, 0, len(result.Evidence)),
		Steps:      make(map[string]string, len(result.Steps)),
	}

	for _, chunk := range result.Evidence {
		meta, err := document.Metadata(chunk)
		if err != nil {
			log.Debug("chunk metadata is not decodable", zap.Error(err))
		}
		out.Evidence = append(out.Evidence, evidenceOutput{Text: chunk.Text, ChunkMetadata: meta})
	}

	for stage, took := range result.Steps {
		out.Steps[stage] = took.String()
	}

	return out
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
