package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/api"
	"github.com/spigell/claim-evaluator/internal/document"
	"github.com/spigell/claim-evaluator/internal/logger"
)

const (
	app = "claim-evaluator"
)

type Config struct {
	Server    *ServerConfig    `mapstructure:"server"`
	AI        *AIConfig        `mapstructure:"ai"`
	Embedding *EmbeddingConfig `mapstructure:"embedding"`
	Document  DocumentConfig   `mapstructure:"document"`
	Retrieval struct {
		TopK int `mapstructure:"top-k"`
	} `mapstructure:"retrieval"`
	Index struct {
		Cache struct {
			Enabled      bool          `mapstructure:"enabled"`
			TTL          time.Duration `mapstructure:"ttl"`
			BuildTimeout time.Duration `mapstructure:"build-timeout"`
		} `mapstructure:"cache"`
	} `mapstructure:"index"`
}

type ServerConfig struct {
	Listen     string `mapstructure:"listen"`
	api.Config `mapstructure:",squash"`
}

type DocumentConfig struct {
	document.Options `mapstructure:",squash"`
	// PDFExtractor is "text" for the embedded text layer or "gemini" for
	// model transcription of scanned documents.
	PDFExtractor              string `mapstructure:"pdf-extractor"`
	TranscriptMaxOutputTokens int32  `mapstructure:"transcript-max-output-tokens"`
}

type AIConfig struct {
	Provider   string        `mapstructure:"provider"`
	Gemini     *GeminiConfig `mapstructure:"gemini"`
	Extraction ModelConfig   `mapstructure:"extraction"`
	Decision   ModelConfig   `mapstructure:"decision"`
}

type GeminiConfig struct {
	APIKeyFile   string        `mapstructure:"api-key-file"`
	Model        string        `mapstructure:"model"`
	MaxRetries   int           `mapstructure:"max-retries"`
	MaxLogLength int           `mapstructure:"max-log-length"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ModelConfig overrides the Gemini model settings for a single pipeline stage.
type ModelConfig struct {
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxOutputTokens int32   `mapstructure:"max-output-tokens"`
}

type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch-size"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "claim-evaluator decides insurance claims against policy documents with Gemini",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is claim-evaluator.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":3000")
	v.SetDefault("server.allowed-origins", []string{})
	v.SetDefault("server.request-timeout", 2*time.Minute)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-1.5-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)
	v.SetDefault("ai.gemini.timeout", 60*time.Second)
	v.SetDefault("ai.extraction.model", "")
	v.SetDefault("ai.extraction.temperature", 0.3)
	v.SetDefault("ai.extraction.max-output-tokens", 1024)
	v.SetDefault("ai.decision.model", "")
	v.SetDefault("ai.decision.temperature", 0.3)
	v.SetDefault("ai.decision.max-output-tokens", 512)

	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.model", "text-embedding-004")
	v.SetDefault("embedding.timeout", 60*time.Second)
	v.SetDefault("embedding.batch-size", 100)

	v.SetDefault("document.chunk-size", document.DefaultChunkSize)
	v.SetDefault("document.chunk-overlap", document.DefaultChunkOverlap)
	v.SetDefault("document.download-timeout", 30*time.Second)
	v.SetDefault("document.max-bytes", 20<<20)
	v.SetDefault("document.pdf-extractor", "text")
	v.SetDefault("document.transcript-max-output-tokens", 8192)

	v.SetDefault("retrieval.top-k", 4)

	v.SetDefault("index.cache.enabled", false)
	v.SetDefault("index.cache.ttl", 10*time.Minute)
	v.SetDefault("index.cache.build-timeout", 5*time.Minute)
}

func initConfig() {
	// Version does not need any configuration.
	if versionCmd.CalledAs() != "" {
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %s", err)
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("CLAIM_EVALUATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless it was given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

func newLogger() *zap.Logger {
	l, err := logger.New(logger.Options{JSON: viper.GetBool("json"), Debug: viper.GetBool("debug")})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}
