package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jrhatch/mnemo/pkg/embedding"
	"github.com/jrhatch/mnemo/pkg/memory"
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Persistent, searchable memory for conversational assistants",
	Long: `mnemo stores conversation messages with their embeddings, retrieves
them by semantic similarity, blends them with recent history into a
bounded context, and evicts old messages according to subscription
tier limits. User profile facts persist forever.

Examples:
  mnemo store --conversation work --role user --content "We deploy on Fridays"
  mnemo search --query "when do we deploy?"
  mnemo context --conversation work --query "deployment schedule"
  mnemo tier upgrade
  mnemo api --listen :8080
  mnemo mcp`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default $HOME/.mnemo.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for the storage units (default ~/.mnemo)")
	rootCmd.PersistentFlags().String("provider", "", "Embedding provider: openai or mock (default openai when a key is set)")
	rootCmd.PersistentFlags().String("openai-key", "", "OpenAI API key for embeddings (or OPENAI_API_KEY)")
	rootCmd.PersistentFlags().String("embedding-model", "", "Embedding model name")
	rootCmd.PersistentFlags().String("embedding-url", "", "OpenAI-compatible endpoint override")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}

func initConfig(cmd *cobra.Command) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".mnemo")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("MNEMO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	for _, key := range []string{
		"data-dir", "provider", "openai-key",
		"embedding-model", "embedding-url",
		"log-level", "log-format",
	} {
		if err := viper.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(key)); err != nil {
			return err
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
		// A missing default config file is fine.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	slog.SetDefault(newLogger())
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(viper.GetString("log-format")) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func dataDir() (string, error) {
	if dir := viper.GetString("data-dir"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".mnemo"), nil
}

// newEmbedder picks the embedding provider from configuration. The mock
// provider is deterministic and offline; openai needs a key.
func newEmbedder() (embedding.Provider, error) {
	provider := strings.ToLower(viper.GetString("provider"))
	key := viper.GetString("openai-key")
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}

	if provider == "" {
		if key != "" {
			provider = "openai"
		} else {
			provider = "mock"
		}
	}

	switch provider {
	case "openai":
		if key == "" {
			return nil, fmt.Errorf("openai provider requires --openai-key or OPENAI_API_KEY")
		}
		return embedding.NewClient(embedding.Config{
			APIKey:  key,
			BaseURL: viper.GetString("embedding-url"),
			Model:   viper.GetString("embedding-model"),
			Timeout: 30 * time.Second,
		}), nil
	case "mock":
		return &embedding.Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// tierPolicy returns the stock thresholds with any config-file overrides
// applied.
func tierPolicy() memory.TierPolicy {
	policy := memory.DefaultTierPolicy()
	if v := viper.GetInt("tier.free.retention-days"); v > 0 {
		policy.Free.RetentionDays = v
	}
	if v := viper.GetInt("tier.free.max-messages"); v > 0 {
		policy.Free.MaxMessages = v
	}
	if v := viper.GetInt("tier.paid.retention-days"); v > 0 {
		policy.Paid.RetentionDays = v
	}
	if v := viper.GetInt("tier.paid.max-messages"); v > 0 {
		policy.Paid.MaxMessages = v
	}
	return policy
}

// app bundles everything a command needs: the assembled facade, the metrics
// registry serving /metrics, and the stores for shutdown.
type app struct {
	facade   *memory.Facade
	tiers    *memory.TierManager
	store    memory.Store
	registry *prometheus.Registry
	logger   *slog.Logger
}

func newApp() (*app, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	cfg := memory.Config{DataDir: dir}
	store, err := memory.NewSQLiteStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	tiers, err := memory.NewTierManager(cfg, tierPolicy(), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	profile, err := memory.NewProfileStore(cfg, logger)
	if err != nil {
		_ = store.Close()
		_ = tiers.Close()
		return nil, err
	}

	embedder, err := newEmbedder()
	if err != nil {
		_ = store.Close()
		_ = tiers.Close()
		_ = profile.Close()
		return nil, err
	}

	search := memory.DefaultSearchConfig()
	if v := viper.GetInt("search.top-k"); v > 0 {
		search.TopK = v
	}
	if v := viper.GetFloat64("search.min-similarity"); v > 0 {
		search.MinSimilarity = v
	}

	registry := prometheus.NewRegistry()
	facade := memory.NewFacade(store, tiers, profile, embedder, memory.FacadeConfig{
		Search:     search,
		Registerer: registry,
		Logger:     logger,
	})

	return &app{
		facade:   facade,
		tiers:    tiers,
		store:    store,
		registry: registry,
		logger:   logger,
	}, nil
}

func (a *app) close() {
	if err := a.facade.Close(); err != nil {
		a.logger.Warn("close stores", "err", err)
	}
}
