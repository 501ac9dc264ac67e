package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/coderev/internal/cache"
	"github.com/joescharf/coderev/internal/knowledge"
	"github.com/joescharf/coderev/internal/output"
	"github.com/joescharf/coderev/internal/pipeline"
	"github.com/joescharf/coderev/internal/provider"
	"github.com/joescharf/coderev/internal/registry"
	"github.com/joescharf/coderev/internal/static"
	"github.com/joescharf/coderev/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "coderev",
	Short: "AI code review - multiple analysis producers, one consolidated verdict",
	Long: `coderev reviews code with a set of specialized AI producers (bugs,
security, performance, documentation), merges their findings, and returns a
single scored report with a pass/fail recommendation.

Run reviews directly from the CLI, against a GitHub pull request, or start
the daemon and submit reviews over HTTP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/coderev/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "coderev")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CODEREV")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "coderev")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "coderev.db"))
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.url", "http://localhost:8080")
	viper.SetDefault("server.pid_file", filepath.Join(defaultConfigDir, "coderev.pid"))

	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.base_url", "")

	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.ttl", "24h")
	viper.SetDefault("cache.max_bytes", 64<<20)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("review.timeout", "5m")
	viper.SetDefault("review.concurrency", 4)
	viper.SetDefault("review.confidence_threshold", 0.7)
	viper.SetDefault("knowledge.data_dir", filepath.Join(defaultConfigDir, "knowledge"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

// getStore returns the shared archive store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newGateway builds the provider gateway from config. The Anthropic key is
// required; the OpenAI fallback is wired only when its key is set.
func newGateway() (*provider.Gateway, error) {
	anthropicKey := viper.GetString("anthropic.api_key")
	if anthropicKey == "" {
		anthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if anthropicKey == "" {
		return nil, fmt.Errorf("no Anthropic API key configured: set anthropic.api_key or ANTHROPIC_API_KEY")
	}
	primary := provider.NewAnthropic(anthropicKey, viper.GetString("anthropic.model"), nil)

	var fallback provider.Provider
	openaiKey := viper.GetString("openai.api_key")
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}
	if openaiKey != "" {
		fallback = provider.NewOpenAI(openaiKey,
			viper.GetString("openai.model"), viper.GetString("openai.base_url"), nil)
	}

	return provider.NewGateway(primary, fallback, provider.NewMeter()), nil
}

// newCacheStore builds the configured cache backend: in-process ristretto,
// redis, or both tiered.
func newCacheStore() (cache.Store, error) {
	maxBytes := viper.GetInt64("cache.max_bytes")
	switch backend := viper.GetString("cache.backend"); backend {
	case "memory":
		return cache.NewRistretto(maxBytes)
	case "redis":
		return cache.NewRedis(viper.GetString("redis.addr"),
			viper.GetString("redis.password"), viper.GetInt("redis.db"))
	case "tiered":
		l1, err := cache.NewRistretto(maxBytes)
		if err != nil {
			return nil, err
		}
		l2, err := cache.NewRedis(viper.GetString("redis.addr"),
			viper.GetString("redis.password"), viper.GetInt("redis.db"))
		if err != nil {
			return nil, err
		}
		return cache.NewTiered(l1, l2, 5*time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (must be memory, redis, or tiered)", backend)
	}
}

// newRetriever loads the guidance corpus if one is configured.
func newRetriever() knowledge.Retriever {
	dataDir := viper.GetString("knowledge.data_dir")
	retriever, err := knowledge.NewDirStore(dataDir)
	if err != nil || retriever.Len() == 0 {
		return knowledge.Noop{}
	}
	return retriever
}

// reviewServices is the wired pipeline shared by review, pr, serve, and mcp.
type reviewServices struct {
	controller *pipeline.Controller
	registry   *registry.Registry
	gate       *cache.Gate
	gateway    *provider.Gateway
}

func newReviewServices() (*reviewServices, error) {
	gateway, err := newGateway()
	if err != nil {
		return nil, err
	}
	cacheStore, err := newCacheStore()
	if err != nil {
		return nil, fmt.Errorf("initialize cache: %w", err)
	}

	ttl, err := time.ParseDuration(viper.GetString("cache.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid cache.ttl: %w", err)
	}
	timeout, err := time.ParseDuration(viper.GetString("review.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid review.timeout: %w", err)
	}

	reg := registry.New()
	gate := cache.NewGate(cacheStore, ttl)
	ctrl := pipeline.NewController(reg, gate, gateway,
		static.NewExecRunner(), newRetriever(), pipeline.Config{
			Timeout:     timeout,
			Concurrency: viper.GetInt("review.concurrency"),
		})

	return &reviewServices{controller: ctrl, registry: reg, gate: gate, gateway: gateway}, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "coderev %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}
