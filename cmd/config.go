package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDirPath

func defaultConfigDirPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "coderev"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage coderev configuration.

Running bare 'coderev config' is the same as 'coderev config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# coderev configuration
# See: coderev config show (for effective values and sources)

# SQLite archive path (default: ~/.config/coderev/coderev.db)
# db_path: {{ .DBPath }}

server:
  # Port for 'coderev serve' (default: 8080)
  port: {{ .ServerPort }}

  # Base URL used by cache/costs commands (default: http://localhost:8080)
  url: "{{ .ServerURL }}"

# Providers
anthropic:
  # API key; ANTHROPIC_API_KEY also works
  api_key: ""

  # Model to use (default: "{{ .AnthropicModel }}")
  model: "{{ .AnthropicModel }}"

openai:
  # Fallback provider; left disabled when the key is empty
  api_key: ""
  model: "{{ .OpenAIModel }}"

# Result cache
cache:
  # memory, redis, or tiered (default: memory)
  backend: "{{ .CacheBackend }}"

  # How long results stay valid (default: 24h)
  ttl: "{{ .CacheTTL }}"

redis:
  addr: "{{ .RedisAddr }}"

review:
  # Wall-clock budget per review (default: 5m)
  timeout: "{{ .ReviewTimeout }}"

  # Concurrent producer calls (default: 4)
  concurrency: {{ .ReviewConcurrency }}
`

type configTemplateData struct {
	DBPath            string
	ServerPort        int
	ServerURL         string
	AnthropicModel    string
	OpenAIModel       string
	CacheBackend      string
	CacheTTL          string
	RedisAddr         string
	ReviewTimeout     string
	ReviewConcurrency int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:            viper.GetString("db_path"),
		ServerPort:        viper.GetInt("server.port"),
		ServerURL:         viper.GetString("server.url"),
		AnthropicModel:    viper.GetString("anthropic.model"),
		OpenAIModel:       viper.GetString("openai.model"),
		CacheBackend:      viper.GetString("cache.backend"),
		CacheTTL:          viper.GetString("cache.ttl"),
		RedisAddr:         viper.GetString("redis.addr"),
		ReviewTimeout:     viper.GetString("review.timeout"),
		ReviewConcurrency: viper.GetInt("review.concurrency"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "CODEREV_DB_PATH"},
	{Key: "server.port", EnvVar: "CODEREV_SERVER_PORT"},
	{Key: "server.url", EnvVar: "CODEREV_SERVER_URL"},
	{Key: "anthropic.model", EnvVar: "CODEREV_ANTHROPIC_MODEL"},
	{Key: "openai.model", EnvVar: "CODEREV_OPENAI_MODEL"},
	{Key: "cache.backend", EnvVar: "CODEREV_CACHE_BACKEND"},
	{Key: "cache.ttl", EnvVar: "CODEREV_CACHE_TTL"},
	{Key: "redis.addr", EnvVar: "CODEREV_REDIS_ADDR"},
	{Key: "review.timeout", EnvVar: "CODEREV_REVIEW_TIMEOUT"},
	{Key: "review.concurrency", EnvVar: "CODEREV_REVIEW_CONCURRENCY"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set, set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'coderev config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
