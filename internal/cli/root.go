package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/pipeline"
	"github.com/ppiankov/ranger/internal/store"
)

const version = "0.1.0"

var (
	cfgFile  string
	verbose  bool
	logLevel string
	dbPath   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ranger",
	Short: "Ranger - learns facts from conversation and checks them against trusted sources",
	Long: `Ranger is a knowledge-acquisition agent for chat communities.

It extracts candidate facts from messages, verifies them against trusted
web sources, keeps them in a local knowledge base and answers questions
from what it has learned.

It can also propose small improvements to its own extension code. Every
change is allow-listed, safety-screened, backed up and syntax-checked,
and the number of changes per session is capped.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ranger v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.ranger/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "knowledge database path")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("storage.db_path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".ranger"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match RANGER_* (llm.api_key -> RANGER_LLM_API_KEY)
	viper.SetEnvPrefix("RANGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Secrets and proxies are omitted from the YAML defaults, so bind them explicitly
	_ = viper.BindEnv("llm.api_key", "RANGER_LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("telegram.token", "RANGER_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = viper.BindEnv("http.http_proxy", "RANGER_HTTP_HTTP_PROXY", "HTTP_PROXY")
	_ = viper.BindEnv("http.https_proxy", "RANGER_HTTP_HTTPS_PROXY", "HTTPS_PROXY")
	_ = viper.BindEnv("http.no_proxy", "RANGER_HTTP_NO_PROXY", "NO_PROXY")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file, environment and flags over the defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	defaults, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(defaults, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	setDefaults("", tree)

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every leaf of the default config so AutomaticEnv can
// override keys that appear in no config file
func setDefaults(prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			setDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// app bundles the components one CLI invocation needs
type app struct {
	cfg      *model.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	store    *store.Store
	pipeline *pipeline.Pipeline
}

// newLogger builds the process logger. One-shot commands log warnings only unless
// --verbose or --log-level ask for more.
func newLogger(cfg *model.Config, quiet bool) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if quiet && !verbose && logLevel == "" {
		level = "warn"
	}
	return logging.New(level, cfg.Logging.Format)
}

// openApp loads the configuration, opens the knowledge database and builds the pipeline
func openApp(quiet bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, quiet)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	st, err := store.Open(cfg.Storage.DBPath, logger, m)
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	p, err := pipeline.NewPipeline(cfg, st, logger, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, metrics: m, store: st, pipeline: p}, nil
}

// Close releases the database and flushes the logger
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close knowledge base", zap.Error(err))
	}
	_ = a.logger.Sync()
}
