package model

import "time"

// Config holds the complete runtime configuration
type Config struct {
	Storage      StorageConfig      `yaml:"storage" mapstructure:"storage"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Extraction   ExtractionConfig   `yaml:"extraction" mapstructure:"extraction"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	SelfMod      SelfModConfig      `yaml:"selfmod" mapstructure:"selfmod"`
	Advisor      AdvisorConfig      `yaml:"advisor" mapstructure:"advisor"`
	Loop         LoopConfig         `yaml:"loop" mapstructure:"loop"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Telegram     TelegramConfig     `yaml:"telegram" mapstructure:"telegram"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Taxonomy     TaxonomyConfig     `yaml:"taxonomy" mapstructure:"taxonomy"`
}

// StorageConfig locates the knowledge database
type StorageConfig struct {
	DBPath    string `yaml:"db_path" mapstructure:"db_path"`
	BackupDir string `yaml:"backup_dir" mapstructure:"backup_dir"` // Database snapshots
}

// HTTPConfig configures the web content fetcher
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS       bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	SearchEngines     []string      `yaml:"search_engines" mapstructure:"search_engines"`
	MaxResults        int           `yaml:"max_results" mapstructure:"max_results"`
	MaxContentChars   int           `yaml:"max_content_chars" mapstructure:"max_content_chars"`
}

// CacheConfig configures caching of search results and page text
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig bounds parallel work
type ConcurrencyConfig struct {
	FetchWorkers int `yaml:"fetch_workers" mapstructure:"fetch_workers"`
	BatchWorkers int `yaml:"batch_workers" mapstructure:"batch_workers"`
}

// ExtractionConfig tunes claim extraction
type ExtractionConfig struct {
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	ContextWindow int     `yaml:"context_window" mapstructure:"context_window"`
}

// VerificationConfig tunes the verifier
type VerificationConfig struct {
	Enabled            bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	TrustedDomains     []string      `yaml:"trusted_domains" mapstructure:"trusted_domains"`
	SuspiciousKeywords []string      `yaml:"suspicious_keywords" mapstructure:"suspicious_keywords"`
	VerifiedThreshold  float64       `yaml:"verified_threshold" mapstructure:"verified_threshold"`
	SourceThreshold    float64       `yaml:"source_threshold" mapstructure:"source_threshold"`
	ExcerptLength      int           `yaml:"excerpt_length" mapstructure:"excerpt_length"`
}

// SelfModConfig bounds self-modification
type SelfModConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Root           string   `yaml:"root" mapstructure:"root"` // Allow-list entries are relative to this
	BackupDir      string   `yaml:"backup_dir" mapstructure:"backup_dir"`
	AllowList      []string `yaml:"allow_list" mapstructure:"allow_list"` // Paths or glob patterns
	MaxPerSession  int      `yaml:"max_modifications_per_session" mapstructure:"max_modifications_per_session"`
	SafetyPatterns []string `yaml:"safety_patterns" mapstructure:"safety_patterns"`
	KeepBackups    int      `yaml:"keep_backups" mapstructure:"keep_backups"`
}

// Thresholds are the aggregate performance limits checked periodically
type Thresholds struct {
	ResponseTime     float64 `yaml:"response_time" mapstructure:"response_time"` // seconds
	AccuracyRate     float64 `yaml:"accuracy_rate" mapstructure:"accuracy_rate"`
	UserSatisfaction float64 `yaml:"user_satisfaction" mapstructure:"user_satisfaction"`
	KnowledgeGaps    float64 `yaml:"knowledge_gaps" mapstructure:"knowledge_gaps"`
	ErrorRate        float64 `yaml:"error_rate" mapstructure:"error_rate"`
}

// AdvisorConfig tunes the improvement advisor
type AdvisorConfig struct {
	Enabled            bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval           time.Duration `yaml:"interval" mapstructure:"interval"`
	Thresholds         Thresholds    `yaml:"thresholds" mapstructure:"thresholds"`
	TargetFile         string        `yaml:"target_file" mapstructure:"target_file"`
	MaxApplyPerTrigger int           `yaml:"max_apply_per_trigger" mapstructure:"max_apply_per_trigger"`
}

// LoopConfig schedules background maintenance
type LoopConfig struct {
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	Backoff        time.Duration `yaml:"backoff" mapstructure:"backoff"`
	BackupSchedule string        `yaml:"backup_schedule" mapstructure:"backup_schedule"` // cron spec with seconds
	PruneSchedule  string        `yaml:"prune_schedule" mapstructure:"prune_schedule"`
}

// LoggingConfig selects the log level and encoding
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// ServerConfig configures the HTTP transport
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// TelegramConfig configures the Telegram transport
type TelegramConfig struct {
	Token     string   `yaml:"token,omitempty" mapstructure:"token"`
	AllowFrom []string `yaml:"allow_from,omitempty" mapstructure:"allow_from"`
	Proxy     string   `yaml:"proxy,omitempty" mapstructure:"proxy"`
}

// LLMConfig configures the optional answer composer
type LLMConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" disables
	Model           string `yaml:"model" mapstructure:"model"`
	APIKey          string `yaml:"-" mapstructure:"api_key"`
	BaseURL         string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout         int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens       int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	StrictCitations bool   `yaml:"strict_citations" mapstructure:"strict_citations"`
}

// TaxonomyConfig points at an optional taxonomy override file
type TaxonomyConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// DefaultSafetyPatterns are payload patterns refused by self-modification
func DefaultSafetyPatterns() []string {
	return []string{
		`"os/exec"`,
		`"syscall"`,
		`"unsafe"`,
		`"plugin"`,
		`"reflect"`,
		`exec\.Command`,
		`syscall\.`,
		`unsafe\.`,
		`os\.(WriteFile|Create|OpenFile|Remove|RemoveAll|Rename|Chmod)\s*\(`,
		`ioutil\.WriteFile\s*\(`,
		`//go:(linkname|generate)`,
		`import\s+"C"`,
	}
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath:    "ranger.db",
			BackupDir: "backups/db",
		},
		HTTP: HTTPConfig{
			Timeout:           10 * time.Second,
			UserAgent:         "Ranger/0.1 (+https://github.com/ppiankov/ranger)",
			MaxBodyBytes:      2_000_000,
			RespectRobots:     true,
			RequestsPerSecond: 1,
			Burst:             3,
			SearchEngines: []string{
				"https://html.duckduckgo.com/html/",
				"https://www.bing.com/search",
				"https://www.google.com/search",
			},
			MaxResults:      5,
			MaxContentChars: 2000,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 15 * time.Minute,
			Dir:       ".ranger-cache",
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			FetchWorkers: 4,
			BatchWorkers: 4,
		},
		Extraction: ExtractionConfig{
			Enabled:       true,
			MinConfidence: 0.6,
			ContextWindow: 10,
		},
		Verification: VerificationConfig{
			Enabled: true,
			Timeout: 10 * time.Second,
			TrustedDomains: []string{
				"wikipedia.org", "britannica.com", "nasa.gov", "nih.gov",
				"who.int", "cdc.gov", "edu", "gov",
			},
			SuspiciousKeywords: []string{"click", "ad", "spam", "fake"},
			VerifiedThreshold:  0.7,
			SourceThreshold:    0.5,
			ExcerptLength:      200,
		},
		SelfMod: SelfModConfig{
			Enabled:        true,
			Root:           ".",
			BackupDir:      "backups",
			AllowList:      []string{"extensions/*.go"},
			MaxPerSession:  10,
			SafetyPatterns: DefaultSafetyPatterns(),
			KeepBackups:    50,
		},
		Advisor: AdvisorConfig{
			Enabled:  true,
			Interval: 6 * time.Hour,
			Thresholds: Thresholds{
				ResponseTime:     2.0,
				AccuracyRate:     0.8,
				UserSatisfaction: 0.7,
				KnowledgeGaps:    0.3,
				ErrorRate:        0.1,
			},
			TargetFile:         "extensions/improvements.go",
			MaxApplyPerTrigger: 3,
		},
		Loop: LoopConfig{
			Interval:       300 * time.Second,
			Backoff:        60 * time.Second,
			BackupSchedule: "0 0 3 * * *",
			PruneSchedule:  "0 30 3 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		LLM: LLMConfig{
			Timeout:         30,
			MaxTokens:       400,
			StrictCitations: true,
		},
	}
}
