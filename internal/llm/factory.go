package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/ranger/internal/model"
)

var constructors = map[string]func(Config) (Provider, error){
	"openai":    func(c Config) (Provider, error) { return NewOpenAIProvider(c) },
	"anthropic": func(c Config) (Provider, error) { return NewAnthropicProvider(c) },
	"ollama":    func(c Config) (Provider, error) { return NewOllamaProvider(c) },
}

var aliases = map[string]string{
	"claude": "anthropic",
	"local":  "ollama",
}

// NewProvider builds the configured provider. An empty provider name disables the
// answer composer and returns nil, nil.
func NewProvider(config Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(config.Provider))
	if name == "" {
		return nil, nil
	}
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	build, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: %s)", config.Provider, strings.Join(providerNames(), ", "))
	}
	return build(config)
}

func providerNames() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigFromModel converts the runtime configuration to llm.Config. Proxy settings
// are shared with the web fetcher.
func ConfigFromModel(cfg model.LLMConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:        cfg.Provider,
		Model:           cfg.Model,
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		Timeout:         cfg.Timeout,
		StrictCitations: cfg.StrictCitations,
		MaxTokens:       cfg.MaxTokens,
		HTTPProxy:       httpCfg.HTTPProxy,
		HTTPSProxy:      httpCfg.HTTPSProxy,
		NoProxy:         httpCfg.NoProxy,
	}
}
