package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/ranger/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs a single prompt and returns the model's text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains the input for one completion
type CompletionRequest struct {
	// System is the system prompt
	System string

	// Prompt is the user turn
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// CompletionResponse contains the model output
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// StrictCitations rejects answers citing records that were not supplied
	StrictCitations bool

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:        "", // Disabled by default
		Timeout:         30,
		StrictCitations: true,
		MaxTokens:       400,
	}
}

const systemPrompt = "You answer questions using only the knowledge records you are given. " +
	"You never add facts of your own."

// maxPromptRecords caps how many records are shown to the model
const maxPromptRecords = 5

// BuildPrompt constructs the answer prompt. Records are labelled [#id] and the
// model may cite only those labels.
func BuildPrompt(question string, records []model.KnowledgeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Answer the question below in 1-3 sentences using ONLY these knowledge records:
%s
RULES:
1. Cite every record you use as [#id], exactly as labelled above.
2. Never cite a label that is not in the list.
3. If the records do not answer the question, say so.

Question: %s
`, joinRecords(records), strings.TrimSpace(question))
	return b.String()
}

func joinRecords(records []model.KnowledgeRecord) string {
	if len(records) == 0 {
		return "(No records available)\n"
	}
	var b strings.Builder
	for i, r := range records {
		if i >= maxPromptRecords {
			fmt.Fprintf(&b, "... and %d more records\n", len(records)-maxPromptRecords)
			break
		}
		status := "unverified"
		if r.Verified {
			status = "verified"
		}
		fmt.Fprintf(&b, "- [#%d] (%s, %s, confidence %.2f) %s\n",
			r.ID, r.Claim.Topic, status, r.Claim.Confidence, r.Claim.Content)
	}
	return b.String()
}
