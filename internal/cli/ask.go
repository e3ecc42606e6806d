package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ranger/internal/model"
)

var (
	askJSON  bool
	askLimit int
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:     "ask <query>",
	Aliases: []string{"search"},
	Short:   "Answer a question from the knowledge base",
	Long: `Ask finds the best matching record (by confidence, then verification,
then popularity). When an LLM provider is configured the answer is composed
from the matching records and may only cite them.

A miss is recorded as a knowledge gap for the background expansion task.

Example:
  ranger ask "eiffel tower"
  ranger search honey --limit 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the result as JSON")
	askCmd.Flags().IntVar(&askLimit, "limit", 0, "also list up to N matching records")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	res, err := a.pipeline.Ask(cmd.Context(), query)
	if err != nil {
		return err
	}

	var related []model.KnowledgeRecord
	if askLimit > 0 {
		if related, err = a.store.Find(cmd.Context(), query, askLimit); err != nil {
			return err
		}
	}

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"result": res, "matches": related})
	}

	if !res.Found() {
		fmt.Printf("I don't know anything about %q yet.\n", query)
		fmt.Fprintf(os.Stderr, "Recorded as a knowledge gap. Try: ranger learn %q\n", query)
		return nil
	}

	fmt.Println(res.Answer.Text)
	fmt.Println()
	printRecord(*res.Record)
	if res.Answer.Composed {
		fmt.Fprintf(os.Stderr, "(composed by %s, cites %v)\n", res.Answer.Model, res.Answer.Cited)
	}

	if len(related) > 0 {
		fmt.Println()
		fmt.Printf("Matches (%d):\n", len(related))
		for _, r := range related {
			printRecord(r)
		}
	}
	return nil
}

func printRecord(r model.KnowledgeRecord) {
	status := "unverified"
	if r.Verified {
		status = fmt.Sprintf("verified %.2f", r.VerificationConfidence)
	}
	fmt.Printf("  #%d [%s] %s\n", r.ID, r.Claim.Topic, truncate(r.Claim.Content, 120))
	fmt.Printf("      source=%s confidence=%.2f %s accesses=%d\n",
		r.Claim.Source, r.Claim.Confidence, status, r.AccessCount)
}
