package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ranger/internal/worker"
)

var (
	learnFile        string
	learnConcurrency int
	learnTimeout     time.Duration
)

// learnCmd represents the learn command
var learnCmd = &cobra.Command{
	Use:   "learn [topic...]",
	Short: "Search the web for topics and remember what trusted sources say",
	Long: `Learn searches the web for each topic in parallel:
- Keep only results from trusted sources
- Store the most trusted page text as a knowledge record
- Verify it like any other claim

Topics come from the arguments or from a file (one per line, # comments).

Example:
  ranger learn photosynthesis
  ranger learn --file topics.txt --concurrency 8`,
	RunE: runLearn,
}

func init() {
	rootCmd.AddCommand(learnCmd)

	learnCmd.Flags().StringVarP(&learnFile, "file", "f", "", "read topics from file")
	learnCmd.Flags().IntVar(&learnConcurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	learnCmd.Flags().DurationVar(&learnTimeout, "timeout", 10*time.Minute, "total timeout for learning")
}

func runLearn(cmd *cobra.Command, args []string) error {
	topics := args
	if learnFile != "" {
		lines, err := worker.ReadLinesFromFile(learnFile)
		if err != nil {
			return err
		}
		topics = append(topics, lines...)
	}
	if len(topics) == 0 {
		return fmt.Errorf("no topics given (pass them as arguments or with --file)")
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), learnTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Ranger Learning\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Topics:       %d\n", len(topics))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", learnConcurrency)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", learnTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	results := a.pipeline.LearnTopics(ctx, topics, learnConcurrency)

	successCount := 0
	failureCount := 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Topic, result.Error)
			continue
		}
		successCount++

		mark := "?"
		if result.Record.Verified {
			mark = "✓"
		}
		fmt.Fprintf(os.Stderr, "%s %s (#%d, %s)\n", mark, result.Topic, result.Record.ID, result.Record.Claim.Metadata["url"])
		if verbose {
			fmt.Fprintf(os.Stderr, "    %s\n", truncate(result.Record.Claim.Content, 160))
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Learning Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d topics\n", len(results))
	fmt.Fprintf(os.Stderr, "  Learned:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "\n")

	if successCount == 0 {
		return fmt.Errorf("nothing learned")
	}
	return nil
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
