package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/model"
)

var statusJSON bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge, verification and learning statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.pipeline.Status(cmd.Context())
		if err != nil {
			// Partial reports are still useful
			a.logger.Warn("status incomplete", zap.Error(err))
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printStatus(report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the report as JSON")
}

func printStatus(r model.StatusReport) {
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", r.Headline())
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()

	fmt.Println("Knowledge:")
	fmt.Printf("  Total:               %d\n", r.Knowledge.Total)
	fmt.Printf("  Verified:            %d\n", r.Knowledge.Verified)
	fmt.Printf("  Uncertain:           %d\n", r.Knowledge.Uncertain)
	fmt.Printf("  Average confidence:  %.3f\n", r.Knowledge.AverageConfidence)
	for _, t := range r.Knowledge.TopTopics {
		fmt.Printf("    %-24s %d accesses\n", t.Topic, t.Accesses)
	}
	fmt.Println()

	fmt.Println("Verification:")
	fmt.Printf("  Checks:              %d\n", r.Verification.Total)
	fmt.Printf("  Verified:            %d\n", r.Verification.Verified)
	fmt.Printf("  Trusted sources:     %d\n", r.Verification.TrustedSources)
	fmt.Println()

	fmt.Println("Learning events:")
	fmt.Printf("  Total:               %d\n", r.Learning.Total)
	types := make([]string, 0, len(r.Learning.ByType))
	for typ := range r.Learning.ByType {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	for _, typ := range types {
		fmt.Printf("    %-24s %d\n", typ, r.Learning.ByType[model.LearningEventType(typ)])
	}
	fmt.Println()

	fmt.Println("Self-modification:")
	fmt.Printf("  This session:        %d/%d\n", r.Session.Applied, r.Session.MaxPerSession)
	fmt.Printf("  Pending proposals:   %d\n", r.Improvement.Pending)
	fmt.Printf("  Check interval:      %.1fh\n", r.Improvement.IntervalHours)
	fmt.Println()
}
