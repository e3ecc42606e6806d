package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ranger/internal/model"
)

var (
	ingestChannel string
	ingestUser    string
	ingestTimeout time.Duration
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [message]",
	Short: "Process chat messages and store the facts they announce",
	Long: `Ingest runs messages through the same path as live chat traffic:
- Analyze sentiment, emotion and topics
- Extract a candidate claim
- Verify it against trusted web sources
- Store it in the knowledge base

With no argument, messages are read from stdin, one per line.

Example:
  ranger ingest "Did you know honey never spoils"
  cat transcript.txt | ranger ingest --channel general`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestChannel, "channel", "cli", "channel id the messages belong to")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "cli", "user id the messages come from")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Minute, "overall timeout")
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), ingestTimeout)
	defer cancel()

	var messages []string
	if len(args) == 1 {
		messages = args
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				messages = append(messages, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	stored := 0
	for _, text := range messages {
		out, err := a.pipeline.ProcessMessage(ctx, model.Message{
			ChannelID: ingestChannel,
			UserID:    ingestUser,
			Content:   text,
		})
		if err != nil {
			return fmt.Errorf("process message: %w", err)
		}
		if out.Claim == nil {
			if verbose {
				fmt.Fprintf(os.Stderr, "· no claim: %s\n", text)
			}
			continue
		}

		stored++
		mark := "?"
		if out.Verification != nil && out.Verification.IsVerified {
			mark = "✓"
		}
		fmt.Printf("%s #%d [%s] %s (confidence %.2f)\n",
			mark, out.RecordID, out.Claim.Topic, out.Claim.Content, out.Claim.Confidence)
	}

	fmt.Fprintf(os.Stderr, "\n✓ Processed %d messages, stored %d claims\n", len(messages), stored)
	return nil
}
