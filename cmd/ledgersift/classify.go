package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/ingest"
	"github.com/ledgersift/ledgersift/internal/model"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify transactions from a CSV statement export",
		Long: `Read transactions from a CSV file and classify each one: deterministic
rules first, the configured external classifier for the rest. Confident
external answers are learned as new rules for future runs.`,
		RunE: runClassify,
	}

	cmd.Flags().StringP("input", "i", "", "CSV file to classify (required)")
	cmd.Flags().StringP("user", "u", "default", "user whose rules apply")
	cmd.Flags().String("job", "", "job identifier (default: derived from timestamp)")
	cmd.Flags().Int("chunk-size", 100, "transactions classified per engine pass")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	input, _ := cmd.Flags().GetString("input")
	userID, _ := cmd.Flags().GetString("user")
	jobID, _ := cmd.Flags().GetString("job")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	if jobID == "" {
		jobID = defaultJobID()
	}
	if chunkSize <= 0 {
		chunkSize = 100
	}

	file, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	txns, err := ingest.ReadCSV(file)
	_ = file.Close()
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", input, err)
	}
	if len(txns) == 0 {
		fmt.Println("No transactions found in input.")
		return nil
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	eng, err := buildEngine(store)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	bar := progressbar.NewOptions(len(txns),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Classifying transactions..."),
	)

	started := time.Now()
	var outcomes []model.ClassificationOutcome
	var budgetHit bool
	for start := 0; start < len(txns); start += chunkSize {
		end := start + chunkSize
		if end > len(txns) {
			end = len(txns)
		}

		chunk, err := eng.ClassifyBatch(ctx, jobID, userID, txns[start:end])
		outcomes = append(outcomes, chunk...)
		if err != nil {
			if errors.Is(err, common.ErrBudgetExceeded) {
				budgetHit = true
				_ = bar.Finish()
				break
			}
			return err
		}
		_ = bar.Add(end - start)
	}
	fmt.Fprintln(os.Stderr)

	printClassifySummary(outcomes, jobID, time.Since(started), budgetHit)

	if summary, err := eng.CostSummary(ctx, jobID); err == nil && summary.TotalTokens > 0 {
		fmt.Printf("External spend: %d tokens, ~$%.4f\n", summary.TotalTokens, summary.EstimatedCost)
	}

	if budgetHit {
		return fmt.Errorf("classification incomplete: %w", common.ErrBudgetExceeded)
	}
	return nil
}

func printClassifySummary(outcomes []model.ClassificationOutcome, jobID string, elapsed time.Duration, budgetHit bool) {
	var byRule, byExternal, unknown int
	for _, o := range outcomes {
		switch o.Source {
		case model.SourceRule:
			byRule++
		case model.SourceExternal:
			byExternal++
		default:
			unknown++
		}
	}

	title := "Classification Complete"
	if budgetHit {
		title = "Classification Stopped (budget exceeded)"
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	body := fmt.Sprintf("Job: %s\n", jobID) +
		fmt.Sprintf("  • By rule:     %d\n", byRule) +
		fmt.Sprintf("  • By external: %d\n", byExternal) +
		fmt.Sprintf("  • Unknown:     %d\n", unknown) +
		fmt.Sprintf("  • Time taken:  %s", elapsed.Round(time.Second))

	fmt.Println(headerStyle.Render(title))
	fmt.Println(body)
}
