package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan <image-path>",
		Short: "Verify a product label photograph",
		Long: `Scan runs a label photograph through the T1/T2 extraction race
(object detection, OCR, and regex code extraction) and aggregates
whatever evidence it recovers into a decision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the decision as JSON")
	return cmd
}

func runScan(cmd *cobra.Command, imagePath string, jsonOutput bool) error {
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	cfg := loadConfig()
	svc, err := openService(cfg)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	outcome, err := svc.VerifyScan(cmd.Context(), raw)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stage:       %s\n", outcome.Scan.Stage)
	fmt.Fprintf(out, "Title:       %s (conf %.2f)\n", outcome.Scan.TitleText, outcome.Scan.TitleConf)
	if outcome.Scan.BPOMNumber != "" {
		fmt.Fprintf(out, "BPOM number: %s\n", outcome.Scan.BPOMNumber)
	}
	fmt.Fprintf(out, "Decision:    %s (confidence %.2f)\n", outcome.Decision.Decision, outcome.Decision.Confidence)
	fmt.Fprintf(out, "Explanation: %s\n", outcome.Decision.Explanation)
	return nil
}
