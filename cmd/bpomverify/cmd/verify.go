package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify <query>",
		Short: "Verify a registration code or product title",
		Long: `Verify runs a textual query — a registration code or a free-text
product title — through the registry's exact, lexical, and vector tiers
and returns the fused decision.`,
		Example: `  bpomverify verify "DKL1234567890123"
  bpomverify verify "Amoxicillin 500mg" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, strings.Join(args, " "), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the decision as JSON")
	return cmd
}

func runVerify(cmd *cobra.Command, query string, jsonOutput bool) error {
	cfg := loadConfig()
	svc, err := openService(cfg)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	result, err := svc.VerifyQuery(cmd.Context(), query)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Decision:    %s\n", result.Decision)
	fmt.Fprintf(out, "Confidence:  %.2f\n", result.Confidence)
	fmt.Fprintf(out, "Top source:  %s\n", result.TopSource)
	fmt.Fprintf(out, "Explanation: %s\n", result.Explanation)
	if result.Winner != nil {
		fmt.Fprintf(out, "Winner:      %s (%s)\n", result.Winner.Name, result.Winner.ProductID)
	}
	return nil
}
