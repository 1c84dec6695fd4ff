package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the registry and vector index agree",
		Long: `Doctor runs the Consistency Checker, diffing every product's claimed
faiss_id against what the vector index actually holds and reporting any
orphaned or missing entries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	cfg := loadConfig()
	svc, err := openService(cfg)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	result, err := svc.CheckConsistency(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checked:  %d\n", result.Checked)
	fmt.Fprintf(out, "Duration: %s\n", result.Duration)
	if len(result.Issues) == 0 {
		fmt.Fprintln(out, "No issues found.")
		return nil
	}
	fmt.Fprintf(out, "Issues found: %d\n", len(result.Issues))
	for _, issue := range result.Issues {
		fmt.Fprintf(out, "  - [%s] faiss_id=%d %s\n", issue.Type, issue.FaissID, issue.Details)
	}
	return &doctorError{message: "consistency check found issues"}
}

// doctorError is a custom error for doctor command failures, matching the
// teacher's doctor command's exit-code-on-failure convention.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}
