package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpomverify/bpomverify/internal/buildview"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect the vector index",
	}
	cmd.AddCommand(newIndexBuildCmd())
	cmd.AddCommand(newIndexInfoCmd())
	return cmd
}

func newIndexBuildCmd() *cobra.Command {
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Stream the registry into a fresh vector index generation",
		Long: `Build embeds every catalog product and persists a new vector index
generation at the configured index path, training the index once a
sample threshold is reached.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndexBuild(cmd, noTUI)
		},
	}
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable the progress TUI, print a summary line instead")
	return cmd
}

func runIndexBuild(cmd *cobra.Command, noTUI bool) error {
	cfg := loadConfig()
	svc, err := openService(cfg)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	if noTUI {
		result, err := svc.BuildIndex(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "products_seen=%d embedded=%d trained=%v duration=%s\n",
			result.ProductsSeen, result.Embedded, result.Trained, result.Duration)
		return nil
	}

	prog := buildview.Start()
	go func() {
		result, err := svc.BuildIndexWithProgress(cmd.Context(), prog.OnProgress)
		prog.Done(result, err)
	}()
	return prog.Wait()
}

func newIndexInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Report the current vector index's state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			svc, err := openService(cfg)
			if err != nil {
				return fmt.Errorf("failed to open service: %w", err)
			}
			defer func() { _ = svc.Close() }()

			info := svc.Info()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trained: %v\n", info.Trained)
			fmt.Fprintf(out, "count:   %d\n", info.Count)
			fmt.Fprintf(out, "path:    %s\n", info.Path)
			return nil
		},
	}
}
