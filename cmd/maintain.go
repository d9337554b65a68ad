package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired temporary rows",
	Long: `Remove temporary rows older than the retention window. Idempotent;
intended to be invoked by an hourly scheduler. Permanent rows are never
touched regardless of age.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, _, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		removed, err := eng.Maintainer.SweepExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired rows\n", removed)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index row counts by partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, _, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		stats, err := eng.Maintainer.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("documents:   %d total, %d temporary (%d expired), %d permanent\n",
			stats.Total, stats.Temporary, stats.Expired, stats.Permanent)
		fmt.Printf("transcripts: %d\n", stats.Transcripts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(statsCmd)
}
