package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bruits/sampo/internal/release"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Plan and apply a release: manifests, changelogs, and requirement rewrites",
	RunE:  runRelease,
}

func init() {
	releaseCmd.Flags().Bool("json", false, "emit the applied plan as JSON to stdout")
	releaseCmd.Flags().Bool("skip-branch-check", false, "skip the configured branch allow-list check")
	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot(cmd)
	if err != nil {
		return err
	}

	skipBranchCheck, _ := cmd.Flags().GetBool("skip-branch-check")
	plan, err := release.Release(context.Background(), root, release.Options{
		BranchOverride:  os.Getenv("SAMPO_RELEASE_BRANCH"),
		SkipBranchCheck: skipBranchCheck,
	})
	if err != nil {
		return err
	}

	jsonFlag, _ := cmd.Flags().GetBool("json")
	if jsonFlag {
		return writePlanJSON(os.Stdout, plan)
	}

	if len(plan.Entries) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to release.")
		return nil
	}
	fmt.Fprintln(os.Stderr, "Released:")
	for _, e := range plan.Entries {
		fmt.Fprintf(os.Stderr, "  %s: %s -> %s\n", e.ID, e.From, e.To)
	}
	return nil
}
